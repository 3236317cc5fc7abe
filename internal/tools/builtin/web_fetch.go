package builtin

import (
	"context"

	"github.com/shannon-run/llm-gateway/internal/tools"
	"github.com/shannon-run/llm-gateway/internal/tools/websearch"
)

// WebFetchTool implements the spec §4.7 web_fetch contract — {url, title,
// content, method, word_count, char_count} — directly against
// websearch.ContentExtractor.ExtractPage rather than the older
// websearch.WebFetchTool (which predates the split title/content contract
// and is kept for the agent runtime's own tool surface).
type WebFetchTool struct {
	extractor *websearch.ContentExtractor
}

// NewWebFetchTool constructs the web_fetch built-in.
func NewWebFetchTool(extractor *websearch.ContentExtractor) *WebFetchTool {
	if extractor == nil {
		extractor = websearch.NewContentExtractor()
	}
	return &WebFetchTool{extractor: extractor}
}

func (t *WebFetchTool) Metadata() tools.Metadata {
	return tools.Metadata{
		Name:           "web_fetch",
		Description:    "Fetch a single URL and extract its readable content as markdown-ish text.",
		Category:       "builtin",
		TimeoutSeconds: 20,
	}
}

func (t *WebFetchTool) Parameters() []tools.ToolParameter {
	return []tools.ToolParameter{
		{Name: "url", Type: tools.ParamString, Required: true, Description: "URL to fetch (http/https only)"},
	}
}

func (t *WebFetchTool) Run(ctx context.Context, sess *tools.SessionContext, obs tools.Observer, params map[string]any) (tools.Result, error) {
	rawURL, _ := params["url"].(string)
	page, err := t.extractor.ExtractPage(ctx, rawURL)
	if err != nil {
		return tools.Result{Success: false, Error: err.Error()}, nil
	}
	return tools.Result{
		Success: true,
		Output: map[string]any{
			"url":        rawURL,
			"title":      page.Title,
			"content":    page.Content,
			"method":     page.Method,
			"word_count": page.WordCount,
			"char_count": page.CharCount,
		},
	}, nil
}
