package builtin

import (
	"context"

	"github.com/shannon-run/llm-gateway/internal/tools"
	"github.com/shannon-run/llm-gateway/internal/tools/websearch"
)

// WebSearchTool implements the spec §4.7 web_search contract: delegate to
// a configured backend and return [{title, snippet, url, source, ...}].
// Wraps websearch.WebSearchTool.Search directly instead of round-tripping
// through its agent.Tool/ToolResult JSON string form.
type WebSearchTool struct {
	delegate *websearch.WebSearchTool
}

// NewWebSearchTool constructs the web_search built-in around a configured
// websearch.WebSearchTool (backend selection, caching, API keys).
func NewWebSearchTool(delegate *websearch.WebSearchTool) *WebSearchTool {
	return &WebSearchTool{delegate: delegate}
}

func (t *WebSearchTool) Metadata() tools.Metadata {
	return tools.Metadata{
		Name:           "web_search",
		Description:    "Search the web and return a ranked list of results.",
		Category:       "builtin",
		TimeoutSeconds: 15,
	}
}

func (t *WebSearchTool) Parameters() []tools.ToolParameter {
	return []tools.ToolParameter{
		{Name: "query", Type: tools.ParamString, Required: true, Description: "Search query text"},
		{Name: "result_count", Type: tools.ParamInteger, Required: false, Description: "Number of results (max 20)", Min: floatPtr(1), Max: floatPtr(20)},
		{Name: "extract_content", Type: tools.ParamBoolean, Required: false, Description: "Fetch full page content for each result"},
	}
}

func (t *WebSearchTool) Run(ctx context.Context, sess *tools.SessionContext, obs tools.Observer, params map[string]any) (tools.Result, error) {
	query, _ := params["query"].(string)
	searchParams := websearch.SearchParams{Query: query}
	if n, ok := params["result_count"].(int); ok {
		searchParams.ResultCount = n
	}
	if extract, ok := params["extract_content"].(bool); ok {
		searchParams.ExtractContent = extract
	}

	resp, err := t.delegate.Search(ctx, searchParams)
	if err != nil {
		return tools.Result{Success: false, Error: err.Error()}, nil
	}

	results := make([]map[string]any, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, map[string]any{
			"title":   r.Title,
			"snippet": r.Snippet,
			"url":     r.URL,
			"source":  string(resp.Backend),
			"content": r.Content,
		})
	}
	return tools.Result{Success: true, Output: results}, nil
}

func floatPtr(v float64) *float64 { return &v }
