package builtin

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shannon-run/llm-gateway/internal/tools"
	"github.com/shannon-run/llm-gateway/internal/tools/firecrawl"
)

// crawlPollInterval and crawlMaxPolls match spec §4.7 web_crawl: "poll
// every 2s up to 60 times".
const crawlPollInterval = 2 * time.Second
const crawlMaxPolls = 60

// WebSubpageFetchTool implements the spec §4.7 web_subpage_fetch built-in:
// Firecrawl map+scrape with relevance scoring.
type WebSubpageFetchTool struct {
	client *firecrawl.Client
}

func NewWebSubpageFetchTool(client *firecrawl.Client) *WebSubpageFetchTool {
	return &WebSubpageFetchTool{client: client}
}

func (t *WebSubpageFetchTool) Metadata() tools.Metadata {
	return tools.Metadata{Name: "web_subpage_fetch", Description: "Discover and fetch the most relevant sub-pages of a site for a query.", Category: "builtin", TimeoutSeconds: 45}
}

func (t *WebSubpageFetchTool) Parameters() []tools.ToolParameter {
	return []tools.ToolParameter{
		{Name: "url", Type: tools.ParamString, Required: true, Description: "Root URL to map"},
		{Name: "query", Type: tools.ParamString, Required: true, Description: "Query used to score sub-page relevance"},
		{Name: "max_pages", Type: tools.ParamInteger, Required: false, Default: 5, Min: floatPtr(1), Max: floatPtr(20)},
	}
}

func (t *WebSubpageFetchTool) Run(ctx context.Context, sess *tools.SessionContext, obs tools.Observer, params map[string]any) (tools.Result, error) {
	rootURL, _ := params["url"].(string)
	query, _ := params["query"].(string)
	maxPages := 5
	if mp, ok := params["max_pages"].(int); ok && mp > 0 {
		maxPages = mp
	}

	links, err := t.client.Map(ctx, rootURL)
	if err != nil {
		return tools.Result{Success: false, Error: err.Error()}, nil
	}

	scored := make([]firecrawl.MapResult, len(links))
	copy(scored, links)
	sort.Slice(scored, func(i, j int) bool {
		return relevanceScore(scored[i].URL, query) > relevanceScore(scored[j].URL, query)
	})
	if len(scored) > maxPages {
		scored = scored[:maxPages]
	}

	pages := make([]map[string]any, 0, len(scored))
	for _, link := range scored {
		page, err := t.client.Scrape(ctx, link.URL)
		if err != nil {
			continue
		}
		pages = append(pages, map[string]any{
			"url":             page.URL,
			"title":           page.Title,
			"content":         page.Markdown,
			"relevance_score": relevanceScore(link.URL, query),
		})
	}
	return tools.Result{Success: true, Output: map[string]any{"pages": pages}}, nil
}

func relevanceScore(url, query string) float64 {
	url = strings.ToLower(url)
	score := 0.0
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if strings.Contains(url, term) {
			score++
		}
	}
	return score
}

// WebCrawlTool implements the spec §4.7 web_crawl built-in: Firecrawl
// async crawl, polled every 2s up to 60 times.
type WebCrawlTool struct {
	client *firecrawl.Client
}

func NewWebCrawlTool(client *firecrawl.Client) *WebCrawlTool {
	return &WebCrawlTool{client: client}
}

func (t *WebCrawlTool) Metadata() tools.Metadata {
	return tools.Metadata{Name: "web_crawl", Description: "Crawl an entire site asynchronously and return all pages.", Category: "builtin", TimeoutSeconds: 150}
}

func (t *WebCrawlTool) Parameters() []tools.ToolParameter {
	return []tools.ToolParameter{
		{Name: "url", Type: tools.ParamString, Required: true, Description: "Root URL to crawl"},
	}
}

func (t *WebCrawlTool) Run(ctx context.Context, sess *tools.SessionContext, obs tools.Observer, params map[string]any) (tools.Result, error) {
	rootURL, _ := params["url"].(string)
	jobID, err := t.client.CrawlStart(ctx, rootURL)
	if err != nil {
		return tools.Result{Success: false, Error: err.Error()}, nil
	}

	for attempt := 0; attempt < crawlMaxPolls; attempt++ {
		status, err := t.client.CrawlStatus(ctx, jobID)
		if err != nil {
			return tools.Result{Success: false, Error: err.Error()}, nil
		}
		if status.Status == "completed" || status.Status == "failed" {
			pages := make([]map[string]any, 0, len(status.Data))
			for _, p := range status.Data {
				pages = append(pages, map[string]any{"url": p.URL, "title": p.Title, "content": p.Markdown})
			}
			return tools.Result{Success: status.Status == "completed", Output: map[string]any{
				"job_id": jobID,
				"status": status.Status,
				"pages":  pages,
			}}, nil
		}
		select {
		case <-ctx.Done():
			return tools.Result{}, ctx.Err()
		case <-time.After(crawlPollInterval):
		}
	}
	return tools.Result{Success: false, Error: fmt.Sprintf("crawl job %s did not complete after %d polls", jobID, crawlMaxPolls)}, nil
}
