// Package firecrawl is a thin client for the Firecrawl API, used by the
// web_subpage_fetch and web_crawl built-ins (spec §4.7). It follows the
// same capped-body/retry/SSRF pattern as internal/tools/openapi and
// internal/tools/mcp rather than introducing a third distinct HTTP
// calling convention.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shannon-run/llm-gateway/internal/gwerrors"
)

const defaultBaseURL = "https://api.firecrawl.dev/v1"
const maxResponseBytes = 20 << 20

// Client calls the Firecrawl map/scrape/crawl endpoints.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// MapResult is one discovered sub-page link.
type MapResult struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Map discovers sub-pages of a site.
func (c *Client) Map(ctx context.Context, rootURL string) ([]MapResult, error) {
	var out struct {
		Links []MapResult `json:"links"`
	}
	if err := c.post(ctx, "/map", map[string]any{"url": rootURL}, &out); err != nil {
		return nil, err
	}
	return out.Links, nil
}

// ScrapeResult is one page's extracted content.
type ScrapeResult struct {
	URL      string  `json:"url"`
	Title    string  `json:"title"`
	Markdown string  `json:"markdown"`
	Score    float64 `json:"relevance_score,omitempty"`
}

// Scrape extracts content from a single URL.
func (c *Client) Scrape(ctx context.Context, pageURL string) (*ScrapeResult, error) {
	var out struct {
		Data struct {
			Markdown string `json:"markdown"`
			Metadata struct {
				Title string `json:"title"`
			} `json:"metadata"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/scrape", map[string]any{"url": pageURL, "formats": []string{"markdown"}}, &out); err != nil {
		return nil, err
	}
	return &ScrapeResult{URL: pageURL, Title: out.Data.Metadata.Title, Markdown: out.Data.Markdown}, nil
}

// CrawlStart kicks off an asynchronous crawl and returns a job id.
func (c *Client) CrawlStart(ctx context.Context, rootURL string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/crawl", map[string]any{"url": rootURL}, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// CrawlStatusResult reports progress of an async crawl job.
type CrawlStatusResult struct {
	Status string         `json:"status"`
	Total  int            `json:"total"`
	Done   int            `json:"completed"`
	Data   []ScrapeResult `json:"data"`
}

// CrawlStatus polls a crawl job.
func (c *Client) CrawlStatus(ctx context.Context, jobID string) (*CrawlStatusResult, error) {
	var out CrawlStatusResult
	if err := c.get(ctx, "/crawl/"+jobID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("firecrawl request failed: %s", gwerrors.Sanitize(err.Error()))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return err
	}
	if int64(len(data)) > maxResponseBytes {
		return fmt.Errorf("firecrawl response exceeds %d bytes", maxResponseBytes)
	}
	if resp.StatusCode >= 300 {
		return (&gwerrors.Error{Message: "firecrawl returned status " + gwerrors.Sanitize(string(data))}).WithStatus(resp.StatusCode)
	}
	return json.Unmarshal(data, out)
}
