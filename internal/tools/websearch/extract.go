package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/shannon-run/llm-gateway/internal/net/ssrf"
)

// parseFetchURL validates scheme and hostname shape before SSRF resolution.
func parseFetchURL(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("URL scheme must be http or https, got: %s", parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("URL must have a hostname")
	}
	return parsed, nil
}

// DefaultMaxResponseBytes is the spec §4.7 web_fetch response size cap.
const DefaultMaxResponseBytes = 50 << 20

// MaxRedirects caps redirect chains (spec §4.7 web_fetch).
const MaxRedirects = 10

// ContentExtractor extracts readable content from web pages.
type ContentExtractor struct {
	httpClient       *http.Client
	maxResponseBytes int64
	skipSSRFCheck    bool // For testing only - allows localhost URLs
}

// NewContentExtractor creates a new content extractor.
func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{
		httpClient:       newExtractorHTTPClient(false),
		maxResponseBytes: DefaultMaxResponseBytes,
		skipSSRFCheck:    false,
	}
}

// NewContentExtractorForTesting creates a content extractor that allows localhost URLs.
// This should only be used in tests.
func NewContentExtractorForTesting() *ContentExtractor {
	return &ContentExtractor{
		httpClient:       newExtractorHTTPClient(true),
		maxResponseBytes: DefaultMaxResponseBytes,
		skipSSRFCheck:    true,
	}
}

// newExtractorHTTPClient caps redirect chains and, unless skipSSRFCheck is
// set, re-validates every redirect hop's hostname: a server can 30x to a
// private or metadata address after the initial URL passed validation.
func newExtractorHTTPClient(skipSSRFCheck bool) *http.Client {
	if skipSSRFCheck {
		return &http.Client{
			Timeout: 15 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= MaxRedirects {
					return fmt.Errorf("stopped after %d redirects", MaxRedirects)
				}
				return nil
			},
		}
	}
	return &http.Client{
		Timeout:       15 * time.Second,
		CheckRedirect: ssrf.CheckRedirect(MaxRedirects),
	}
}

// ExtractedPage is the structured result of a fetch: title and content kept
// as distinct fields rather than concatenated into one string.
type ExtractedPage struct {
	Title     string
	Content   string
	Method    string
	WordCount int
	CharCount int
}

// Extract fetches and extracts readable content from a URL, returning the
// legacy single-string form ("Title: ...\n\n" prefixed onto the body) used
// by the summarization tool.
func (e *ContentExtractor) Extract(ctx context.Context, targetURL string) (string, error) {
	page, err := e.ExtractPage(ctx, targetURL)
	if err != nil {
		return "", err
	}
	var result strings.Builder
	if page.Title != "" {
		result.WriteString("Title: ")
		result.WriteString(page.Title)
		result.WriteString("\n\n")
	}
	result.WriteString(page.Content)
	return result.String(), nil
}

// ExtractPage fetches targetURL and returns title, content, and size
// metadata as distinct fields (spec §4.7 web_fetch: {url, title, content,
// method, word_count, char_count}).
func (e *ContentExtractor) ExtractPage(ctx context.Context, targetURL string) (ExtractedPage, error) {
	if !e.skipSSRFCheck {
		if err := e.validateURLForSSRF(targetURL); err != nil {
			return ExtractedPage{}, fmt.Errorf("URL validation failed: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return ExtractedPage{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ShannonBot/1.0)")
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.1")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return ExtractedPage{}, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ExtractedPage{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "text/plain") {
		return ExtractedPage{}, fmt.Errorf("unsupported content type: %s", contentType)
	}

	maxBytes := e.maxResponseBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxResponseBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return ExtractedPage{}, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return ExtractedPage{}, fmt.Errorf("response exceeds %d bytes", maxBytes)
	}

	title, content := e.extractReadableContent(string(body))
	if len(content) > 10000 {
		content = content[:10000] + "..."
	}

	return ExtractedPage{
		Title:     title,
		Content:   content,
		Method:    "extract",
		WordCount: len(strings.Fields(content)),
		CharCount: len(content),
	}, nil
}

// validateURLForSSRF defers to the gateway-wide ssrf policy so this package
// does not maintain a second private-IP classification alongside
// internal/net/ssrf.
func (e *ContentExtractor) validateURLForSSRF(rawURL string) error {
	u, err := parseFetchURL(rawURL)
	if err != nil {
		return err
	}
	return ssrf.ValidatePublicHostname(u.Hostname())
}

// extractReadableContent implements a simplified readability algorithm,
// returning title and body content as distinct values.
func (e *ContentExtractor) extractReadableContent(html string) (string, string) {
	// Remove script and style tags
	html = e.removeTag(html, "script")
	html = e.removeTag(html, "style")
	html = e.removeTag(html, "noscript")
	html = e.removeTag(html, "iframe")
	html = e.removeTag(html, "nav")
	html = e.removeTag(html, "header")
	html = e.removeTag(html, "footer")
	html = e.removeTag(html, "aside")

	title := e.extractTitle(html)
	description := e.extractMetaDescription(html)

	content := e.extractMainContent(html)
	if content == "" {
		content = e.extractFromBody(html)
	}
	content = e.cleanText(content)

	if description != "" {
		content = "Description: " + description + "\n\n" + content
	}

	return title, content
}

// removeTag removes all occurrences of a tag from HTML.
func (e *ContentExtractor) removeTag(html, tag string) string {
	re := regexp.MustCompile(`(?i)<` + tag + `[^>]*>.*?</` + tag + `>`)
	return re.ReplaceAllString(html, "")
}

// extractTitle extracts the page title.
func (e *ContentExtractor) extractTitle(html string) string {
	// Try <title> tag
	re := regexp.MustCompile(`(?i)<title[^>]*>(.*?)</title>`)
	matches := re.FindStringSubmatch(html)
	if len(matches) > 1 {
		return e.cleanText(matches[1])
	}

	// Try og:title meta tag
	re = regexp.MustCompile(`(?i)<meta[^>]*property=["']og:title["'][^>]*content=["']([^"']*)["']`)
	matches = re.FindStringSubmatch(html)
	if len(matches) > 1 {
		return e.cleanText(matches[1])
	}

	// Try h1 tag
	re = regexp.MustCompile(`(?i)<h1[^>]*>(.*?)</h1>`)
	matches = re.FindStringSubmatch(html)
	if len(matches) > 1 {
		return e.cleanText(matches[1])
	}

	return ""
}

// extractMetaDescription extracts the meta description.
func (e *ContentExtractor) extractMetaDescription(html string) string {
	// Try meta description
	re := regexp.MustCompile(`(?i)<meta[^>]*name=["']description["'][^>]*content=["']([^"']*)["']`)
	matches := re.FindStringSubmatch(html)
	if len(matches) > 1 {
		return e.cleanText(matches[1])
	}

	// Try og:description
	re = regexp.MustCompile(`(?i)<meta[^>]*property=["']og:description["'][^>]*content=["']([^"']*)["']`)
	matches = re.FindStringSubmatch(html)
	if len(matches) > 1 {
		return e.cleanText(matches[1])
	}

	return ""
}

// extractMainContent extracts content from common content containers.
func (e *ContentExtractor) extractMainContent(html string) string {
	// Common content container patterns (using dotall flag)
	patterns := []string{
		`(?is)<main[^>]*>(.*?)</main>`,
		`(?is)<article[^>]*>(.*?)</article>`,
		`(?is)<div[^>]*class=["'][^"']*content[^"']*["'][^>]*>(.*?)</div>`,
		`(?is)<div[^>]*class=["'][^"']*article[^"']*["'][^>]*>(.*?)</div>`,
		`(?is)<div[^>]*id=["']content["'][^>]*>(.*?)</div>`,
		`(?is)<div[^>]*id=["']main["'][^>]*>(.*?)</div>`,
		`(?is)<div[^>]*role=["']main["'][^>]*>(.*?)</div>`,
	}

	for _, pattern := range patterns {
		re := regexp.MustCompile(pattern)
		matches := re.FindStringSubmatch(html)
		if len(matches) > 1 {
			content := matches[1]
			// Extract text from HTML
			text := e.extractText(content)
			if len(strings.TrimSpace(text)) > 200 { // Must have substantial content
				return text
			}
		}
	}

	return ""
}

// extractFromBody extracts content from the body tag.
func (e *ContentExtractor) extractFromBody(html string) string {
	re := regexp.MustCompile(`(?is)<body[^>]*>(.*?)</body>`)
	matches := re.FindStringSubmatch(html)
	if len(matches) > 1 {
		return e.extractText(matches[1])
	}
	return ""
}

// extractText extracts plain text from HTML, preserving paragraph structure.
func (e *ContentExtractor) extractText(html string) string {
	// Replace block elements with newlines
	blockElements := []string{"p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "li", "br"}
	for _, tag := range blockElements {
		re := regexp.MustCompile(`(?i)<` + tag + `[^>]*>`)
		html = re.ReplaceAllString(html, "\n")
		re = regexp.MustCompile(`(?i)</` + tag + `>`)
		html = re.ReplaceAllString(html, "\n")
	}

	// Remove all remaining HTML tags
	re := regexp.MustCompile(`<[^>]*>`)
	text := re.ReplaceAllString(html, "")

	return text
}

// cleanText cleans up extracted text.
func (e *ContentExtractor) cleanText(text string) string {
	// Decode common HTML entities
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", "\"")
	text = strings.ReplaceAll(text, "&#39;", "'")
	text = strings.ReplaceAll(text, "&apos;", "'")

	// Normalize whitespace within lines (but preserve newlines)
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		re := regexp.MustCompile(`[^\S\n]+`)
		lines[i] = re.ReplaceAllString(line, " ")
		lines[i] = strings.TrimSpace(lines[i])
	}
	text = strings.Join(lines, "\n")

	// Normalize newlines (max 2 consecutive)
	re := regexp.MustCompile(`\n{3,}`)
	text = re.ReplaceAllString(text, "\n\n")

	// Trim whitespace
	text = strings.TrimSpace(text)

	return text
}

// maxBatchConcurrency limits concurrent extractions in ExtractBatch.
const maxBatchConcurrency = 5

// ExtractBatch extracts content from multiple URLs concurrently with a concurrency limit.
func (e *ContentExtractor) ExtractBatch(ctx context.Context, urls []string) map[string]string {
	results := make(map[string]string)
	resultsChan := make(chan struct {
		url     string
		content string
	}, len(urls))

	// Use semaphore to limit concurrency
	sem := make(chan struct{}, maxBatchConcurrency)

	// Extract concurrently with limit
	for _, u := range urls {
		sem <- struct{}{} // Acquire semaphore slot
		go func(targetURL string) {
			defer func() { <-sem }() // Release semaphore slot
			content, err := e.Extract(ctx, targetURL)
			if err == nil {
				resultsChan <- struct {
					url     string
					content string
				}{targetURL, content}
			} else {
				resultsChan <- struct {
					url     string
					content string
				}{targetURL, ""}
			}
		}(u)
	}

	// Collect results
	for i := 0; i < len(urls); i++ {
		result := <-resultsChan
		if result.content != "" {
			results[result.url] = result.content
		}
	}

	return results
}
