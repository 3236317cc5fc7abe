// Package mcp implements the MCP tool factory from spec §4.7: given
// {name, url, func_name, headers, parameters}, it builds a tools.Tool
// whose Run POSTs {"function": func_name, "args": kwargs} to url, guarded
// by a hostname allowlist, a per-URL circuit breaker, and a per-tool RPM
// limiter.
//
// This is deliberately distinct from the teacher's internal/mcp package,
// which implements the full JSON-RPC Model Context Protocol (stdio/HTTP
// transports, tools/resources/prompts, sampling) — a different and much
// larger protocol than the HTTP-POST "MCP tool" the spec describes. That
// package's circuit-breaker/retry texture is reused here (see
// internal/tools/circuit), but its JSON-RPC client/transport code has no
// role in this factory.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shannon-run/llm-gateway/internal/gwerrors"
	"github.com/shannon-run/llm-gateway/internal/net/ssrf"
	"github.com/shannon-run/llm-gateway/internal/tools"
	"github.com/shannon-run/llm-gateway/internal/tools/circuit"
	"golang.org/x/time/rate"
)

// DefaultMaxResponseBytes bounds a single MCP tool response body (mirrors
// the OpenAPI factory's 10 MiB default, spec §4.7).
const DefaultMaxResponseBytes = 10 << 20

// DefaultRetries is the exponential-backoff retry budget shared with the
// OpenAPI factory.
const DefaultRetries = 3

// DefaultRPM is the per-tool in-process rate limit when the entry does not
// override it (spec §4.7: "Per-tool in-process RPM limiter (default 60)").
const DefaultRPM = 60

// MaxRedirects caps redirect chains for MCP tool requests (spec §4.7).
const MaxRedirects = 10

// Entry declares one MCP-backed tool (mirrors config.MCPToolEntry).
type Entry struct {
	Name        string
	URL         string
	FuncName    string
	Description string
	Headers     map[string]string
	Parameters  []tools.ToolParameter
	RateLimit   int
}

// Factory builds MCP tools shared allowlist/breaker/limiter state.
type Factory struct {
	allowedDomains   []string
	breakers         *circuit.Registry
	httpClient       *http.Client
	maxResponseBytes int64
	retries          int
}

// FactoryOptions configures a Factory; zero values take spec defaults.
type FactoryOptions struct {
	AllowedDomains   []string
	MaxResponseBytes int64
	Retries          int
	Timeout          time.Duration
	CircuitThreshold int
	CircuitRecovery  time.Duration
}

func NewFactory(opts FactoryOptions) *Factory {
	maxBytes := opts.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxResponseBytes
	}
	retries := opts.Retries
	if retries <= 0 {
		retries = DefaultRetries
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Factory{
		allowedDomains:   opts.AllowedDomains,
		breakers:         circuit.NewRegistry(circuit.Options{Threshold: opts.CircuitThreshold, Recovery: opts.CircuitRecovery}),
		httpClient:       &http.Client{Timeout: timeout, CheckRedirect: ssrf.CheckRedirect(MaxRedirects)},
		maxResponseBytes: maxBytes,
		retries:          retries,
	}
}

// Build constructs a tools.Tool for entry, validating the URL's hostname
// against the allowlist (but not dialing it — that only happens per call,
// since the allowlist/SSRF check must run on every request in case of
// DNS rebinding between registration and execution).
func (f *Factory) Build(entry Entry) (tools.Tool, error) {
	parsed, err := parseHTTPURL(entry.URL)
	if err != nil {
		return nil, err
	}
	if !hostAllowed(parsed.Hostname(), f.allowedDomains) {
		return nil, &gwerrors.Error{Kind: gwerrors.KindSSRFBlocked, Host: parsed.Hostname(), Message: "host not in MCP_ALLOWED_DOMAINS"}
	}

	rpm := entry.RateLimit
	if rpm <= 0 {
		rpm = DefaultRPM
	}

	return &mcpTool{
		factory: f,
		entry:   entry,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
	}, nil
}

type mcpTool struct {
	factory *Factory
	entry   Entry
	limiter *rate.Limiter
}

func (t *mcpTool) Metadata() tools.Metadata {
	return tools.Metadata{
		Name:        t.entry.Name,
		Description: t.entry.Description,
		Category:    "mcp",
		RateLimit:   100, // the registry's own per-session pipeline check is bypassed; the RPM limiter below enforces throughput instead
	}
}

func (t *mcpTool) Parameters() []tools.ToolParameter { return t.entry.Parameters }

func (t *mcpTool) Run(ctx context.Context, sess *tools.SessionContext, obs tools.Observer, params map[string]any) (tools.Result, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return tools.Result{}, &gwerrors.Error{Kind: gwerrors.KindRateLimit, Message: "mcp tool rate limit: " + err.Error()}
	}

	parsed, err := parseHTTPURL(t.entry.URL)
	if err != nil {
		return tools.Result{}, err
	}
	// Re-validate on every call, not just at registration: DNS can rebind
	// between Build and Run (spec §4.7 security invariants).
	if !hostAllowed(parsed.Hostname(), t.factory.allowedDomains) {
		return tools.Result{}, &gwerrors.Error{Kind: gwerrors.KindSSRFBlocked, Host: parsed.Hostname(), Message: "host not in MCP_ALLOWED_DOMAINS"}
	}
	if err := ssrf.ValidatePublicHostname(parsed.Hostname()); err != nil {
		return tools.Result{}, &gwerrors.Error{Kind: gwerrors.KindSSRFBlocked, Host: parsed.Hostname(), Cause: err, Message: "mcp target blocked by ssrf policy"}
	}
	breakerKey := parsed.String()
	if !t.factory.breakers.Allow(breakerKey) {
		return tools.Result{}, &gwerrors.Error{Kind: gwerrors.KindCircuitOpen, Host: parsed.Hostname(), Message: "mcp tool circuit open: " + gwerrors.Sanitize(parsed.String())}
	}

	body, err := json.Marshal(map[string]any{"function": t.entry.FuncName, "args": params})
	if err != nil {
		return tools.Result{}, err
	}

	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt <= t.factory.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return tools.Result{}, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		result, err := t.doRequest(ctx, parsed, body)
		if err == nil {
			t.factory.breakers.RecordSuccess(breakerKey)
			return result, nil
		}
		lastErr = err
		if !gwerrors.IsRetryable(err) {
			break
		}
	}
	t.factory.breakers.RecordFailure(breakerKey)
	return tools.Result{}, lastErr
}

func (t *mcpTool) doRequest(ctx context.Context, target *url.URL, body []byte) (tools.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return tools.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range t.entry.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.factory.httpClient.Do(req)
	if err != nil {
		return tools.Result{}, &gwerrors.Error{Kind: gwerrors.KindRateLimit, Message: "mcp request failed: " + gwerrors.Sanitize(err.Error())}
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, t.factory.maxResponseBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return tools.Result{}, err
	}
	if int64(len(data)) > t.factory.maxResponseBytes {
		return tools.Result{}, fmt.Errorf("mcp response exceeds %d bytes", t.factory.maxResponseBytes)
	}
	if resp.StatusCode >= 300 {
		return tools.Result{}, (&gwerrors.Error{Message: "mcp tool returned status"}).WithStatus(resp.StatusCode)
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		parsed = string(data)
	}
	return tools.Result{Success: true, Output: parsed}, nil
}

func parseHTTPURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	return u, nil
}

func hostAllowed(host string, allowed []string) bool {
	host = strings.ToLower(host)
	for _, domain := range allowed {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
