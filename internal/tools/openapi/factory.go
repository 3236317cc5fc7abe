package openapi

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
)

// DefaultMaxResponseBytes is the spec §4.7 default response size cap.
const DefaultMaxResponseBytes = 10 << 20

// DefaultRetries is the shared exponential-backoff retry budget.
const DefaultRetries = 3

// MaxRedirects caps redirect chains for operation requests (spec §4.7).
const MaxRedirects = 10

// AuthConfig configures header/query/basic auth injection. Value/Username/
// Password may be "$VARNAME" env references (spec §4.7).
type AuthConfig struct {
	Type     string // "header" | "query" | "basic" | ""
	Name     string
	Value    string
	Username string
	Password string
}

// Entry is one configured openapi_tools document (mirrors
// config.OpenAPIToolEntry plus the already-fetched spec bytes).
type Entry struct {
	BaseURLOverride string
	SpecBytes       []byte
	Operations      []string
	Tags            []string
	Auth            AuthConfig
	Headers         map[string]string
}

// Factory builds tools.Tool values for every retained operation of one
// OpenAPI document.
type Factory struct {
	httpClient       *http.Client
	maxResponseBytes int64
	retries          int
	breakers         *circuit.Registry
	resolveEnv       func(string) string
}

type FactoryOptions struct {
	MaxResponseBytes int64
	Retries          int
	Timeout          time.Duration
	CircuitThreshold int
	CircuitRecovery  time.Duration
	ResolveEnv       func(string) string
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
	resolveEnv := opts.ResolveEnv
	if resolveEnv == nil {
		resolveEnv = func(s string) string { return s }
	}
	return &Factory{
		httpClient:       &http.Client{Timeout: timeout, CheckRedirect: ssrf.CheckRedirect(MaxRedirects)},
		maxResponseBytes: maxBytes,
		retries:          retries,
		breakers:         circuit.NewRegistry(circuit.Options{Threshold: opts.CircuitThreshold, Recovery: opts.CircuitRecovery}),
		resolveEnv:       resolveEnv,
	}
}

// Build parses entry's spec, validates it, resolves and SSRF-checks its
// server URL, and returns one tools.Tool per retained operation.
func (f *Factory) Build(entry Entry) ([]tools.Tool, error) {
	doc, err := ParseDocument(entry.SpecBytes)
	if err != nil {
		return nil, err
	}
	ops, err := doc.Operations(entry.Operations, entry.Tags)
	if err != nil {
		return nil, err
	}

	baseURL := entry.BaseURLOverride
	if baseURL == "" {
		servers := doc.Servers()
		if len(servers) > 0 {
			baseURL = servers[0]
		}
	}
	if baseURL == "" {
		return nil, fmt.Errorf("openapi document declares no server and no base_url override was provided")
	}
	parsedBase, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsedBase.Scheme != "http" && parsedBase.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base url scheme: %s", parsedBase.Scheme)
	}
	if err := ssrf.ValidatePublicHostname(parsedBase.Hostname()); err != nil {
		return nil, &gwerrors.Error{Kind: gwerrors.KindSSRFBlocked, Host: parsedBase.Hostname(), Cause: err, Message: "openapi server blocked by ssrf policy"}
	}

	out := make([]tools.Tool, 0, len(ops))
	for _, op := range ops {
		out = append(out, &openapiTool{
			factory: f,
			baseURL: parsedBase,
			op:      op,
			auth:    entry.Auth,
			headers: entry.Headers,
		})
	}
	return out, nil
}

type openapiTool struct {
	factory *Factory
	baseURL *url.URL
	op      Operation
	auth    AuthConfig
	headers map[string]string
}

func (t *openapiTool) Metadata() tools.Metadata {
	desc := t.op.Description
	if desc == "" {
		desc = t.op.Summary
	}
	return tools.Metadata{
		Name:        sanitizeToolName(t.op.ID),
		Description: desc,
		Category:    "openapi",
		RateLimit:   100, // unbounded in the registry's pipeline; this factory's own circuit breaker is the real throttle
	}
}

func (t *openapiTool) Parameters() []tools.ToolParameter {
	params := make([]tools.ToolParameter, 0, len(t.op.Parameters)+1)
	for _, p := range t.op.Parameters {
		name, _ := p["name"].(string)
		if name == "" {
			continue
		}
		required, _ := p["required"].(bool)
		typ := tools.ParamString
		if schema, ok := p["schema"].(map[string]any); ok {
			if st, ok := schema["type"].(string); ok {
				typ = paramTypeFromSchema(st)
			}
		}
		desc, _ := p["description"].(string)
		params = append(params, tools.ToolParameter{Name: name, Type: typ, Required: required, Description: desc})
	}
	if t.op.RequestBody != nil {
		required, _ := t.op.RequestBody["required"].(bool)
		params = append(params, tools.ToolParameter{Name: "body", Type: tools.ParamObject, Required: required, Description: "request body"})
	}
	return params
}

func paramTypeFromSchema(t string) tools.ParamType {
	switch t {
	case "integer":
		return tools.ParamInteger
	case "number":
		return tools.ParamFloat
	case "boolean":
		return tools.ParamBoolean
	case "array":
		return tools.ParamArray
	case "object":
		return tools.ParamObject
	default:
		return tools.ParamString
	}
}

func (t *openapiTool) Run(ctx context.Context, sess *tools.SessionContext, obs tools.Observer, params map[string]any) (tools.Result, error) {
	target, err := t.buildURL(params)
	if err != nil {
		return tools.Result{}, err
	}
	if err := ssrf.ValidatePublicHostname(target.Hostname()); err != nil {
		return tools.Result{}, &gwerrors.Error{Kind: gwerrors.KindSSRFBlocked, Host: target.Hostname(), Cause: err, Message: "openapi target blocked by ssrf policy"}
	}

	breakerKey := t.baseURL.String()
	if !t.factory.breakers.Allow(breakerKey) {
		return tools.Result{}, &gwerrors.Error{Kind: gwerrors.KindCircuitOpen, Host: t.baseURL.Hostname(), Message: "openapi tool circuit open: " + gwerrors.Sanitize(breakerKey)}
	}

	var bodyBytes []byte
	if body, ok := params["body"]; ok {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return tools.Result{}, err
		}
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
		result, err := t.doRequest(ctx, target, bodyBytes)
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

func (t *openapiTool) buildURL(params map[string]any) (*url.URL, error) {
	path := t.op.Path
	for _, p := range t.op.Parameters {
		name, _ := p["name"].(string)
		in, _ := p["in"].(string)
		if in != "path" {
			continue
		}
		v, ok := params[name]
		if !ok {
			continue
		}
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(fmt.Sprint(v)))
	}

	target := *t.baseURL
	target.Path = strings.TrimSuffix(t.baseURL.Path, "/") + "/" + strings.TrimPrefix(path, "/")

	query := target.Query()
	for _, p := range t.op.Parameters {
		name, _ := p["name"].(string)
		in, _ := p["in"].(string)
		if in != "query" {
			continue
		}
		if v, ok := params[name]; ok {
			query.Set(name, fmt.Sprint(v))
		}
	}
	if t.auth.Type == "query" && t.auth.Name != "" {
		query.Set(t.auth.Name, t.factory.resolveEnv(t.auth.Value))
	}
	target.RawQuery = query.Encode()
	return &target, nil
}

func (t *openapiTool) doRequest(ctx context.Context, target *url.URL, body []byte) (tools.Result, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, t.op.Method, target.String(), reader)
	if err != nil {
		return tools.Result{}, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	switch t.auth.Type {
	case "header":
		if t.auth.Name != "" {
			req.Header.Set(t.auth.Name, t.factory.resolveEnv(t.auth.Value))
		}
	case "basic":
		req.SetBasicAuth(t.factory.resolveEnv(t.auth.Username), t.factory.resolveEnv(t.auth.Password))
	}

	resp, err := t.factory.httpClient.Do(req)
	if err != nil {
		return tools.Result{}, &gwerrors.Error{Kind: gwerrors.KindRateLimit, Message: "openapi request failed: " + gwerrors.Sanitize(err.Error())}
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, t.factory.maxResponseBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return tools.Result{}, err
	}
	if int64(len(data)) > t.factory.maxResponseBytes {
		return tools.Result{}, fmt.Errorf("openapi response exceeds %d bytes", t.factory.maxResponseBytes)
	}
	if resp.StatusCode >= 300 {
		return tools.Result{}, (&gwerrors.Error{Message: "openapi tool returned status"}).WithStatus(resp.StatusCode)
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		parsed = string(data)
	}
	return tools.Result{Success: true, Output: parsed}, nil
}

func sanitizeToolName(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
