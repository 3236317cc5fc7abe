// Command llm-gateway is the composition root: it loads configuration,
// builds the provider registry, router, tool registry, and mounts the
// HTTP surface, following the teacher's cmd/nexus handlers_serve.go
// pattern (slog setup, config.Load, signal.NotifyContext shutdown).
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shannon-run/llm-gateway/internal/budget"
	"github.com/shannon-run/llm-gateway/internal/config"
	"github.com/shannon-run/llm-gateway/internal/events"
	"github.com/shannon-run/llm-gateway/internal/httpapi"
	"github.com/shannon-run/llm-gateway/internal/providers"
	"github.com/shannon-run/llm-gateway/internal/router"
	"github.com/shannon-run/llm-gateway/internal/tools"
	"github.com/shannon-run/llm-gateway/internal/tools/builtin"
	"github.com/shannon-run/llm-gateway/internal/tools/firecrawl"
	"github.com/shannon-run/llm-gateway/internal/tools/ga4"
	"github.com/shannon-run/llm-gateway/internal/tools/mcp"
	"github.com/shannon-run/llm-gateway/internal/tools/openapi"
	"github.com/shannon-run/llm-gateway/internal/tools/websearch"
)

func main() {
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	debug := os.Getenv("GATEWAY_DEBUG") != ""
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, configPath); err != nil {
		slog.Error("gateway exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("configuration loaded",
		"http_port", cfg.Server.HTTPPort,
		"providers", len(cfg.Providers),
		"default_provider", cfg.DefaultProvider,
	)

	providerMap, err := buildProviders(cfg.Providers)
	if err != nil {
		return fmt.Errorf("failed to build providers: %w", err)
	}

	ledger := budget.NewLedger()
	emitter := events.NewEmitter(buildEventSink(), 0, slog.Default())

	manager := router.New(router.Config{
		Providers:                    providerMap,
		TierPreferences:              cfg.TierPreferences,
		DefaultProvider:              cfg.DefaultProvider,
		RequestsPerMinutePerProvider: requestsPerMinuteFromEnv(),
		CacheEnabled:                 cfg.CacheEnabled,
		CacheMaxSize:                 cfg.CacheMaxSize,
		DefaultCacheTTL:              cfg.DefaultCacheTTL,
	}, ledger, emitter)

	registry := tools.NewRegistry()
	if err := registerTools(ctx, registry, cfg); err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}
	selector := tools.NewSelector(registry)

	mcpFactory := mcp.NewFactory(mcp.FactoryOptions{AllowedDomains: allowedMCPDomains()})
	openapiFactory := openapi.NewFactory(openapi.FactoryOptions{ResolveEnv: os.Getenv})
	if err := registerConfiguredTools(registry, cfg, mcpFactory, openapiFactory); err != nil {
		return fmt.Errorf("failed to register configured tools: %w", err)
	}

	server := &httpapi.Server{
		Router:   manager,
		Registry: registry,
		Selector: selector,
		MCP:      mcpFactory,
		OpenAPI:  openapiFactory,
		Logger:   slog.Default(),
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Mount(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("llm-gateway listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, initiating graceful shutdown")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	slog.Info("llm-gateway stopped gracefully")
	return nil
}

// buildProviders constructs one providers.Provider per resolved entry,
// dispatching on Type the way config.ResolvedProvider declares it (spec
// §4.1's provider adapter family).
func buildProviders(resolved []config.ResolvedProvider) (map[string]providers.Provider, error) {
	out := make(map[string]providers.Provider, len(resolved))
	for _, p := range resolved {
		var (
			provider providers.Provider
			err      error
		)
		switch strings.ToLower(p.Type) {
		case "anthropic":
			provider, err = providers.NewAnthropicProvider(providers.AnthropicConfig{APIKey: p.APIKey, BaseURL: p.BaseURL, Models: p.Models})
		case "openai":
			provider, err = providers.NewOpenAIProvider(providers.OpenAIConfig{APIKey: p.APIKey, BaseURL: p.BaseURL, Models: p.Models})
		case "google", "gemini":
			provider, err = providers.NewGoogleProvider(providers.GoogleConfig{APIKey: p.APIKey, Models: p.Models})
		case "xai", "grok":
			provider, err = providers.NewXAIProvider(providers.XAIConfig{APIKey: p.APIKey, BaseURL: p.BaseURL, Models: p.Models, LiveSearch: os.Getenv("XAI_LIVE_SEARCH") != ""})
		case "openai_compatible", "compatible", "":
			provider, err = providers.NewCompatibleProvider(providers.CompatibleConfig{Vendor: p.Name, APIKey: p.APIKey, BaseURL: p.BaseURL, Models: p.Models})
		default:
			err = fmt.Errorf("unknown provider type %q for provider %q", p.Type, p.Name)
		}
		if err != nil {
			return nil, err
		}
		out[p.Name] = provider
	}
	return out, nil
}

// buildEventSink wires spec §4.8's optional outbound event sink: an HTTP
// POST target when EVENTS_INGEST_URL is set, otherwise a no-op.
func buildEventSink() events.Sink {
	url := os.Getenv("EVENTS_INGEST_URL")
	if url == "" {
		return events.NopSink{}
	}
	return events.NewHTTPSink(url, os.Getenv("EVENTS_INGEST_TOKEN"))
}

func requestsPerMinuteFromEnv() int {
	return 600
}

func allowedMCPDomains() []string {
	raw := os.Getenv("MCP_ALLOWED_DOMAINS")
	if raw == "" {
		return nil
	}
	return splitAndTrim(raw)
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// registerTools wires the fixed built-in tool set (spec §4.7), optionally
// extended with web_search/web_subpage_fetch/web_crawl/bash/python_executor
// depending on which backing services are configured via environment.
func registerTools(ctx context.Context, registry *tools.Registry, cfg *config.ResolvedConfig) error {
	builtinCfg := builtin.Config{
		Workspace:      workspaceFromEnv(),
		BashAllowed:    splitAndTrim(os.Getenv("BASH_ALLOWED_COMMANDS")),
		PythonCoreAddr: os.Getenv("AGENT_CORE_ADDR"),
		EnableBash:     cfg.Sandbox.Enabled,
		EnablePython:   os.Getenv("AGENT_CORE_ADDR") != "",
	}

	if searxng, brave := os.Getenv("SEARXNG_URL"), os.Getenv("BRAVE_API_KEY"); searxng != "" || brave != "" {
		extractor := websearch.NewContentExtractor()
		builtinCfg.Extractor = extractor
		builtinCfg.Search = websearch.NewWebSearchTool(&websearch.Config{
			SearXNGURL:         searxng,
			BraveAPIKey:        brave,
			DefaultBackend:     websearch.BackendSearXNG,
			ExtractContent:     true,
			DefaultResultCount: 10,
			CacheTTL:           300,
		})
	} else {
		builtinCfg.Extractor = websearch.NewContentExtractor()
	}

	if apiKey := os.Getenv("FIRECRAWL_API_KEY"); apiKey != "" {
		builtinCfg.Firecrawl = firecrawl.NewClient(apiKey)
	}

	if err := builtin.Register(registry, builtinCfg); err != nil {
		return err
	}

	if cfg.GA4.Enabled {
		tool, err := ga4.NewRunReportTool(ctx, []byte(cfg.GA4.ServiceAccountJSON), cfg.GA4.PropertyID)
		if err != nil {
			return fmt.Errorf("ga4: %w", err)
		}
		if err := registry.Register(tool, true); err != nil {
			return err
		}
	}
	return nil
}

func workspaceFromEnv() string {
	if ws := os.Getenv("GATEWAY_WORKSPACE"); ws != "" {
		return ws
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}

// registerConfiguredTools builds the statically-declared mcp_tools and
// openapi_tools entries from config (spec §4.7), in addition to whatever
// gets registered at runtime via /tools/mcp/register and
// /tools/openapi/register.
func registerConfiguredTools(registry *tools.Registry, cfg *config.ResolvedConfig, mcpFactory *mcp.Factory, openapiFactory *openapi.Factory) error {
	for name, entry := range cfg.MCPTools {
		params := make([]tools.ToolParameter, 0, len(entry.Parameters))
		for _, p := range entry.Parameters {
			params = append(params, tools.ToolParameter{
				Name: p.Name, Type: tools.ParamType(p.Type), Required: p.Required,
				Default: p.Default, Enum: p.Enum, Min: p.Min, Max: p.Max, Pattern: p.Pattern,
			})
		}
		tool, err := mcpFactory.Build(mcp.Entry{
			Name: name, URL: entry.URL, FuncName: entry.FuncName, Description: entry.Description,
			Headers: entry.Headers, Parameters: params, RateLimit: entry.RateLimit,
		})
		if err != nil {
			return fmt.Errorf("mcp tool %s: %w", name, err)
		}
		if err := registry.Register(tool, true); err != nil {
			return err
		}
	}

	for name, entry := range cfg.OpenAPITools {
		specBytes, err := fetchOpenAPISpec(entry.SpecURL)
		if err != nil {
			return fmt.Errorf("openapi tool %s: %w", name, err)
		}
		built, err := openapiFactory.Build(openapi.Entry{
			BaseURLOverride: entry.BaseURL,
			SpecBytes:       specBytes,
			Operations:      entry.Operations,
			Tags:            entry.Tags,
			Auth: openapi.AuthConfig{
				Type: entry.Auth.Type, Name: entry.Auth.Name, Value: entry.Auth.Value,
				Username: entry.Auth.Username, Password: entry.Auth.Password,
			},
			Headers: entry.Headers,
		})
		if err != nil {
			return fmt.Errorf("openapi tool %s: %w", name, err)
		}
		for _, t := range built {
			if err := registry.Register(t, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// maxOpenAPISpecBytes bounds a fetched OpenAPI document, mirroring the
// capped-response convention the tool factories use for every outbound
// HTTP call.
const maxOpenAPISpecBytes = 10 << 20

func fetchOpenAPISpec(specURL string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, specURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch openapi spec %s: status %d", specURL, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxOpenAPISpecBytes))
}
