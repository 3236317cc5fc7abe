// Package router implements the Manager (spec §4.5): the composition root
// that ties together provider selection, caching, rate limiting, budget
// enforcement, and fallback. It is grounded on the teacher's
// internal/agent/failover.go (ProviderState/circuit-breaker health
// tracking) and internal/agent/routing/router.go (preference-list
// candidate selection), generalised from a single retry orchestrator into
// the full complete() pipeline the spec describes.
package router

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shannon-run/llm-gateway/internal/budget"
	"github.com/shannon-run/llm-gateway/internal/events"
	"github.com/shannon-run/llm-gateway/internal/gwcache"
	"github.com/shannon-run/llm-gateway/internal/gwerrors"
	"github.com/shannon-run/llm-gateway/internal/gwtypes"
	"github.com/shannon-run/llm-gateway/internal/providers"
	"github.com/shannon-run/llm-gateway/internal/ratelimit"
)

// DefaultCacheTTL is used when a request does not specify cache_ttl.
const DefaultCacheTTL = 5 * time.Minute

// circuitBreakerThreshold/Timeout mirror the teacher's FailoverConfig
// defaults, adapted to the spec's fallback rule of "at most one fallback"
// rather than walking an arbitrary provider chain.
const (
	circuitBreakerThreshold = 5
	circuitBreakerTimeout   = 60 * time.Second
)

// registry is the read-mostly snapshot Manager.reload() swaps in
// atomically (spec §5 shared-resource policy: readers see the old or new
// registry, never a half-built one).
type registry struct {
	providers       map[string]providers.Provider // provider name -> adapter
	tierPreferences map[gwtypes.ModelTier][]string // "provider:alias" entries, already priority-sorted
	defaultProvider string
}

// providerHealth is the circuit-breaker bookkeeping for one provider.
type providerHealth struct {
	mu            sync.Mutex
	failures      int
	circuitOpen   bool
	circuitOpenAt time.Time
}

func (h *providerHealth) available() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.circuitOpen {
		return true
	}
	return time.Since(h.circuitOpenAt) > circuitBreakerTimeout
}

func (h *providerHealth) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = 0
	h.circuitOpen = false
}

func (h *providerHealth) recordFailure(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures++
	if h.failures >= circuitBreakerThreshold {
		h.circuitOpen = true
		h.circuitOpenAt = now
	}
}

// Manager is the gateway's composition root.
type Manager struct {
	reg atomic.Pointer[registry]

	cache           *gwcache.Cache
	cacheEnabled    bool
	defaultCacheTTL time.Duration

	limiters sync.Map // provider name -> *ratelimit.SlidingWindow
	health   sync.Map // provider name -> *providerHealth

	ledger *budget.Ledger
	events *events.Emitter

	now func() time.Time
}

// Config builds the initial (or reloaded) registry.
type Config struct {
	Providers       map[string]providers.Provider
	TierPreferences map[gwtypes.ModelTier][]string
	DefaultProvider string
	RequestsPerMinutePerProvider int
	CacheEnabled    bool
	CacheMaxSize    int
	DefaultCacheTTL time.Duration
}

func New(cfg Config, ledger *budget.Ledger, emitter *events.Emitter) *Manager {
	ttl := cfg.DefaultCacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	m := &Manager{
		cache:           gwcache.New(gwcache.Options{MaxSize: cfg.CacheMaxSize}),
		cacheEnabled:    cfg.CacheEnabled,
		defaultCacheTTL: ttl,
		ledger:          ledger,
		events:          emitter,
		now:             time.Now,
	}
	m.reg.Store(buildRegistry(cfg))
	rpm := cfg.RequestsPerMinutePerProvider
	for name := range cfg.Providers {
		m.limiters.Store(name, ratelimit.NewSlidingWindow(rpm))
		m.health.Store(name, &providerHealth{})
	}
	return m
}

func buildRegistry(cfg Config) *registry {
	return &registry{
		providers:       cfg.Providers,
		tierPreferences: cfg.TierPreferences,
		defaultProvider: cfg.DefaultProvider,
	}
}

// Reload re-parses configuration (via build, supplied by the caller since
// config loading lives in internal/config) and atomically swaps the
// registry. In-flight requests keep using the snapshot they already read.
func (m *Manager) Reload(cfg Config) {
	m.reg.Store(buildRegistry(cfg))
	for name := range cfg.Providers {
		if _, ok := m.limiters.Load(name); !ok {
			m.limiters.Store(name, ratelimit.NewSlidingWindow(cfg.RequestsPerMinutePerProvider))
		}
		if _, ok := m.health.Load(name); !ok {
			m.health.Store(name, &providerHealth{})
		}
	}
}

// candidate is one resolved (provider, model) choice to try.
type candidate struct {
	providerName string
	provider     providers.Provider
	model        gwtypes.ModelConfig
}

// resolveCandidates implements step 3 of complete(): walk the preference
// list for the tier, preferring "provider:alias" entries whose alias
// exists on that provider; otherwise fall back to the default provider,
// then to any provider claiming the tier. provider_override, when set,
// is honoured exclusively.
func (r *registry) resolveCandidates(req *gwtypes.CompletionRequest) ([]candidate, error) {
	tier := req.EffectiveTier()

	if req.ProviderOverride != "" {
		p, ok := r.providers[req.ProviderOverride]
		if !ok {
			return nil, fmt.Errorf("provider_override %q is not configured", req.ProviderOverride)
		}
		model, err := providers.ResolveModelConfig(p.ListModels(), req.Model, tier)
		if err != nil {
			return nil, err
		}
		return []candidate{{providerName: req.ProviderOverride, provider: p, model: model}}, nil
	}

	var out []candidate
	seen := make(map[string]bool)

	for _, pref := range r.tierPreferences[tier] {
		providerName, alias, hasAlias := strings.Cut(pref, ":")
		p, ok := r.providers[providerName]
		if !ok || seen[providerName] {
			continue
		}
		requested := ""
		if hasAlias {
			requested = alias
			if _, err := providers.ResolveModelConfig(p.ListModels(), alias, tier); err != nil {
				continue
			}
		}
		model, err := providers.ResolveModelConfig(p.ListModels(), requested, tier)
		if err != nil {
			continue
		}
		out = append(out, candidate{providerName: providerName, provider: p, model: model})
		seen[providerName] = true
	}

	if len(out) == 0 && r.defaultProvider != "" {
		if p, ok := r.providers[r.defaultProvider]; ok && !seen[r.defaultProvider] {
			if model, err := providers.ResolveModelConfig(p.ListModels(), req.Model, tier); err == nil {
				out = append(out, candidate{providerName: r.defaultProvider, provider: p, model: model})
				seen[r.defaultProvider] = true
			}
		}
	}

	if len(out) == 0 {
		for name, p := range r.providers {
			if seen[name] {
				continue
			}
			if model, err := providers.ResolveModelConfig(p.ListModels(), req.Model, tier); err == nil {
				out = append(out, candidate{providerName: name, provider: p, model: model})
				seen[name] = true
			}
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no provider configured for tier %q", tier)
	}
	return out, nil
}

// mockResponse is returned by Complete when no providers are configured at
// all, so offline development can proceed (spec §4.6).
func mockResponse(req *gwtypes.CompletionRequest) *gwtypes.CompletionResponse {
	words := 0
	for _, m := range req.Messages {
		words += len(strings.Fields(m.Content.AsText()))
	}
	return &gwtypes.CompletionResponse{
		Content:      "[mock response: no providers configured]",
		Model:        "mock",
		Provider:     "mock",
		FinishReason: "stop",
		Usage:        gwtypes.NewTokenUsage(words, 8, 0),
	}
}

// Complete implements spec §4.5's 8-step complete() algorithm.
func (m *Manager) Complete(ctx context.Context, req *gwtypes.CompletionRequest) (*gwtypes.CompletionResponse, error) {
	reg := m.reg.Load()
	if reg == nil || len(reg.providers) == 0 {
		return mockResponse(req), nil
	}

	var fingerprint string
	if m.cacheEnabled && !req.Stream {
		fingerprint = gwtypes.Fingerprint(req)
		if cached, ok := m.cache.Get(fingerprint); ok {
			m.emitUsageEvents(req, &cached)
			return &cached, nil
		}
	}

	if req.SessionID != "" {
		if err := m.ledger.Check(req.SessionID, req.MaxTokensBudget); err != nil {
			return nil, err
		}
	}

	candidates, err := reg.resolveCandidates(req)
	if err != nil {
		return nil, gwerrors.New("router", "", err).WithKind(gwerrors.KindConfig)
	}

	var lastErr error
	var resp *gwtypes.CompletionResponse
	attempts := 0
	const maxAttempts = 2 // spec §4.5 step 6: at most one fallback

	for _, cand := range candidates {
		if attempts >= maxAttempts {
			break
		}
		h, _ := m.health.LoadOrStore(cand.providerName, &providerHealth{})
		health := h.(*providerHealth)
		if !health.available() {
			continue
		}

		if lim, ok := m.limiters.Load(cand.providerName); ok {
			if err := lim.(*ratelimit.SlidingWindow).Acquire(ctx); err != nil {
				lastErr = err
				break
			}
		}

		attempts++
		r, err := cand.provider.Complete(ctx, req, cand.model)
		if err != nil {
			lastErr = err
			health.recordFailure(m.now())
			if !gwerrors.ShouldFailover(err) {
				break
			}
			continue
		}
		health.recordSuccess()
		resp = r
		break
	}

	if resp == nil {
		if lastErr == nil {
			lastErr = fmt.Errorf("no provider could complete the request")
		}
		return nil, lastErr
	}

	if req.SessionID != "" || req.TaskID != "" {
		m.ledger.Record(req.SessionID, req.TaskID, resp.Usage)
	}

	if m.cacheEnabled && !req.Stream && fingerprint != "" {
		ttl := m.defaultCacheTTL
		if req.CacheTTLSeconds > 0 {
			ttl = time.Duration(req.CacheTTLSeconds) * time.Second
		}
		m.cache.Set(fingerprint, *resp, ttl)
	}

	m.emitUsageEvents(req, resp)
	return resp, nil
}

func (m *Manager) emitUsageEvents(req *gwtypes.CompletionRequest, resp *gwtypes.CompletionResponse) {
	if m.events == nil || req.WorkflowID == "" {
		return
	}
	m.events.EmitCompletion(req, resp)
}

// GenerateEmbedding prefers the OpenAI-backed provider; otherwise any
// provider that implements EmbeddingProvider (spec §4.5).
func (m *Manager) GenerateEmbedding(ctx context.Context, text string, model string) ([]float64, error) {
	reg := m.reg.Load()
	if reg == nil {
		return nil, fmt.Errorf("no providers configured")
	}
	if p, ok := reg.providers["openai"]; ok {
		if emb, ok := p.(providers.EmbeddingProvider); ok {
			return emb.GenerateEmbedding(ctx, text, model)
		}
	}
	for _, p := range reg.providers {
		if emb, ok := p.(providers.EmbeddingProvider); ok {
			return emb.GenerateEmbedding(ctx, text, model)
		}
	}
	return nil, fmt.Errorf("no provider supports embeddings")
}

// UsageReport is the snapshot returned by get_usage_report.
type UsageReport struct {
	SessionUsage gwtypes.TokenUsage `json:"session_usage,omitempty"`
	TaskUsage    gwtypes.TokenUsage `json:"task_usage,omitempty"`
	CacheHitRate float64            `json:"cache_hit_rate"`
}

func (m *Manager) UsageReport(sessionID, taskID string) UsageReport {
	return UsageReport{
		SessionUsage: m.ledger.SessionUsage(sessionID),
		TaskUsage:    m.ledger.TaskUsage(taskID),
		CacheHitRate: m.cache.HitRate(),
	}
}

// CompleteText is the small-tier text-completion adapter the heuristic HTTP
// handlers (§4.6 /analyze, /analyze_task, /context/compress) and the tool
// selector (§4.7 /tools/select) share: one system/user turn against the
// small tier, returning plain text. Callers fall back to their own
// heuristic when this returns an error.
func (m *Manager) CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := &gwtypes.CompletionRequest{
		Messages: []gwtypes.Message{
			{Role: gwtypes.RoleSystem, Content: gwtypes.NewTextContent(systemPrompt)},
			{Role: gwtypes.RoleUser, Content: gwtypes.NewTextContent(userPrompt)},
		},
		ModelTier: gwtypes.TierSmall,
	}
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// ListModels returns the live registry, optionally filtered by tier.
func (m *Manager) ListModels(tier gwtypes.ModelTier) map[string][]gwtypes.ModelConfig {
	reg := m.reg.Load()
	out := make(map[string][]gwtypes.ModelConfig)
	if reg == nil {
		return out
	}
	for name, p := range reg.providers {
		var models []gwtypes.ModelConfig
		for _, model := range p.ListModels() {
			if tier == "" || model.Tier == tier {
				models = append(models, model)
			}
		}
		out[name] = models
	}
	return out
}
