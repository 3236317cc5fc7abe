package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shannon-run/llm-gateway/internal/gwerrors"
)

// rateLimitDisableThreshold is the spec §4.7 step 3 cutoff: a tool with
// rate_limit >= 100 skips rate limiting entirely ("allow parallel
// agents").
const rateLimitDisableThreshold = 100

// registeredTool pairs a Tool with the bookkeeping the pipeline needs
// around it (its execution tracker), so the tracker survives across calls
// without living on the Tool implementation itself.
type registeredTool struct {
	tool    Tool
	tracker *executionTracker
}

// Registry is the tool registry from spec §3/§4.7: name-unique Tool
// singletons, each wrapped with its own execution tracker. Grounded on the
// teacher's internal/agent.ToolRegistry shape (mutex-guarded map,
// Register/Get/AsLLMTools) but owns the pipeline steps the teacher left to
// the agent Runtime.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*registeredTool)}
}

// Register adds tool under its own Metadata().Name. override=false refuses
// to replace an existing registration of the same name (spec §4.7
// "Registration... name-unique; override=true replaces").
func (r *Registry) Register(tool Tool, override bool) error {
	name := tool.Metadata().Name
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists && !override {
		return fmt.Errorf("tool already registered: %s", name)
	}
	r.tools[name] = &registeredTool{tool: tool, tracker: newExecutionTracker()}
	return nil
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return rt.tool, true
}

// List returns every registered tool's metadata, sorted by name.
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Metadata, 0, len(r.tools))
	for _, rt := range r.tools {
		out = append(out, rt.tool.Metadata())
	}
	sortMetadataByName(out)
	return out
}

// Execute runs the uniform five-step pipeline from spec §4.7 against the
// named tool: coercion, validation, rate-limit check, dispatch, finalise.
// sessionKey is the session_id, or a caller-supplied thread-id fallback
// when no session is present.
func (r *Registry) Execute(ctx context.Context, name string, sessionKey string, sess *SessionContext, obs Observer, rawParams map[string]any) (Result, error) {
	r.mu.RLock()
	rt, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, &gwerrors.Error{Kind: gwerrors.KindToolExecution, Message: "tool not found: " + name}
	}

	meta := rt.tool.Metadata()

	// Steps 1-2: coercion + validation.
	params, err := coerceAndValidate(rt.tool.Parameters(), rawParams)
	if err != nil {
		return Result{}, &gwerrors.Error{Kind: gwerrors.KindToolValidation, Message: err.Error()}
	}

	// Step 3: rate-limit check, only enforced below the disable threshold.
	if meta.RateLimit > 0 && meta.RateLimit < rateLimitDisableThreshold {
		key := sessionKey
		if key == "" {
			key = "default"
		}
		minInterval := time.Duration(float64(time.Minute) / float64(meta.RateLimit))
		if !rt.tracker.allow(key, minInterval) {
			return Result{}, &gwerrors.Error{Kind: gwerrors.KindRateLimit, Message: fmt.Sprintf("tool %s rate limit exceeded (min interval %s)", name, minInterval)}
		}
	}

	// Step 4: dispatch. session_context is only meaningful for
	// session_aware tools, but passing it unconditionally is harmless
	// since non-aware tools are expected to ignore it.
	if obs == nil {
		obs = NopObserver{}
	}
	start := time.Now()
	if meta.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(meta.TimeoutSeconds)*time.Second)
		defer cancel()
	}
	result, err := rt.tool.Run(ctx, sess, obs, params)

	// Step 5: finalise.
	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	if err != nil {
		if result.Error == "" {
			result.Error = err.Error()
		}
		result.Success = false
		return result, err
	}
	return result, nil
}

func sortMetadataByName(m []Metadata) {
	sort.Slice(m, func(i, j int) bool { return m[i].Name < m[j].Name })
}
