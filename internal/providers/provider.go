// Package providers implements the provider abstraction (spec §4.1): a
// single capability contract plus per-vendor adapters, with the headroom
// clamp and token-count heuristic implemented once as shared helpers rather
// than duplicated on every vendor (per the design notes in SPEC_FULL.md).
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shannon-run/llm-gateway/internal/gwtypes"
)

// Provider is the capability contract every vendor adapter implements.
// Complete must return a fully-populated CompletionResponse; StreamComplete
// produces a lazy sequence of text deltas optionally terminated by one
// usage-metadata delta (spec §4.1, §5 ordering guarantees).
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *gwtypes.CompletionRequest, model gwtypes.ModelConfig) (*gwtypes.CompletionResponse, error)
	StreamComplete(ctx context.Context, req *gwtypes.CompletionRequest, model gwtypes.ModelConfig) (<-chan gwtypes.StreamDelta, error)
	CountTokens(req *gwtypes.CompletionRequest) int
	ListModels() []gwtypes.ModelConfig
	EstimateCost(usage gwtypes.TokenUsage, model gwtypes.ModelConfig) float64
}

// EmbeddingProvider is implemented by providers that can additionally
// generate embeddings (spec §4.5 generate_embedding).
type EmbeddingProvider interface {
	GenerateEmbedding(ctx context.Context, text string, model string) ([]float64, error)
}

// ResolveModelConfig implements spec §4.1's resolve_model_config rules:
//  1. strip a "vendor:" prefix if present,
//  2. direct lookup by alias, else linear match by vendor model_id,
//  3. if no model was requested, pick the first model in the tier.
func ResolveModelConfig(models []gwtypes.ModelConfig, requested string, tier gwtypes.ModelTier) (gwtypes.ModelConfig, error) {
	if requested != "" {
		if idx := strings.Index(requested, ":"); idx >= 0 {
			requested = requested[idx+1:]
		}
		for _, m := range models {
			if m.Alias == requested {
				return m, nil
			}
		}
		for _, m := range models {
			if m.ModelID == requested {
				return m, nil
			}
		}
		return gwtypes.ModelConfig{}, fmt.Errorf("model %q not available for provider", requested)
	}

	for _, m := range models {
		if m.Tier == tier {
			return m, nil
		}
	}
	return gwtypes.ModelConfig{}, fmt.Errorf("no model configured for tier %q", tier)
}

// EstimateTokens implements the fallback token heuristic (spec §4.1):
// ceil(sum(len(content_chars))/3.5) + 4*len(messages), plus
// ceil(len(json(functions))/3.5) when functions are present. Vendor-native
// counters should be preferred when available; this is the shared fallback
// every provider may call.
func EstimateTokens(req *gwtypes.CompletionRequest) int {
	chars := 0
	for _, m := range req.Messages {
		chars += len(m.Content.AsText())
	}
	total := int(math.Ceil(float64(chars)/3.5)) + 4*len(req.Messages)
	if len(req.Functions) > 0 {
		if payload, err := json.Marshal(req.Functions); err == nil {
			total += int(math.Ceil(float64(len(payload)) / 3.5))
		}
	}
	return total
}

// ErrInsufficientHeadroom is returned by ClampMaxTokens when the computed
// headroom is non-positive.
type ErrInsufficientHeadroom struct {
	PromptTokens  int
	ContextWindow int
}

func (e *ErrInsufficientHeadroom) Error() string {
	return fmt.Sprintf("insufficient context window: prompt_tokens=%d context_window=%d margin=256", e.PromptTokens, e.ContextWindow)
}

const headroomSafetyMargin = 256

// ClampMaxTokens implements spec §4.1's headroom clamp:
//
//	adjusted_max = max(1, min(requested_max, model.max_tokens, model.context_window - prompt_tokens_estimate - 256))
//
// It never silently truncates: a non-positive headroom is a hard failure.
func ClampMaxTokens(requestedMax int, model gwtypes.ModelConfig, promptTokensEstimate int) (int, error) {
	headroom := model.ContextWindow - promptTokensEstimate - headroomSafetyMargin
	if headroom <= 0 {
		return 0, &ErrInsufficientHeadroom{PromptTokens: promptTokensEstimate, ContextWindow: model.ContextWindow}
	}
	adjusted := requestedMax
	if adjusted <= 0 || adjusted > model.MaxTokens {
		adjusted = model.MaxTokens
	}
	if adjusted > headroom {
		adjusted = headroom
	}
	if adjusted < 1 {
		adjusted = 1
	}
	return adjusted, nil
}

// DefaultCost is the shared cost estimator: usage * model's per-1k prices.
func DefaultCost(usage gwtypes.TokenUsage, model gwtypes.ModelConfig) float64 {
	return float64(usage.InputTokens)/1000*model.InputPricePer1K + float64(usage.OutputTokens)/1000*model.OutputPricePer1K
}
