package providers

import (
	"encoding/json"
	"testing"

	"github.com/shannon-run/llm-gateway/internal/gwtypes"
)

func testModels() []gwtypes.ModelConfig {
	return []gwtypes.ModelConfig{
		{Provider: "anthropic", ModelID: "claude-haiku", Alias: "fast", Tier: gwtypes.TierSmall, ContextWindow: 200000, MaxTokens: 4096},
		{Provider: "anthropic", ModelID: "claude-sonnet", Alias: "balanced", Tier: gwtypes.TierMedium, ContextWindow: 200000, MaxTokens: 8192},
	}
}

func TestResolveModelConfig(t *testing.T) {
	models := testModels()

	tests := []struct {
		name      string
		requested string
		tier      gwtypes.ModelTier
		wantID    string
		wantErr   bool
	}{
		{name: "alias match", requested: "fast", tier: gwtypes.TierSmall, wantID: "claude-haiku"},
		{name: "vendor-prefixed alias", requested: "anthropic:balanced", tier: gwtypes.TierSmall, wantID: "claude-sonnet"},
		{name: "model_id fallback match", requested: "claude-sonnet", tier: gwtypes.TierSmall, wantID: "claude-sonnet"},
		{name: "no model requested picks tier", requested: "", tier: gwtypes.TierMedium, wantID: "claude-sonnet"},
		{name: "unknown alias errors", requested: "nonexistent", tier: gwtypes.TierSmall, wantErr: true},
		{name: "unconfigured tier errors", requested: "", tier: gwtypes.TierLarge, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveModelConfig(models, tt.requested, tt.tier)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.ModelID != tt.wantID {
				t.Errorf("got model_id %q, want %q", got.ModelID, tt.wantID)
			}
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	req := &gwtypes.CompletionRequest{
		Messages: []gwtypes.Message{
			{Role: gwtypes.RoleUser, Content: gwtypes.NewTextContent("hello world")},
		},
	}
	got := EstimateTokens(req)
	if got <= 0 {
		t.Fatalf("expected positive token estimate, got %d", got)
	}

	withFns := &gwtypes.CompletionRequest{
		Messages:  req.Messages,
		Functions: []gwtypes.FunctionSchema{{Name: "f", Parameters: json.RawMessage(`{"type":"object"}`)}},
	}
	if got2 := EstimateTokens(withFns); got2 <= got {
		t.Errorf("expected functions to increase the estimate: %d vs %d", got2, got)
	}
}

func TestClampMaxTokens(t *testing.T) {
	model := gwtypes.ModelConfig{ContextWindow: 1000, MaxTokens: 500}

	tests := []struct {
		name         string
		requestedMax int
		promptTokens int
		want         int
		wantErr      bool
	}{
		{name: "within bounds", requestedMax: 100, promptTokens: 100, want: 100},
		{name: "clamped to model max_tokens", requestedMax: 10000, promptTokens: 10, want: 500},
		{name: "clamped to headroom", requestedMax: 500, promptTokens: 700, want: 44}, // 1000-700-256
		{name: "zero requested falls back to model max", requestedMax: 0, promptTokens: 10, want: 500},
		{name: "insufficient headroom errors", requestedMax: 100, promptTokens: 900, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ClampMaxTokens(tt.requestedMax, model, tt.promptTokens)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got none")
				}
				var headroomErr *ErrInsufficientHeadroom
				if _, ok := err.(*ErrInsufficientHeadroom); !ok {
					_ = headroomErr
					t.Fatalf("expected *ErrInsufficientHeadroom, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDefaultCost(t *testing.T) {
	model := gwtypes.ModelConfig{InputPricePer1K: 1.0, OutputPricePer1K: 2.0}
	usage := gwtypes.NewTokenUsage(1000, 500, 0)
	got := DefaultCost(usage, model)
	want := 1.0 + 1.0 // 1000/1000*1.0 + 500/1000*2.0
	if got != want {
		t.Errorf("got %f, want %f", got, want)
	}
}
