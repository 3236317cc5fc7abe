package router

import (
	"context"
	"errors"
	"testing"

	"github.com/shannon-run/llm-gateway/internal/budget"
	"github.com/shannon-run/llm-gateway/internal/gwerrors"
	"github.com/shannon-run/llm-gateway/internal/gwtypes"
	"github.com/shannon-run/llm-gateway/internal/providers"
)

// fakeProvider is a minimal providers.Provider stub that returns a
// preconfigured error or response and counts how many times Complete was
// called, so tests can assert on fallback behaviour without a live vendor.
type fakeProvider struct {
	name   string
	models []gwtypes.ModelConfig
	err    error
	calls  int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Complete(ctx context.Context, req *gwtypes.CompletionRequest, model gwtypes.ModelConfig) (*gwtypes.CompletionResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &gwtypes.CompletionResponse{Content: "ok from " + f.name, Provider: f.name, Model: model.Alias}, nil
}

func (f *fakeProvider) StreamComplete(ctx context.Context, req *gwtypes.CompletionRequest, model gwtypes.ModelConfig) (<-chan gwtypes.StreamDelta, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeProvider) CountTokens(req *gwtypes.CompletionRequest) int { return 0 }

func (f *fakeProvider) ListModels() []gwtypes.ModelConfig { return f.models }

func (f *fakeProvider) EstimateCost(usage gwtypes.TokenUsage, model gwtypes.ModelConfig) float64 {
	return 0
}

func smallModel(alias string) gwtypes.ModelConfig {
	return gwtypes.ModelConfig{Alias: alias, ModelID: alias, Tier: gwtypes.TierSmall}
}

func newTestRequest() *gwtypes.CompletionRequest {
	return &gwtypes.CompletionRequest{
		Messages:  []gwtypes.Message{{Role: gwtypes.RoleUser, Content: gwtypes.NewTextContent("hi")}},
		ModelTier: gwtypes.TierSmall,
	}
}

func rateLimitErr() error {
	return gwerrors.New("test", "", errors.New("rate limited")).WithKind(gwerrors.KindRateLimit)
}

func TestCompleteSucceedsOnFirstCandidate(t *testing.T) {
	p1 := &fakeProvider{name: "p1", models: []gwtypes.ModelConfig{smallModel("a")}}
	m := New(Config{
		Providers:       map[string]providers.Provider{"p1": p1},
		TierPreferences: map[gwtypes.ModelTier][]string{gwtypes.TierSmall: {"p1:a"}},
	}, budget.NewLedger(), nil)

	resp, err := m.Complete(context.Background(), newTestRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "p1" {
		t.Fatalf("got provider %q, want p1", resp.Provider)
	}
	if p1.calls != 1 {
		t.Fatalf("got %d calls, want 1", p1.calls)
	}
}

func TestCompleteFallsBackAtMostOnce(t *testing.T) {
	p1 := &fakeProvider{name: "p1", models: []gwtypes.ModelConfig{smallModel("a")}, err: rateLimitErr()}
	p2 := &fakeProvider{name: "p2", models: []gwtypes.ModelConfig{smallModel("b")}, err: rateLimitErr()}
	p3 := &fakeProvider{name: "p3", models: []gwtypes.ModelConfig{smallModel("c")}}

	m := New(Config{
		Providers: map[string]providers.Provider{"p1": p1, "p2": p2, "p3": p3},
		TierPreferences: map[gwtypes.ModelTier][]string{
			gwtypes.TierSmall: {"p1:a", "p2:b", "p3:c"},
		},
	}, budget.NewLedger(), nil)

	_, err := m.Complete(context.Background(), newTestRequest())
	if err == nil {
		t.Fatal("expected an error after exhausting the one allowed fallback")
	}
	if p1.calls != 1 {
		t.Fatalf("p1 calls = %d, want 1", p1.calls)
	}
	if p2.calls != 1 {
		t.Fatalf("p2 calls = %d, want 1", p2.calls)
	}
	if p3.calls != 0 {
		t.Fatalf("p3 calls = %d, want 0 (third candidate must never be tried)", p3.calls)
	}
}

func TestCompleteStopsAfterFallbackEvenOnSuccessfulSecondCandidate(t *testing.T) {
	p1 := &fakeProvider{name: "p1", models: []gwtypes.ModelConfig{smallModel("a")}, err: rateLimitErr()}
	p2 := &fakeProvider{name: "p2", models: []gwtypes.ModelConfig{smallModel("b")}}

	m := New(Config{
		Providers:       map[string]providers.Provider{"p1": p1, "p2": p2},
		TierPreferences: map[gwtypes.ModelTier][]string{gwtypes.TierSmall: {"p1:a", "p2:b"}},
	}, budget.NewLedger(), nil)

	resp, err := m.Complete(context.Background(), newTestRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "p2" {
		t.Fatalf("got provider %q, want p2 (the one permitted fallback)", resp.Provider)
	}
	if p1.calls != 1 || p2.calls != 1 {
		t.Fatalf("got p1.calls=%d p2.calls=%d, want 1 and 1", p1.calls, p2.calls)
	}
}

func TestCompleteStopsImmediatelyOnNonFailoverError(t *testing.T) {
	nonFailover := gwerrors.New("test", "", errors.New("bad params")).WithKind(gwerrors.KindParse)
	p1 := &fakeProvider{name: "p1", models: []gwtypes.ModelConfig{smallModel("a")}, err: nonFailover}
	p2 := &fakeProvider{name: "p2", models: []gwtypes.ModelConfig{smallModel("b")}}

	m := New(Config{
		Providers:       map[string]providers.Provider{"p1": p1, "p2": p2},
		TierPreferences: map[gwtypes.ModelTier][]string{gwtypes.TierSmall: {"p1:a", "p2:b"}},
	}, budget.NewLedger(), nil)

	_, err := m.Complete(context.Background(), newTestRequest())
	if err == nil {
		t.Fatal("expected the non-failover error to propagate")
	}
	if p2.calls != 0 {
		t.Fatalf("p2 calls = %d, want 0: a non-failover error must not trigger a fallback", p2.calls)
	}
}
