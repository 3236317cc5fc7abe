package providers

import (
	"testing"

	"github.com/shannon-run/llm-gateway/internal/gwtypes"
)

func anthropicTestProvider(t *testing.T) *AnthropicProvider {
	t.Helper()
	p, err := NewAnthropicProvider(AnthropicConfig{
		APIKey: "test-key",
		Models: []gwtypes.ModelConfig{
			{ModelID: "claude-haiku", Tier: gwtypes.TierSmall, ContextWindow: 200000, MaxTokens: 4096},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing provider: %v", err)
	}
	return p
}

func TestAnthropicBuildParamsLiftsSystemMessage(t *testing.T) {
	p := anthropicTestProvider(t)
	req := &gwtypes.CompletionRequest{
		Messages: []gwtypes.Message{
			{Role: gwtypes.RoleSystem, Content: gwtypes.NewTextContent("be terse")},
			{Role: gwtypes.RoleUser, Content: gwtypes.NewTextContent("hi")},
		},
	}
	params, err := p.buildParams(req, p.models[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params.System) != 1 || params.System[0].Text != "be terse" {
		t.Errorf("expected system message lifted into params.System, got %+v", params.System)
	}
	if len(params.Messages) != 1 {
		t.Errorf("expected system message excluded from params.Messages, got %d entries", len(params.Messages))
	}
}

func TestAnthropicBuildParamsFunctionRoleBecomesUserMessage(t *testing.T) {
	p := anthropicTestProvider(t)
	req := &gwtypes.CompletionRequest{
		Messages: []gwtypes.Message{
			{Role: gwtypes.RoleFunction, Content: gwtypes.NewTextContent("42")},
		},
	}
	params, err := p.buildParams(req, p.models[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(params.Messages))
	}
}

func TestAnthropicBuildParamsTemperatureWinsOverTopP(t *testing.T) {
	p := anthropicTestProvider(t)
	temp := 0.5
	topP := 0.9
	req := &gwtypes.CompletionRequest{
		Messages:    []gwtypes.Message{{Role: gwtypes.RoleUser, Content: gwtypes.NewTextContent("hi")}},
		Temperature: &temp,
		TopP:        &topP,
	}
	params, err := p.buildParams(req, p.models[0])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !params.Temperature.Valid() {
		t.Fatal("expected temperature to be set")
	}
	if params.TopP.Valid() {
		t.Error("expected top_p to be dropped when temperature is also set")
	}
}

func TestAnthropicBuildParamsRejectsInsufficientHeadroom(t *testing.T) {
	p := anthropicTestProvider(t)
	p.models[0].ContextWindow = 10
	req := &gwtypes.CompletionRequest{
		Messages: []gwtypes.Message{{Role: gwtypes.RoleUser, Content: gwtypes.NewTextContent("this message is long enough to blow the tiny context window")}},
	}
	if _, err := p.buildParams(req, p.models[0]); err == nil {
		t.Fatal("expected an error for insufficient headroom")
	}
}
