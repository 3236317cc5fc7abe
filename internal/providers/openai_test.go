package providers

import (
	"testing"

	"github.com/shannon-run/llm-gateway/internal/gwtypes"
)

func openAITestProvider(t *testing.T) *OpenAIProvider {
	t.Helper()
	p, err := NewOpenAIProvider(OpenAIConfig{
		APIKey: "test-key",
		Models: []gwtypes.ModelConfig{
			{ModelID: "gpt-4o", Tier: gwtypes.TierSmall, ContextWindow: 128000, MaxTokens: 4096},
			{ModelID: "gpt-5", Tier: gwtypes.TierMedium, ContextWindow: 200000, MaxTokens: 8192},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing provider: %v", err)
	}
	return p
}

func TestOpenAIBuildRequestUsesMaxTokensForNonGPT5(t *testing.T) {
	p := openAITestProvider(t)
	req := &gwtypes.CompletionRequest{
		Messages: []gwtypes.Message{{Role: gwtypes.RoleUser, Content: gwtypes.NewTextContent("hi")}},
	}
	chatReq, err := p.buildRequest(req, p.models[0], false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chatReq.MaxTokens == 0 {
		t.Error("expected MaxTokens to be set for a non-GPT-5 model")
	}
	if chatReq.MaxCompletionTokens != 0 {
		t.Error("expected MaxCompletionTokens to be unset for a non-GPT-5 model")
	}
}

func TestOpenAIBuildRequestUsesMaxCompletionTokensForGPT5(t *testing.T) {
	p := openAITestProvider(t)
	req := &gwtypes.CompletionRequest{
		Messages: []gwtypes.Message{{Role: gwtypes.RoleUser, Content: gwtypes.NewTextContent("hi")}},
	}
	chatReq, err := p.buildRequest(req, p.models[1], false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chatReq.MaxCompletionTokens == 0 {
		t.Error("expected MaxCompletionTokens to be set for a GPT-5 model")
	}
	if chatReq.MaxTokens != 0 {
		t.Error("expected MaxTokens to be unset for a GPT-5 model")
	}
}

func TestOpenAIBuildRequestOmitsSamplingParamsForGPT5(t *testing.T) {
	p := openAITestProvider(t)
	temp := 0.7
	topP := 0.9
	freq := 0.1
	pres := 0.2
	req := &gwtypes.CompletionRequest{
		Messages:         []gwtypes.Message{{Role: gwtypes.RoleUser, Content: gwtypes.NewTextContent("hi")}},
		Temperature:      &temp,
		TopP:             &topP,
		FrequencyPenalty: &freq,
		PresencePenalty:  &pres,
	}
	chatReq, err := p.buildRequest(req, p.models[1], false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chatReq.Temperature != 0 || chatReq.TopP != 0 || chatReq.FrequencyPenalty != 0 || chatReq.PresencePenalty != 0 {
		t.Errorf("expected sampling params to be omitted for GPT-5, got %+v", chatReq)
	}
}

func TestOpenAIBuildRequestIncludesSamplingParamsForNonGPT5(t *testing.T) {
	p := openAITestProvider(t)
	temp := 0.7
	req := &gwtypes.CompletionRequest{
		Messages:    []gwtypes.Message{{Role: gwtypes.RoleUser, Content: gwtypes.NewTextContent("hi")}},
		Temperature: &temp,
	}
	chatReq, err := p.buildRequest(req, p.models[0], false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chatReq.Temperature == 0 {
		t.Error("expected temperature to be set for a non-GPT-5 model")
	}
}

func TestOpenAIBuildRequestIncludesUsageOnStream(t *testing.T) {
	p := openAITestProvider(t)
	req := &gwtypes.CompletionRequest{
		Messages: []gwtypes.Message{{Role: gwtypes.RoleUser, Content: gwtypes.NewTextContent("hi")}},
	}
	chatReq, err := p.buildRequest(req, p.models[0], true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chatReq.StreamOptions == nil || !chatReq.StreamOptions.IncludeUsage {
		t.Error("expected stream requests to opt into usage accounting")
	}
}

func TestIsGPT5Family(t *testing.T) {
	cases := map[string]bool{
		"gpt-5":      true,
		"gpt-5-mini": true,
		"gpt-4o":     false,
		"gpt-4":      false,
	}
	for model, want := range cases {
		if got := isGPT5Family(model); got != want {
			t.Errorf("isGPT5Family(%q) = %v, want %v", model, got, want)
		}
	}
}
