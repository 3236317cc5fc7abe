package providers

import (
	"testing"

	"github.com/shannon-run/llm-gateway/internal/gwtypes"
)

func TestSanitizeXAIMessageStripsControlChars(t *testing.T) {
	in := "hello\x00world\x07\nkeep this newline"
	got := sanitizeXAIMessage(in)
	want := "helloworld\nkeep this newline"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestXAIEstimateCostAddsLiveSearchSurcharge(t *testing.T) {
	model := gwtypes.ModelConfig{InputPricePer1K: 1, OutputPricePer1K: 1}
	usage := gwtypes.NewTokenUsage(1000, 1000, 0)

	withoutSearch := &XAIProvider{models: []gwtypes.ModelConfig{model}}
	withSearch := &XAIProvider{models: []gwtypes.ModelConfig{model}, liveSearch: true}

	base := withoutSearch.EstimateCost(usage, model)
	surcharged := withSearch.EstimateCost(usage, model)
	if surcharged <= base {
		t.Errorf("expected live search to add a surcharge: base=%f surcharged=%f", base, surcharged)
	}
}

func TestXAIBuildRequestFoldsSystemIntoPrefixedUserTurn(t *testing.T) {
	p := &XAIProvider{models: []gwtypes.ModelConfig{{ModelID: "grok-4", ContextWindow: 128000, MaxTokens: 4096}}}
	req := &gwtypes.CompletionRequest{
		Messages: []gwtypes.Message{
			{Role: gwtypes.RoleSystem, Content: gwtypes.NewTextContent("be concise")},
			{Role: gwtypes.RoleUser, Content: gwtypes.NewTextContent("hi")},
		},
	}
	chatReq, err := p.buildRequest(req, p.models[0], false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chatReq.Messages[0].Role != "user" || chatReq.Messages[0].Content != "System: be concise" {
		t.Errorf("got first message %+v, want a user turn prefixed with 'System: '", chatReq.Messages[0])
	}
}

func TestXAIBuildRequestDropsEmptyAssistantTurns(t *testing.T) {
	p := &XAIProvider{models: []gwtypes.ModelConfig{{ModelID: "grok-4", ContextWindow: 128000, MaxTokens: 4096}}}
	req := &gwtypes.CompletionRequest{
		Messages: []gwtypes.Message{
			{Role: gwtypes.RoleUser, Content: gwtypes.NewTextContent("hi")},
			{Role: gwtypes.RoleAssistant, Content: gwtypes.NewTextContent("")},
			{Role: gwtypes.RoleUser, Content: gwtypes.NewTextContent("still there?")},
		},
	}
	chatReq, err := p.buildRequest(req, p.models[0], false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chatReq.Messages) != 2 {
		t.Fatalf("got %d messages, want 2 (empty assistant turn dropped)", len(chatReq.Messages))
	}
}
