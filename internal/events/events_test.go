package events

import (
	"context"
	"sync"
	"testing"

	"github.com/shannon-run/llm-gateway/internal/gwtypes"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Emit(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

type erroringSink struct{}

func (erroringSink) Emit(context.Context, Event) error { return errBoom }

var errBoom = &sinkError{"boom"}

type sinkError struct{ msg string }

func (e *sinkError) Error() string { return e.msg }

func TestEmitCompletionEmitsPromptAndOutput(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink, 0, nil)

	req := &gwtypes.CompletionRequest{
		WorkflowID: "wf-1",
		AgentID:    "agent-1",
		Messages: []gwtypes.Message{
			{Role: gwtypes.RoleUser, Content: gwtypes.NewTextContent("hello there")},
		},
	}
	resp := &gwtypes.CompletionResponse{
		Content:  "general kenobi",
		Provider: "anthropic",
		Model:    "claude-opus",
		Usage:    gwtypes.NewTokenUsage(10, 5, 0),
	}

	e.EmitCompletion(req, resp)

	events := sink.all()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != EventLLMPrompt || events[0].Message != "hello there" {
		t.Errorf("unexpected prompt event: %+v", events[0])
	}
	if events[1].Type != EventLLMOutput || events[1].Message != "general kenobi" {
		t.Errorf("unexpected output event: %+v", events[1])
	}
	if events[1].Payload["provider"] != "anthropic" {
		t.Errorf("expected provider in output payload, got %+v", events[1].Payload)
	}
	if events[0].Sequence == events[1].Sequence {
		t.Error("expected distinct sequence numbers")
	}
}

func TestEmitCompletionTruncatesLongOutput(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink, 0, nil)

	long := make([]byte, outputTruncateChars+100)
	for i := range long {
		long[i] = 'x'
	}
	req := &gwtypes.CompletionRequest{WorkflowID: "wf-1"}
	resp := &gwtypes.CompletionResponse{Content: string(long)}

	e.EmitCompletion(req, resp)

	events := sink.all()
	if len(events[1].Message) != outputTruncateChars {
		t.Errorf("got output length %d, want %d", len(events[1].Message), outputTruncateChars)
	}
}

func TestSanitizePromptStripsAgentEnvelope(t *testing.T) {
	envelope := `{"query":"what's the weather","tools":["web_search"]}`
	if got := sanitizePrompt(envelope); got != "what's the weather" {
		t.Errorf("got %q, want extracted query", got)
	}
}

func TestSanitizePromptLeavesPlainTextAlone(t *testing.T) {
	if got := sanitizePrompt("just a normal question"); got != "just a normal question" {
		t.Errorf("got %q, want unchanged", got)
	}
}

func TestEmitPartialIncludesChunkMetadata(t *testing.T) {
	sink := &recordingSink{}
	e := NewEmitter(sink, 0, nil)

	e.EmitPartial("wf-1", "agent-1", 2, 5, "partial text")

	events := sink.all()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Payload["chunk_index"] != 2 || events[0].Payload["total_chunks"] != 5 {
		t.Errorf("unexpected chunk payload: %+v", events[0].Payload)
	}
}

func TestSinkErrorsAreSwallowed(t *testing.T) {
	e := NewEmitter(erroringSink{}, 0, nil)
	req := &gwtypes.CompletionRequest{WorkflowID: "wf-1"}
	resp := &gwtypes.CompletionResponse{Content: "ok"}

	// Must not panic or return an error: emission failures are log-and-drop.
	e.EmitCompletion(req, resp)
}
