// Package events implements the outbound event emitter from spec §4.8,
// grounded on the teacher's internal/agent/event_emitter.go (atomic
// sequence numbers, a base-event builder, dispatch through a Sink
// interface) and event_sink.go (the Sink abstraction itself), narrowed to
// the three LLM_PROMPT/LLM_PARTIAL/LLM_OUTPUT event types the gateway
// emits instead of the teacher's full agent-run lifecycle.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shannon-run/llm-gateway/internal/gwtypes"
)

type EventType string

const (
	EventLLMPrompt  EventType = "LLM_PROMPT"
	EventLLMPartial EventType = "LLM_PARTIAL"
	EventLLMOutput  EventType = "LLM_OUTPUT"
)

const (
	promptTruncateChars = 500
	outputTruncateChars = 4000
	defaultPartialChars = 512
)

// Event is the outbound payload posted to events_ingest_url (spec §6):
// {workflow_id, type, agent_id?, message, payload}.
type Event struct {
	Sequence   uint64         `json:"sequence"`
	WorkflowID string         `json:"workflow_id"`
	Type       EventType      `json:"type"`
	AgentID    string         `json:"agent_id,omitempty"`
	Message    string         `json:"message"`
	Payload    map[string]any `json:"payload,omitempty"`
	Time       time.Time      `json:"time"`
}

// Sink dispatches an Event. Implementations must not block indefinitely;
// emission failures never propagate into the completion result (spec
// §4.8) so Emitter treats every Sink error as log-and-drop.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// NopSink discards every event; used when no events_ingest_url is configured.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) error { return nil }

// Emitter builds and dispatches LLM_PROMPT/LLM_PARTIAL/LLM_OUTPUT events.
type Emitter struct {
	sink             Sink
	sequence         uint64
	partialChunkSize int
	logger           *slog.Logger
}

func NewEmitter(sink Sink, partialChunkChars int, logger *slog.Logger) *Emitter {
	if sink == nil {
		sink = NopSink{}
	}
	if partialChunkChars <= 0 {
		partialChunkChars = defaultPartialChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{sink: sink, partialChunkSize: partialChunkChars, logger: logger}
}

func (e *Emitter) nextSeq() uint64 { return atomic.AddUint64(&e.sequence, 1) }

func (e *Emitter) dispatch(ctx context.Context, event Event) {
	if err := e.sink.Emit(ctx, event); err != nil {
		e.logger.Warn("event emit failed", "type", event.Type, "workflow_id", event.WorkflowID, "err", err)
	}
}

// EmitCompletion emits LLM_PROMPT and LLM_OUTPUT for a finished completion
// with a workflow_id (spec §4.8). Callers with no workflow_id should not
// call this at all -- the router already gates on that.
func (e *Emitter) EmitCompletion(req *gwtypes.CompletionRequest, resp *gwtypes.CompletionResponse) {
	ctx := context.Background()

	prompt := lastUserMessage(req.Messages)
	e.dispatch(ctx, Event{
		Sequence:   e.nextSeq(),
		WorkflowID: req.WorkflowID,
		Type:       EventLLMPrompt,
		AgentID:    req.AgentID,
		Message:    truncate(sanitizePrompt(prompt), promptTruncateChars),
		Time:       time.Now(),
	})

	e.dispatch(ctx, Event{
		Sequence:   e.nextSeq(),
		WorkflowID: req.WorkflowID,
		Type:       EventLLMOutput,
		AgentID:    req.AgentID,
		Message:    truncate(resp.Content, outputTruncateChars),
		Payload: map[string]any{
			"provider": resp.Provider,
			"model":    resp.Model,
			"usage":    resp.Usage,
		},
		Time: time.Now(),
	})
}

// EmitPartial emits one LLM_PARTIAL chunk of streamed output text.
func (e *Emitter) EmitPartial(workflowID, agentID string, chunkIndex, totalChunks int, chunk string) {
	e.dispatch(context.Background(), Event{
		Sequence:   e.nextSeq(),
		WorkflowID: workflowID,
		Type:       EventLLMPartial,
		AgentID:    agentID,
		Message:    chunk,
		Payload: map[string]any{
			"chunk_index":  chunkIndex,
			"total_chunks": totalChunks,
		},
		Time: time.Now(),
	})
}

// PartialChunkSize is the configured LLM_PARTIAL chunk size.
func (e *Emitter) PartialChunkSize() int { return e.partialChunkSize }

func lastUserMessage(messages []gwtypes.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == gwtypes.RoleUser {
			return messages[i].Content.AsText()
		}
	}
	if len(messages) > 0 {
		return messages[len(messages)-1].Content.AsText()
	}
	return ""
}

// sanitizePrompt strips JSON-encoded agent-execution envelopes and "tools"
// fields from the prompt before it leaves the process (spec §4.8). Any
// message that parses as a JSON object carrying a top-level "tools" key is
// treated as an envelope and only its "query"/"content"/"message" field (in
// that preference order) survives; anything else passes through unchanged.
func sanitizePrompt(prompt string) string {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" || trimmed[0] != '{' {
		return prompt
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return prompt
	}
	if _, hasTools := envelope["tools"]; !hasTools {
		return prompt
	}
	for _, field := range []string{"query", "content", "message"} {
		if raw, ok := envelope[field]; ok {
			var s string
			if json.Unmarshal(raw, &s) == nil {
				return s
			}
		}
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
