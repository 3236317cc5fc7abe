package tools

import (
	"context"
	"testing"
	"time"
)

type echoTool struct {
	meta   Metadata
	params []ToolParameter
}

func (t *echoTool) Metadata() Metadata            { return t.meta }
func (t *echoTool) Parameters() []ToolParameter   { return t.params }
func (t *echoTool) Run(ctx context.Context, sess *SessionContext, obs Observer, params map[string]any) (Result, error) {
	return Result{Success: true, Output: params}, nil
}

func TestRegistryExecuteCoercesAndValidates(t *testing.T) {
	r := NewRegistry()
	tool := &echoTool{
		meta: Metadata{Name: "echo"},
		params: []ToolParameter{
			{Name: "count", Type: ParamInteger, Required: true},
		},
	}
	if err := r.Register(tool, false); err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := r.Execute(context.Background(), "echo", "session-1", nil, nil, map[string]any{"count": "3"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	out := result.Output.(map[string]any)
	if out["count"] != 3 {
		t.Fatalf("expected coerced int 3, got %#v", out["count"])
	}
}

func TestRegistryExecuteRejectsUnknownParameter(t *testing.T) {
	r := NewRegistry()
	tool := &echoTool{meta: Metadata{Name: "echo"}}
	_ = r.Register(tool, false)

	_, err := r.Execute(context.Background(), "echo", "", nil, nil, map[string]any{"bogus": 1})
	if err == nil {
		t.Fatal("expected error for unknown parameter")
	}
}

func TestRegistryExecuteEnforcesRateLimit(t *testing.T) {
	r := NewRegistry()
	tool := &echoTool{meta: Metadata{Name: "limited", RateLimit: 1}}
	_ = r.Register(tool, false)

	if _, err := r.Execute(context.Background(), "limited", "s1", nil, nil, nil); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	if _, err := r.Execute(context.Background(), "limited", "s1", nil, nil, nil); err == nil {
		t.Fatal("expected rate limit error on second immediate call")
	}
}

func TestRegistryExecuteSkipsRateLimitAboveThreshold(t *testing.T) {
	r := NewRegistry()
	tool := &echoTool{meta: Metadata{Name: "unlimited", RateLimit: 1000}}
	_ = r.Register(tool, false)

	for i := 0; i < 3; i++ {
		if _, err := r.Execute(context.Background(), "unlimited", "s1", nil, nil, nil); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
}

func TestRegistryRegisterRefusesDuplicateWithoutOverride(t *testing.T) {
	r := NewRegistry()
	tool := &echoTool{meta: Metadata{Name: "dup"}}
	if err := r.Register(tool, false); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(tool, false); err == nil {
		t.Fatal("expected error on duplicate registration")
	}
	if err := r.Register(tool, true); err != nil {
		t.Fatalf("override register: %v", err)
	}
}

func TestExecutionTrackerEvictsOldestBeyondLimit(t *testing.T) {
	tr := newExecutionTracker()
	base := time.Now()
	tr.now = func() time.Time { return base }
	for i := 0; i < maxTrackedSessions; i++ {
		tr.now = func() time.Time { return base.Add(time.Duration(i) * time.Second) }
		tr.allow(string(rune('a'+i%26))+string(rune(i)), time.Nanosecond)
	}
	if len(tr.last) > maxTrackedSessions {
		t.Fatalf("tracker exceeded bound: %d", len(tr.last))
	}
}
