// Package tools implements the tool registry and execution pipeline from
// spec §4.7, grounded on the teacher's internal/agent.ToolRegistry
// (tools.go/tool_registry.go: name-keyed map guarded by sync.RWMutex,
// Register/Get/Execute/AsLLMTools) but generalised from the teacher's
// Runtime-coupled agent-loop tool to a standalone, stateless one: every
// tool here is a singleton exposing metadata plus a uniform five-step
// execution pipeline instead of being invoked from inside a chat turn.
package tools

import (
	"context"
)

// ParamType enumerates the ToolParameter.Type values (spec §3).
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInteger ParamType = "integer"
	ParamFloat   ParamType = "float"
	ParamBoolean ParamType = "boolean"
	ParamArray   ParamType = "array"
	ParamObject  ParamType = "object"
	ParamFile    ParamType = "file"
)

// ToolParameter declares one parameter a tool accepts (spec §3).
type ToolParameter struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool
	Default     any
	Enum        []string
	Min         *float64
	Max         *float64
	Pattern     string
	// ItemsType is required when Type == ParamArray (spec §4.7 schema
	// export: "array parameters must declare an items type").
	ItemsType ParamType
}

// Metadata describes a tool (spec §3 ToolMetadata).
type Metadata struct {
	Name          string
	Version       string
	Description   string
	Category      string
	RequiresAuth  bool
	RateLimit     int // requests per minute; >=100 disables rate limiting (spec §4.7 step 3)
	TimeoutSeconds int
	MemoryLimitMB int
	Sandboxed     bool
	SessionAware  bool
	Dangerous     bool
	CostPerUse    float64
}

// Result is the outcome of a tool execution (spec §3 ToolResult).
type Result struct {
	Success         bool
	Output          any
	Error           string
	Metadata        map[string]any
	ExecutionTimeMs int64
	TokensUsed      int
}

// SessionContext carries the caller-scoped state a session_aware tool may
// read (spec §4.7 step 4: "pass session_context only if session_aware").
type SessionContext struct {
	SessionID   string
	WorkspaceDir string
}

// Observer receives incremental progress notifications during a tool's
// execution (streaming tool stdout/stderr, partial results). Tools that
// have nothing incremental to report may ignore it.
type Observer interface {
	Notify(event string, data map[string]any)
}

// NopObserver discards every notification.
type NopObserver struct{}

func (NopObserver) Notify(string, map[string]any) {}

// Tool is the uniform interface every built-in, OpenAPI-generated, and
// MCP-generated tool implements. Metadata and Parameters are pure
// descriptors; Run performs the concrete side effect once the registry's
// execution pipeline has already coerced, validated, and rate-limited the
// call.
type Tool interface {
	Metadata() Metadata
	Parameters() []ToolParameter
	Run(ctx context.Context, sess *SessionContext, obs Observer, params map[string]any) (Result, error)
}
