// Package gwtypes defines the normalised request/response model shared by
// every provider, the router, the cache, and the HTTP surface.
package gwtypes

import (
	"encoding/json"
	"fmt"
)

// ModelTier buckets models by cost/quality trade-off for tier-based routing.
type ModelTier string

const (
	TierSmall  ModelTier = "small"
	TierMedium ModelTier = "medium"
	TierLarge  ModelTier = "large"
)

func (t ModelTier) Valid() bool {
	switch t {
	case TierSmall, TierMedium, TierLarge:
		return true
	default:
		return false
	}
}

// ModelConfig is the per-model record a provider registers under an alias.
type ModelConfig struct {
	Provider string    `yaml:"-" json:"provider"`
	ModelID  string    `yaml:"model_id" json:"model_id"`
	Alias    string    `yaml:"-" json:"alias"`
	Tier     ModelTier `yaml:"tier" json:"tier"`

	ContextWindow int     `yaml:"context_window" json:"context_window"`
	MaxTokens     int     `yaml:"max_tokens" json:"max_tokens"`
	InputPricePer1K  float64 `yaml:"input_per_1k" json:"input_price_per_1k"`
	OutputPricePer1K float64 `yaml:"output_per_1k" json:"output_price_per_1k"`

	SupportsFunctions bool `yaml:"supports_functions" json:"supports_functions"`
	SupportsStreaming bool `yaml:"supports_streaming" json:"supports_streaming"`
	SupportsVision    bool `yaml:"supports_vision" json:"supports_vision"`
	SupportsReasoning bool `yaml:"supports_reasoning" json:"supports_reasoning"`

	// PromptCachingSupported surfaces whether the vendor offers a prompt/context
	// cache (e.g. Anthropic cache_control breakpoints). Additive metadata only;
	// it never gates the response cache in internal/gwcache.
	PromptCachingSupported bool `yaml:"prompt_caching" json:"prompt_caching_supported,omitempty"`

	DefaultTimeoutSeconds int `yaml:"timeout_seconds" json:"default_timeout_seconds"`
}

// Validate enforces the ModelConfig invariant: max_tokens <= context_window.
func (m *ModelConfig) Validate() error {
	if m.MaxTokens > m.ContextWindow && m.ContextWindow > 0 {
		return fmt.Errorf("model %s/%s: max_tokens (%d) exceeds context_window (%d)", m.Provider, m.Alias, m.MaxTokens, m.ContextWindow)
	}
	return nil
}

// TokenUsage is commutatively additive; Total must equal Input+Output after construction.
type TokenUsage struct {
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	EstimatedCost  float64 `json:"estimated_cost"`
}

// NewTokenUsage builds a usage record, deriving TotalTokens.
func NewTokenUsage(input, output int, cost float64) TokenUsage {
	return TokenUsage{InputTokens: input, OutputTokens: output, TotalTokens: input + output, EstimatedCost: cost}
}

// Add returns the commutative sum of two usage records.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:   u.InputTokens + other.InputTokens,
		OutputTokens:  u.OutputTokens + other.OutputTokens,
		TotalTokens:   u.TotalTokens + other.TotalTokens,
		EstimatedCost: u.EstimatedCost + other.EstimatedCost,
	}
}

// Role values accepted on a Message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleFunction  = "function"
)

// PartType discriminates the variants of MessageContent.Parts.
type PartType string

const (
	PartText            PartType = "text"
	PartImage           PartType = "image"
	PartToolCallOutput  PartType = "tool_call_output"
)

// Part is one typed element of a multi-part message content list.
type Part struct {
	Type       PartType        `json:"type"`
	Text       string          `json:"text,omitempty"`
	ImageURL   string          `json:"image_url,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
}

// MessageContent is the sum type `Text(string) | Parts([]Part)` mandated by
// the design notes in place of the source's ad-hoc nested-shape walking.
// Exactly one of Text/Parts is meaningful; IsParts reports which.
type MessageContent struct {
	text    string
	parts   []Part
	isParts bool
}

func NewTextContent(text string) MessageContent   { return MessageContent{text: text} }
func NewPartsContent(parts []Part) MessageContent { return MessageContent{parts: parts, isParts: true} }

func (c MessageContent) IsParts() bool { return c.isParts }
func (c MessageContent) Parts() []Part { return c.parts }

// AsText is the total function mandated by the design notes: it always
// returns a string, flattening parts to their text components when the
// content is not plain text.
func (c MessageContent) AsText() string {
	if !c.isParts {
		return c.text
	}
	out := ""
	for _, p := range c.parts {
		if p.Type == PartText && p.Text != "" {
			if out != "" {
				out += "\n"
			}
			out += p.Text
		}
	}
	return out
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if !c.isParts {
		return json.Marshal(c.text)
	}
	return json.Marshal(c.parts)
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = NewTextContent(s)
		return nil
	}
	var parts []Part
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("message content must be a string or a list of parts: %w", err)
	}
	*c = NewPartsContent(parts)
	return nil
}

// Message is one entry in the ordered conversation history.
type Message struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// ResponseFormat constrains the shape of the model's output.
type ResponseFormat struct {
	Type string `json:"type,omitempty"` // "text" | "json_object"
}

// FunctionCallMode selects how the model should use the declared functions.
// One of "auto", "none", or a literal {"name": "..."} forcing a specific call.
type FunctionCallMode struct {
	Mode string `json:"mode,omitempty"` // "auto" | "none" | "name"
	Name string `json:"name,omitempty"`
}

// FunctionSchema describes one callable tool/function in vendor-neutral form.
type FunctionSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// CompletionRequest is the normalised input to every provider's Complete.
type CompletionRequest struct {
	Messages []Message `json:"messages"`

	ModelTier ModelTier `json:"model_tier,omitempty"`
	Model     string    `json:"model,omitempty"` // alias or "provider:alias"

	Temperature      *float64        `json:"temperature,omitempty"`
	MaxTokens        int             `json:"max_tokens,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	Stop             []string        `json:"stop,omitempty"`
	Seed             *int64          `json:"seed,omitempty"`
	ResponseFormat   *ResponseFormat `json:"response_format,omitempty"`

	Functions    []FunctionSchema  `json:"functions,omitempty"`
	FunctionCall *FunctionCallMode `json:"function_call,omitempty"`

	SessionID        string `json:"session_id,omitempty"`
	TaskID           string `json:"task_id,omitempty"`
	AgentID          string `json:"agent_id,omitempty"`
	WorkflowID       string `json:"workflow_id,omitempty"`
	ProviderOverride string `json:"provider_override,omitempty"`
	CacheKey         string `json:"cache_key,omitempty"`
	CacheTTLSeconds  int    `json:"cache_ttl,omitempty"`
	MaxTokensBudget  int    `json:"max_tokens_budget,omitempty"`

	Stream bool `json:"stream,omitempty"`
}

// EffectiveTier returns ModelTier, defaulting to TierSmall.
func (r *CompletionRequest) EffectiveTier() ModelTier {
	if r.ModelTier == "" {
		return TierSmall
	}
	return r.ModelTier
}

// FunctionCall is the normalised tool-call output on a CompletionResponse.
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// CompletionResponse is the normalised output of every provider's Complete.
// Invariant: Provider is never empty; callers must default it to "unknown".
type CompletionResponse struct {
	Content                 string        `json:"content"`
	Model                   string        `json:"model"`
	Provider                string        `json:"provider"`
	Usage                   TokenUsage    `json:"usage"`
	FinishReason            string        `json:"finish_reason"`
	FunctionCall            *FunctionCall `json:"function_call,omitempty"`
	RequestID               string        `json:"request_id,omitempty"`
	LatencyMs               int64         `json:"latency_ms,omitempty"`
	Cached                  bool          `json:"cached"`
	EffectiveMaxCompletion  int           `json:"effective_max_completion,omitempty"`
}

// StreamDelta is one element of a provider's streaming output. A delta whose
// Done is true may carry Usage as its last, terminal element and must never
// be followed by further text deltas (see spec §5 ordering guarantees).
type StreamDelta struct {
	Text  string
	Usage *TokenUsage
	Done  bool
	Err   error
}

// Tool entities (spec §3).

type ToolParamType string

const (
	ParamString  ToolParamType = "string"
	ParamInteger ToolParamType = "integer"
	ParamFloat   ToolParamType = "float"
	ParamBoolean ToolParamType = "boolean"
	ParamArray   ToolParamType = "array"
	ParamObject  ToolParamType = "object"
	ParamFile    ToolParamType = "file"
)

type ToolParameter struct {
	Name     string        `json:"name"`
	Type     ToolParamType `json:"type"`
	Required bool          `json:"required"`
	Default  any           `json:"default,omitempty"`
	Enum     []any         `json:"enum,omitempty"`
	Min      *float64      `json:"min,omitempty"`
	Max      *float64      `json:"max,omitempty"`
	Pattern  string        `json:"pattern,omitempty"`
	// ItemsType is required when Type == ParamArray (schema export needs it).
	ItemsType ToolParamType `json:"items_type,omitempty"`
}

type ToolMetadata struct {
	Name           string  `json:"name"`
	Version        string  `json:"version"`
	Description    string  `json:"description"`
	Category       string  `json:"category"`
	RequiresAuth   bool    `json:"requires_auth"`
	RateLimit      int     `json:"rate_limit"` // per minute; >=100 disables enforcement
	TimeoutSeconds int     `json:"timeout_seconds"`
	MemoryLimitMB  int     `json:"memory_limit_mb"`
	Sandboxed      bool    `json:"sandboxed"`
	SessionAware   bool    `json:"session_aware"`
	Dangerous      bool    `json:"dangerous"`
	CostPerUse     float64 `json:"cost_per_use"`
}

type ToolResult struct {
	Success          bool           `json:"success"`
	Output           any            `json:"output,omitempty"`
	Error            string         `json:"error,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	ExecutionTimeMs  int64          `json:"execution_time_ms,omitempty"`
	TokensUsed       int            `json:"tokens_used,omitempty"`
}
