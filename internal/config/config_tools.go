package config

// MCPToolEntry declares one MCP-backed tool (spec §4.7 "MCP tool factory"):
// a single function, exposed at a URL, dispatched as
// {"function": func_name, "args": kwargs}.
type MCPToolEntry struct {
	Name        string            `yaml:"name"`
	URL         string            `yaml:"url"`
	FuncName    string            `yaml:"func_name"`
	Description string            `yaml:"description"`
	Headers     map[string]string `yaml:"headers"`
	Parameters  []ToolParamEntry  `yaml:"parameters"`
	RateLimit   int               `yaml:"rate_limit"`
}

// OpenAPIToolEntry declares one OpenAPI-backed tool family (spec §4.7
// "OpenAPI tool factory"): one tool is dynamically generated per retained
// operation.
type OpenAPIToolEntry struct {
	SpecURL    string            `yaml:"spec_url"`
	BaseURL    string            `yaml:"base_url"`
	Operations []string          `yaml:"operations"`
	Tags       []string          `yaml:"tags"`
	Auth       OpenAPIAuthEntry  `yaml:"auth"`
	Headers    map[string]string `yaml:"headers"`
}

// OpenAPIAuthEntry configures header/query/basic auth injection, with
// values optionally env-referenced via "$VARNAME" (spec §4.7).
type OpenAPIAuthEntry struct {
	Type     string `yaml:"type"` // "header" | "query" | "basic" | ""
	Name     string `yaml:"name"`
	Value    string `yaml:"value"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ToolParamEntry declares one ToolParameter (spec §3) for a dynamically
// registered MCP tool that doesn't introspect its schema from elsewhere.
type ToolParamEntry struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"`
	Required bool     `yaml:"required"`
	Default  any      `yaml:"default"`
	Enum     []string `yaml:"enum"`
	Min      *float64 `yaml:"min"`
	Max      *float64 `yaml:"max"`
	Pattern  string   `yaml:"pattern"`
}

// SandboxConfig controls isolation for the bash built-in tool (spec §4.7:
// "run in session workspace with a hard 30s cap"). Mode/Scope selection is
// kept from the teacher's internal/tools/sandbox.ResolveModeConfig, trimmed
// to the knobs the gateway's single sandboxed-bash tool needs.
type SandboxConfig struct {
	Enabled bool   `yaml:"enabled"`
	Mode    string `yaml:"mode"`  // "off" | "all" | "non-main"
	Scope   string `yaml:"scope"` // "agent" | "session" | "shared"
}

// GA4Config activates the supplemented GA4 analytics tool family (spec §6,
// SPEC_FULL.md supplemented feature 3), rooted at a service-account JSON.
type GA4Config struct {
	Enabled            bool   `yaml:"enabled"`
	ServiceAccountJSON string `yaml:"service_account_json"`
	PropertyID         string `yaml:"property_id"`
}
