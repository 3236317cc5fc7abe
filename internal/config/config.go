// Package config loads the gateway's YAML/JSON5 configuration and
// translates it into the provider/router/tool wiring the composition root
// needs. It accepts both the legacy providers/routing/caching form and the
// catalog model_catalog/model_tiers/provider_settings/selection_strategy
// form (spec §4.5, §6), grounded on the teacher's internal/config package:
// loader.go's $include + env-expand + JSON5-or-YAML machinery is reused
// unchanged, and the top-level Config struct follows the teacher's
// yaml-tagged, nested-struct-per-concern layout.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shannon-run/llm-gateway/internal/gwtypes"
)

// Config is the fully-decoded, pre-translation configuration document. Only
// one of the legacy fields (Providers/Routing) or the catalog fields
// (ModelCatalog/ModelTiers/ProviderSettings/SelectionStrategy) need be
// populated; Resolve merges whichever form is present into a single
// ResolvedConfig.
type Config struct {
	Version int `yaml:"version"`

	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`

	// Legacy form.
	Providers map[string]ProviderEntry `yaml:"providers"`
	Routing   RoutingConfig            `yaml:"routing"`
	Caching   CachingConfig            `yaml:"caching"`

	// Catalog form.
	ModelCatalog      map[string]map[string]gwtypes.ModelConfig `yaml:"model_catalog"`
	ModelTiers        map[string]ModelTierEntry                 `yaml:"model_tiers"`
	ProviderSettings  map[string]ProviderSettingsEntry           `yaml:"provider_settings"`
	SelectionStrategy SelectionStrategyConfig                   `yaml:"selection_strategy"`
	PromptCache       PromptCacheConfig                         `yaml:"prompt_cache"`

	// Shared by both forms.
	Pricing PricingConfig `yaml:"pricing"`

	MCPTools     map[string]MCPToolEntry     `yaml:"mcp_tools"`
	OpenAPITools map[string]OpenAPIToolEntry `yaml:"openapi_tools"`
	GA4          GA4Config                   `yaml:"ga4"`
	Sandbox      SandboxConfig               `yaml:"sandbox"`
}

// ProviderEntry is one entry of the legacy providers map.
type ProviderEntry struct {
	Type    string                          `yaml:"type"`
	APIKey  string                          `yaml:"api_key"`
	BaseURL string                          `yaml:"base_url"`
	Models  map[string]gwtypes.ModelConfig  `yaml:"models"`
}

// RoutingConfig is the legacy form's routing section.
type RoutingConfig struct {
	DefaultProvider  string              `yaml:"default_provider"`
	TierPreferences  map[string][]string `yaml:"tier_preferences"`
}

// CachingConfig is the legacy form's caching section.
type CachingConfig struct {
	Enabled    bool          `yaml:"enabled"`
	MaxSize    int           `yaml:"max_size"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// ModelTierEntry lists, for one tier, the providers that can serve it.
type ModelTierEntry struct {
	Providers []TierProviderEntry `yaml:"providers"`
}

// TierProviderEntry is one "provider:alias" candidate with its priority
// (lower sorts first) within a model tier.
type TierProviderEntry struct {
	Provider string `yaml:"provider"`
	Alias    string `yaml:"alias"`
	Priority int    `yaml:"priority"`
}

// ProviderSettingsEntry is the catalog form's per-provider connection config.
type ProviderSettingsEntry struct {
	Type    string `yaml:"type"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// SelectionStrategyConfig is the catalog form's top-level routing defaults.
type SelectionStrategyConfig struct {
	DefaultProvider string `yaml:"default_provider"`
}

// PromptCacheConfig mirrors the response cache's enable/size/ttl knobs for
// the catalog form, and additionally documents whether vendor-side prompt
// caching (e.g. Anthropic cache_control breakpoints) should be attached.
type PromptCacheConfig struct {
	Enabled           bool          `yaml:"enabled"`
	MaxSize           int           `yaml:"max_size"`
	DefaultTTL        time.Duration `yaml:"default_ttl"`
	VendorSideCaching bool          `yaml:"vendor_side_caching"`
}

// PricingConfig is the shared pricing-override document (spec §4.5):
// pricing.models[provider][model_id_or_alias] overrides the per-model
// input/output price per 1k tokens.
type PricingConfig struct {
	Models map[string]map[string]PriceOverride `yaml:"models"`
}

type PriceOverride struct {
	InputPer1K  *float64 `yaml:"input_per_1k"`
	OutputPer1K *float64 `yaml:"output_per_1k"`
}

// LoggingConfig controls the gateway's structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" | "json"
}

// resolveEnv expands a "$ENV_VAR" reference (spec §6's "api_key (or $ENV)").
// Values not starting with "$" pass through unchanged.
func resolveEnv(value string) string {
	if !strings.HasPrefix(value, "$") {
		return value
	}
	return os.Getenv(strings.TrimPrefix(value, "$"))
}

// Load reads and fully resolves a config file: $include-expansion, env
// substitution, version check, decode, then translation into the
// ResolvedConfig the composition root consumes.
func Load(path string) (*ResolvedConfig, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Version != 0 {
		if err := ValidateVersion(cfg.Version); err != nil {
			return nil, err
		}
	}
	if issues := pluginValidationIssues(cfg); len(issues) > 0 {
		return nil, fmt.Errorf("config validation failed: %s", strings.Join(issues, "; "))
	}
	cfg.Server = cfg.Server.withDefaults()
	return cfg.Resolve()
}
