package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/shannon-run/llm-gateway/internal/gwtypes"
)

// ResolvedProvider is one fully-resolved provider ready to be constructed,
// independent of which config form it was declared in.
type ResolvedProvider struct {
	Name    string
	Type    string
	APIKey  string
	BaseURL string
	Models  []gwtypes.ModelConfig
}

// ResolvedConfig is the config.Load() output: both accepted forms (spec
// §4.5 "unified config translation") merged into one provider list, one set
// of tier preferences, and the shared cache/tools/server settings.
type ResolvedConfig struct {
	Server  ServerConfig
	Logging LoggingConfig

	Providers       []ResolvedProvider
	DefaultProvider string
	TierPreferences map[gwtypes.ModelTier][]string

	CacheEnabled    bool
	CacheMaxSize    int
	DefaultCacheTTL time.Duration

	MCPTools     map[string]MCPToolEntry
	OpenAPITools map[string]OpenAPIToolEntry
	GA4          GA4Config
	Sandbox      SandboxConfig
}

// Resolve translates whichever form(s) of Config were populated into a
// ResolvedConfig, applying pricing overrides last so they win regardless of
// which form declared the base price.
func (c *Config) Resolve() (*ResolvedConfig, error) {
	out := &ResolvedConfig{
		Server:          c.Server,
		Logging:         c.Logging,
		TierPreferences: map[gwtypes.ModelTier][]string{},
		MCPTools:        c.MCPTools,
		OpenAPITools:    c.OpenAPITools,
		GA4:             c.GA4,
		Sandbox:         c.Sandbox,
	}

	legacy := len(c.Providers) > 0
	catalog := len(c.ModelCatalog) > 0 || len(c.ProviderSettings) > 0

	switch {
	case legacy:
		if err := c.resolveLegacy(out); err != nil {
			return nil, err
		}
	case catalog:
		if err := c.resolveCatalog(out); err != nil {
			return nil, err
		}
	}

	c.applyPricingOverrides(out)

	if out.DefaultProvider == "" && len(out.Providers) > 0 {
		out.DefaultProvider = out.Providers[0].Name
	}

	if c.Caching.Enabled || c.PromptCache.Enabled {
		out.CacheEnabled = true
	}
	out.CacheMaxSize = firstNonZeroInt(c.Caching.MaxSize, c.PromptCache.MaxSize, 1000)
	out.DefaultCacheTTL = firstNonZeroDuration(c.Caching.DefaultTTL, c.PromptCache.DefaultTTL, 5*time.Minute)

	return out, nil
}

func (c *Config) resolveLegacy(out *ResolvedConfig) error {
	out.DefaultProvider = c.Routing.DefaultProvider

	for name, entry := range c.Providers {
		models := make([]gwtypes.ModelConfig, 0, len(entry.Models))
		for alias, model := range entry.Models {
			model.Provider = name
			model.Alias = alias
			if err := model.Validate(); err != nil {
				return fmt.Errorf("provider %s model %s: %w", name, alias, err)
			}
			models = append(models, model)
		}
		sortModelsByAlias(models)
		out.Providers = append(out.Providers, ResolvedProvider{
			Name:    name,
			Type:    entry.Type,
			APIKey:  resolveEnv(entry.APIKey),
			BaseURL: entry.BaseURL,
			Models:  models,
		})
	}
	sortProvidersByName(out.Providers)

	for tier, aliases := range c.Routing.TierPreferences {
		out.TierPreferences[gwtypes.ModelTier(tier)] = aliases
	}
	return nil
}

func (c *Config) resolveCatalog(out *ResolvedConfig) error {
	out.DefaultProvider = c.SelectionStrategy.DefaultProvider

	for name, settings := range c.ProviderSettings {
		models := make([]gwtypes.ModelConfig, 0, len(c.ModelCatalog[name]))
		for alias, model := range c.ModelCatalog[name] {
			model.Provider = name
			model.Alias = alias
			if err := model.Validate(); err != nil {
				return fmt.Errorf("provider %s model %s: %w", name, alias, err)
			}
			models = append(models, model)
		}
		sortModelsByAlias(models)
		out.Providers = append(out.Providers, ResolvedProvider{
			Name:    name,
			Type:    settings.Type,
			APIKey:  resolveEnv(settings.APIKey),
			BaseURL: settings.BaseURL,
			Models:  models,
		})
	}
	sortProvidersByName(out.Providers)

	for tier, entry := range c.ModelTiers {
		sorted := append([]TierProviderEntry(nil), entry.Providers...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
		prefs := make([]string, 0, len(sorted))
		for _, p := range sorted {
			prefs = append(prefs, p.Provider+":"+p.Alias)
		}
		out.TierPreferences[gwtypes.ModelTier(tier)] = prefs
	}
	return nil
}

func (c *Config) applyPricingOverrides(out *ResolvedConfig) {
	if len(c.Pricing.Models) == 0 {
		return
	}
	for i := range out.Providers {
		overrides, ok := c.Pricing.Models[out.Providers[i].Name]
		if !ok {
			continue
		}
		for j := range out.Providers[i].Models {
			m := &out.Providers[i].Models[j]
			override, ok := overrides[m.Alias]
			if !ok {
				override, ok = overrides[m.ModelID]
			}
			if !ok {
				continue
			}
			if override.InputPer1K != nil {
				m.InputPricePer1K = *override.InputPer1K
			}
			if override.OutputPer1K != nil {
				m.OutputPricePer1K = *override.OutputPer1K
			}
		}
	}
}

func sortModelsByAlias(models []gwtypes.ModelConfig) {
	sort.Slice(models, func(i, j int) bool { return models[i].Alias < models[j].Alias })
}

func sortProvidersByName(providers []ResolvedProvider) {
	sort.Slice(providers, func(i, j int) bool { return providers[i].Name < providers[j].Name })
}

func firstNonZeroInt(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstNonZeroDuration(values ...time.Duration) time.Duration {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
