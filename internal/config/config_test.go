package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shannon-run/llm-gateway/internal/gwtypes"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadLegacyForm(t *testing.T) {
	path := writeTempConfig(t, `
providers:
  anthropic:
    type: anthropic
    api_key: test-key
    models:
      claude-haiku:
        model_id: claude-haiku-4
        tier: small
        context_window: 200000
        max_tokens: 4096
routing:
  default_provider: anthropic
  tier_preferences:
    small: ["anthropic:claude-haiku"]
caching:
  enabled: true
  max_size: 500
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Providers) != 1 || cfg.Providers[0].Name != "anthropic" {
		t.Fatalf("unexpected providers: %+v", cfg.Providers)
	}
	if cfg.DefaultProvider != "anthropic" {
		t.Errorf("got default provider %q, want anthropic", cfg.DefaultProvider)
	}
	if got := cfg.TierPreferences[gwtypes.TierSmall]; len(got) != 1 || got[0] != "anthropic:claude-haiku" {
		t.Errorf("unexpected tier preferences: %v", got)
	}
	if !cfg.CacheEnabled || cfg.CacheMaxSize != 500 {
		t.Errorf("expected caching enabled with max_size=500, got enabled=%v size=%d", cfg.CacheEnabled, cfg.CacheMaxSize)
	}
}

func TestLoadCatalogFormSortsTierByPriority(t *testing.T) {
	path := writeTempConfig(t, `
provider_settings:
  anthropic:
    type: anthropic
    api_key: test-key
  openai:
    type: openai
    api_key: test-key-2
model_catalog:
  anthropic:
    claude-haiku:
      model_id: claude-haiku-4
      tier: small
      context_window: 200000
      max_tokens: 4096
  openai:
    gpt-4o-mini:
      model_id: gpt-4o-mini
      tier: small
      context_window: 128000
      max_tokens: 4096
model_tiers:
  small:
    providers:
      - provider: openai
        alias: gpt-4o-mini
        priority: 2
      - provider: anthropic
        alias: claude-haiku
        priority: 1
selection_strategy:
  default_provider: anthropic
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prefs := cfg.TierPreferences[gwtypes.TierSmall]
	if len(prefs) != 2 || prefs[0] != "anthropic:claude-haiku" || prefs[1] != "openai:gpt-4o-mini" {
		t.Fatalf("expected priority-sorted preferences, got %v", prefs)
	}
}

func TestLoadAppliesPricingOverrides(t *testing.T) {
	path := writeTempConfig(t, `
providers:
  anthropic:
    type: anthropic
    api_key: test-key
    models:
      claude-haiku:
        model_id: claude-haiku-4
        tier: small
        context_window: 200000
        max_tokens: 4096
        input_per_1k: 0.001
        output_per_1k: 0.002
pricing:
  models:
    anthropic:
      claude-haiku:
        input_per_1k: 0.0005
        output_per_1k: 0.0015
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	model := cfg.Providers[0].Models[0]
	if model.InputPricePer1K != 0.0005 || model.OutputPricePer1K != 0.0015 {
		t.Errorf("pricing override not applied: %+v", model)
	}
}

func TestLoadRejectsMaxTokensExceedingContextWindow(t *testing.T) {
	path := writeTempConfig(t, `
providers:
  anthropic:
    type: anthropic
    api_key: test-key
    models:
      claude-haiku:
        model_id: claude-haiku-4
        tier: small
        context_window: 1000
        max_tokens: 4096
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for max_tokens exceeding context_window")
	}
}

func TestResolveEnvExpandsDollarPrefixedValue(t *testing.T) {
	t.Setenv("GATEWAY_TEST_API_KEY", "secret-value")
	if got := resolveEnv("$GATEWAY_TEST_API_KEY"); got != "secret-value" {
		t.Errorf("got %q, want secret-value", got)
	}
	if got := resolveEnv("plain-value"); got != "plain-value" {
		t.Errorf("got %q, want plain-value unchanged", got)
	}
}
