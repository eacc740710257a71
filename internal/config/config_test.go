package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromPathAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "anthropic:\n  api_key: test-key\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Anthropic.APIKey != "test-key" {
		t.Fatalf("APIKey = %q", cfg.Anthropic.APIKey)
	}
	if cfg.Timeouts.Invoke != 2*time.Minute {
		t.Fatalf("Timeouts.Invoke = %v, want default 2m", cfg.Timeouts.Invoke)
	}
	if cfg.Retry.Multiplier != 2.0 {
		t.Fatalf("Retry.Multiplier = %v, want default 2.0", cfg.Retry.Multiplier)
	}
	if cfg.Stores.MaxPlans != 1000 {
		t.Fatalf("Stores.MaxPlans = %d, want default 1000", cfg.Stores.MaxPlans)
	}
	if cfg.Execution.MaxRaceAgents != 3 {
		t.Fatalf("Execution.MaxRaceAgents = %d, want default 3", cfg.Execution.MaxRaceAgents)
	}
}

func TestLoadFromPathOverrides(t *testing.T) {
	path := writeConfig(t, `
anthropic:
  model: claude-opus-4-20250514
timeouts:
  invoke: 5m
  wait: 10s
execution:
  max_iterations: 50
  default_strategy: parallel
stores:
  plan_ttl: 10m
  max_plans: 25
registry:
  catalogue_path: /etc/quorum/agents.yaml
`)

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Anthropic.Model != "claude-opus-4-20250514" {
		t.Fatalf("Model = %q", cfg.Anthropic.Model)
	}
	if cfg.Timeouts.Invoke != 5*time.Minute || cfg.Timeouts.Wait != 10*time.Second {
		t.Fatalf("Timeouts = %+v", cfg.Timeouts)
	}
	if cfg.Execution.MaxIterations != 50 {
		t.Fatalf("MaxIterations = %d", cfg.Execution.MaxIterations)
	}
	if cfg.Execution.DefaultStrategy != "parallel" {
		t.Fatalf("DefaultStrategy = %q", cfg.Execution.DefaultStrategy)
	}
	if cfg.Stores.PlanTTL != 10*time.Minute || cfg.Stores.MaxPlans != 25 {
		t.Fatalf("Stores = %+v", cfg.Stores)
	}
	if cfg.Registry.CataloguePath != "/etc/quorum/agents.yaml" {
		t.Fatalf("CataloguePath = %q", cfg.Registry.CataloguePath)
	}
}

func TestLoadFromPathExpandsEnvInAPIKey(t *testing.T) {
	t.Setenv("QUORUM_TEST_SECRET", "sk-from-env")
	path := writeConfig(t, "anthropic:\n  api_key: ${QUORUM_TEST_SECRET}\n")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-from-env" {
		t.Fatalf("APIKey = %q, want expanded env value", cfg.Anthropic.APIKey)
	}
}

func TestLoadFromPathMissingFile(t *testing.T) {
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing config file should error")
	}
}

func TestDefaultMatchesSetDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Timeouts.Invoke != 2*time.Minute {
		t.Fatalf("Invoke = %v", cfg.Timeouts.Invoke)
	}
	if cfg.Stores.WorkingGrace != 15*time.Minute {
		t.Fatalf("WorkingGrace = %v", cfg.Stores.WorkingGrace)
	}
	if cfg.Execution.MaxIterations != 100 {
		t.Fatalf("MaxIterations = %d", cfg.Execution.MaxIterations)
	}
}
