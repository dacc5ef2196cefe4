package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Defaults.Budget != "1.00" {
		t.Errorf("expected default budget '1.00', got %q", cfg.Defaults.Budget)
	}

	if cfg.Defaults.Currency != "USDC" {
		t.Errorf("expected default currency 'USDC', got %q", cfg.Defaults.Currency)
	}

	if cfg.Defaults.Planner != "heuristic" {
		t.Errorf("expected default planner 'heuristic', got %q", cfg.Defaults.Planner)
	}

	if cfg.Defaults.MaxConcurrent != 3 {
		t.Errorf("expected default max_concurrent 3, got %d", cfg.Defaults.MaxConcurrent)
	}

	if cfg.Health.Interval != "@every 30s" {
		t.Errorf("expected probe interval '@every 30s', got %q", cfg.Health.Interval)
	}

	if cfg.Health.Timeout != 3*time.Second {
		t.Errorf("expected probe timeout 3s, got %v", cfg.Health.Timeout)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("expected server addr ':8080', got %q", cfg.Server.Addr)
	}

	if cfg.TUI.RefreshRate != 100*time.Millisecond {
		t.Errorf("expected refresh rate 100ms, got %v", cfg.TUI.RefreshRate)
	}

	sum := cfg.Weights.Health + cfg.Weights.Rating + cfg.Weights.Price + cfg.Weights.ResponseTime
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("expected default weights to sum to 1, got %v", sum)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
anthropic:
  api_key: test-key
  model: claude-sonnet-4-20250514
defaults:
  budget: "5.00"
  currency: EURC
  planner: llm
  max_concurrent: 5
  timeout: 10m
weights:
  health: 0.5
  rating: 0.2
  price: 0.2
  response_time: 0.1
health:
  interval: "@every 10s"
  timeout: 1s
  parallel: false
registry:
  db_path: /tmp/agora.db
  seed_path: catalog.yaml
server:
  addr: ":9090"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "test-key" {
		t.Errorf("expected api_key 'test-key', got %q", cfg.Anthropic.APIKey)
	}

	if cfg.Defaults.Budget != "5.00" {
		t.Errorf("expected budget '5.00', got %q", cfg.Defaults.Budget)
	}

	if cfg.Defaults.Currency != "EURC" {
		t.Errorf("expected currency 'EURC', got %q", cfg.Defaults.Currency)
	}

	if cfg.Defaults.Planner != "llm" {
		t.Errorf("expected planner 'llm', got %q", cfg.Defaults.Planner)
	}

	if cfg.Defaults.Timeout != 10*time.Minute {
		t.Errorf("expected timeout 10m, got %v", cfg.Defaults.Timeout)
	}

	if cfg.Weights.Health != 0.5 {
		t.Errorf("expected weights.health 0.5, got %v", cfg.Weights.Health)
	}

	if cfg.Health.Interval != "@every 10s" {
		t.Errorf("expected probe interval '@every 10s', got %q", cfg.Health.Interval)
	}

	if cfg.Health.Parallel {
		t.Error("expected health.parallel to be false")
	}

	if cfg.Registry.DBPath != "/tmp/agora.db" {
		t.Errorf("expected db_path '/tmp/agora.db', got %q", cfg.Registry.DBPath)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("expected server addr ':9090', got %q", cfg.Server.Addr)
	}
}

func TestLoadFromPathDefaultsFillGaps(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("server:\n  addr: \":7070\"\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Server.Addr != ":7070" {
		t.Errorf("expected overridden addr ':7070', got %q", cfg.Server.Addr)
	}

	if cfg.Defaults.Budget != "1.00" {
		t.Errorf("expected default budget to survive, got %q", cfg.Defaults.Budget)
	}

	if cfg.Health.Interval != "@every 30s" {
		t.Errorf("expected default probe interval to survive, got %q", cfg.Health.Interval)
	}
}

func TestAPIKeyEnvExpansion(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	os.Setenv("AGORA_TEST_KEY", "sk-ant-expanded")
	defer os.Unsetenv("AGORA_TEST_KEY")

	configContent := "anthropic:\n  api_key: ${AGORA_TEST_KEY}\n"
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "sk-ant-expanded" {
		t.Errorf("expected expanded api_key, got %q", cfg.Anthropic.APIKey)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	os.Setenv("XDG_CONFIG_HOME", "/custom/config")
	defer os.Unsetenv("XDG_CONFIG_HOME")

	dir := getUserConfigDir()
	expected := "/custom/config/agora"
	if dir != expected {
		t.Errorf("expected %q, got %q", expected, dir)
	}
}
