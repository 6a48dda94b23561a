package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fieldsync/internal/config"
)

func validConfig() config.Config {
	cfg := config.Default()
	cfg.Ledger.BaseURL = "https://ledger.example.org"
	cfg.Proof.BaseURL = "https://proof.example.org"
	cfg.Proof.SchemaUID = "0xabc"
	return cfg
}

func TestDefaultValidatesWithEndpoints(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestValidateRequiresLedgerBaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Ledger.BaseURL = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing ledger.base_url")
	}
	if !strings.Contains(err.Error(), "ledger.base_url") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsNonDecreasingBatches(t *testing.T) {
	cfg := validConfig()
	cfg.Scheduler.BatchNormal = cfg.Scheduler.BatchOptimal
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-decreasing batch sizes")
	}
}

func TestValidateRejectsShortBackgroundInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Scheduler.BackgroundIntervalMinutes = 5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for background interval below 15 minutes")
	}
}

func TestValidateRetryBounds(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero fast retries", func(c *config.Config) { c.Retry.MaxFastRetries = 0 }},
		{"zero cooldown", func(c *config.Config) { c.Retry.CooldownMinutes = 0 }},
		{"zero max age", func(c *config.Config) { c.Retry.MaxAgeDays = 0 }},
		{"negative debounce", func(c *config.Config) { c.Retry.DebounceSeconds = -1 }},
		{"zero processing timeout", func(c *config.Config) { c.Retry.ProcessingTimeoutSeconds = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadParsesFileAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[ledger]
base_url = "https://ledger.example.org/"
events_endpoint = "items/events"

[proof]
base_url = "https://proof.example.org"
schema_uid = " 0xabc "
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected resolved path %q, got %q exists=%v", path, resolved, exists)
	}
	if cfg.Ledger.BaseURL != "https://ledger.example.org" {
		t.Fatalf("base URL not normalized: %q", cfg.Ledger.BaseURL)
	}
	if cfg.Ledger.EventsEndpoint != "/items/events" {
		t.Fatalf("events endpoint not normalized: %q", cfg.Ledger.EventsEndpoint)
	}
	if cfg.Proof.SchemaUID != "0xabc" {
		t.Fatalf("schema UID not trimmed: %q", cfg.Proof.SchemaUID)
	}
	if cfg.Retry.MaxFastRetries != 3 {
		t.Fatalf("expected default retry constants, got %d", cfg.Retry.MaxFastRetries)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[retry]\nmax_fast_retries = 0\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected validation error from Load")
	}
}

func TestSampleConfigNotEmpty(t *testing.T) {
	if strings.TrimSpace(config.SampleConfig()) == "" {
		t.Fatal("sample config should not be empty")
	}
}
