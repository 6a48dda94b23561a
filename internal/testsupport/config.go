// Package testsupport holds shared fixtures for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"fieldsync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test
// and placeholder backend endpoints.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.CredentialsFile = filepath.Join(base, "credentials.json")
	cfg.Ledger.BaseURL = "http://ledger.invalid"
	cfg.Proof.BaseURL = "http://proof.invalid"
	cfg.Proof.SchemaUID = "0xtest-schema"

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithLedgerURL points the ledger client at a test server.
func WithLedgerURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Ledger.BaseURL = url
	}
}

// WithProofURL points the proof client at a test server.
func WithProofURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Proof.BaseURL = url
	}
}
