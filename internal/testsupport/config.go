// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"eclipse/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Telegram.Token = "1234:test-token"
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Instagram.SessionFile = filepath.Join(base, "session.json")

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithAPIBases points the Telegram and Instagram clients at test servers.
func WithAPIBases(telegram, instagram string) ConfigOption {
	return func(cfg *config.Config) {
		if telegram != "" {
			cfg.Telegram.APIBase = telegram
		}
		if instagram != "" {
			cfg.Instagram.APIBase = instagram
		}
	}
}
