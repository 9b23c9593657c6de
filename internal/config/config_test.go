package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg := Default()
	cfg.Telegram.Token = "123:abc"
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return cfg
}

func TestDefaultValidatesWithToken(t *testing.T) {
	cfg := validConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRequiresToken(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.Token != "" {
		t.Skip("token present in environment")
	}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "telegram.token") {
		t.Fatalf("expected token error, got %v", err)
	}
}

func TestTokenFromEnvironment(t *testing.T) {
	t.Setenv("ECLIPSE_BOT_TOKEN", "999:env-token")
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.Token != "999:env-token" {
		t.Fatalf("token not read from environment: %q", cfg.Telegram.Token)
	}
}

func TestLoadParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[telegram]
token = "42:file-token"
inline_ceiling_mib = 40

[fetch]
parallelism = 2

[paths]
staging_dir = "` + filepath.Join(dir, "staging") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"
data_dir = "` + dir + `"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Telegram.Token != "42:file-token" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.InlineCeilingMiB != 40 {
		t.Fatalf("inline ceiling = %d", cfg.Telegram.InlineCeilingMiB)
	}
	if cfg.Fetch.Parallelism != 2 {
		t.Fatalf("parallelism = %d", cfg.Fetch.Parallelism)
	}
	// Untouched sections keep defaults.
	if cfg.Telegram.MaxGroupSize != defaultMaxGroupSize {
		t.Fatalf("max group size = %d", cfg.Telegram.MaxGroupSize)
	}
}

func TestValidateRejectsBadRanges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"parallelism too high", func(c *Config) { c.Fetch.Parallelism = 9 }},
		{"group size zero", func(c *Config) { c.Telegram.MaxGroupSize = 0 }},
		{"group size over ten", func(c *Config) { c.Telegram.MaxGroupSize = 11 }},
		{"document below inline", func(c *Config) { c.Telegram.DocumentCeilingMiB = 10 }},
		{"concurrency zero", func(c *Config) { c.Workflow.MaxConcurrent = 0 }},
		{"concurrency three", func(c *Config) { c.Workflow.MaxConcurrent = 3 }},
		{"crf out of range", func(c *Config) { c.Transcode.ReencodeCRF = 70 }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCeilingBytes(t *testing.T) {
	cfg := validConfig(t)
	cfg.Telegram.InlineCeilingMiB = 48
	if got := cfg.InlineCeilingBytes(); got != 48*1024*1024 {
		t.Fatalf("inline ceiling bytes = %d", got)
	}
}

func TestRedactedMasksSecrets(t *testing.T) {
	cfg := validConfig(t)
	cfg.Instagram.Password = "hunter2"
	red := cfg.Redacted()
	if red.Telegram.Token == cfg.Telegram.Token || red.Instagram.Password == "hunter2" {
		t.Fatal("secrets not redacted")
	}
	// Original untouched.
	if cfg.Instagram.Password != "hunter2" {
		t.Fatal("redaction mutated source config")
	}
}

func TestCreateSample(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatalf("create sample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[telegram]") {
		t.Fatal("sample missing telegram section")
	}
}
