package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Telegram contains delivery-platform settings.
type Telegram struct {
	Token              string `toml:"token"`
	APIBase            string `toml:"api_base"`
	InlineCeilingMiB   int    `toml:"inline_ceiling_mib"`
	DocumentCeilingMiB int    `toml:"document_ceiling_mib"`
	MaxGroupSize       int    `toml:"max_group_size"`
	SendTimeout        int    `toml:"send_timeout"`
	PollTimeout        int    `toml:"poll_timeout"`
}

// Instagram contains source-platform settings and optional credentials.
type Instagram struct {
	Username          string `toml:"username"`
	Password          string `toml:"password"`
	SessionFile       string `toml:"session_file"`
	APIBase           string `toml:"api_base"`
	UserAgent         string `toml:"user_agent"`
	FirefoxCookiePath string `toml:"firefox_cookie_path"`
}

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
	DataDir    string `toml:"data_dir"`
}

// Fetch contains download behavior settings.
type Fetch struct {
	Parallelism   int `toml:"parallelism"`
	LookupTimeout int `toml:"lookup_timeout"`
	ItemTimeout   int `toml:"item_timeout"`
	ChunkKiB      int `toml:"chunk_kib"`
}

// Transcode contains settings for the tiered ffmpeg size-fit strategy.
type Transcode struct {
	FFmpegBinary     string `toml:"ffmpeg_binary"`
	TierTimeout      int    `toml:"tier_timeout"`
	ReencodeCRF      int    `toml:"reencode_crf"`
	DownscaleCRF     int    `toml:"downscale_crf"`
	MaxHeight        int    `toml:"max_height"`
	AudioBitrateKbps int    `toml:"audio_bitrate_kbps"`
}

// Workflow contains job admission settings.
type Workflow struct {
	MaxConcurrent int `toml:"max_concurrent"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Eclipse.
//
// Sections by subsystem:
//   - Telegram: bot token, transfer ceilings, group size, timeouts
//   - Instagram: credentials, session artifact, endpoints
//   - Paths: scratch, log, and data directories
//   - Fetch: download fan-out and timeouts
//   - Transcode: ffmpeg binary and tier parameters
//   - Workflow: global job concurrency
//   - Logging: log format and level
type Config struct {
	Telegram  Telegram  `toml:"telegram"`
	Instagram Instagram `toml:"instagram"`
	Paths     Paths     `toml:"paths"`
	Fetch     Fetch     `toml:"fetch"`
	Transcode Transcode `toml:"transcode"`
	Workflow  Workflow  `toml:"workflow"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/eclipse/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("eclipse.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories required for operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir, c.Paths.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the job ledger location under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "eclipse.db")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "eclipse.lock")
}

// InlineCeilingBytes returns the streamed-video transfer ceiling in bytes.
func (c *Config) InlineCeilingBytes() int64 {
	return int64(c.Telegram.InlineCeilingMiB) * 1024 * 1024
}

// DocumentCeilingBytes returns the non-streaming transfer ceiling in bytes.
func (c *Config) DocumentCeilingBytes() int64 {
	return int64(c.Telegram.DocumentCeilingMiB) * 1024 * 1024
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Redacted returns a copy safe for display: secrets are masked.
func (c *Config) Redacted() Config {
	cp := *c
	if cp.Telegram.Token != "" {
		cp.Telegram.Token = "<redacted>"
	}
	if cp.Instagram.Password != "" {
		cp.Instagram.Password = "<redacted>"
	}
	return cp
}
