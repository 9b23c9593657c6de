package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeTelegram(); err != nil {
		return err
	}
	if err := c.normalizeInstagram(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTelegram() error {
	c.Telegram.Token = strings.TrimSpace(c.Telegram.Token)
	if c.Telegram.Token == "" {
		// The original deployment supplied the token via dotenv.
		c.Telegram.Token = strings.TrimSpace(firstEnv("ECLIPSE_BOT_TOKEN", "BOT_TOKEN"))
	}
	c.Telegram.APIBase = strings.TrimRight(strings.TrimSpace(c.Telegram.APIBase), "/")
	if c.Telegram.APIBase == "" {
		c.Telegram.APIBase = defaultTelegramAPIBase
	}
	return nil
}

func (c *Config) normalizeInstagram() error {
	c.Instagram.Username = strings.TrimSpace(c.Instagram.Username)
	if c.Instagram.Username == "" {
		c.Instagram.Username = strings.TrimSpace(os.Getenv("ECLIPSE_IG_USERNAME"))
	}
	if c.Instagram.Password == "" {
		c.Instagram.Password = os.Getenv("ECLIPSE_IG_PASSWORD")
	}
	c.Instagram.APIBase = strings.TrimRight(strings.TrimSpace(c.Instagram.APIBase), "/")
	if c.Instagram.APIBase == "" {
		c.Instagram.APIBase = defaultInstagramAPIBase
	}
	c.Instagram.UserAgent = strings.TrimSpace(c.Instagram.UserAgent)
	if c.Instagram.UserAgent == "" {
		c.Instagram.UserAgent = defaultUserAgent
	}

	var err error
	if strings.TrimSpace(c.Instagram.SessionFile) == "" {
		c.Instagram.SessionFile = defaultSessionFile
	}
	if c.Instagram.SessionFile, err = expandPath(c.Instagram.SessionFile); err != nil {
		return fmt.Errorf("instagram.session_file: %w", err)
	}
	if strings.TrimSpace(c.Instagram.FirefoxCookiePath) != "" {
		if c.Instagram.FirefoxCookiePath, err = expandPath(c.Instagram.FirefoxCookiePath); err != nil {
			return fmt.Errorf("instagram.firefox_cookie_path: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
