package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTelegram(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateTranscode(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateTelegram() error {
	if c.Telegram.Token == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/eclipse/config.toml"
		}
		return fmt.Errorf("telegram.token is required. Set ECLIPSE_BOT_TOKEN or edit %s (create with 'eclipse config init')", defaultPath)
	}
	if c.Telegram.InlineCeilingMiB <= 0 {
		return errors.New("telegram.inline_ceiling_mib must be positive")
	}
	if c.Telegram.DocumentCeilingMiB <= c.Telegram.InlineCeilingMiB {
		return errors.New("telegram.document_ceiling_mib must exceed telegram.inline_ceiling_mib")
	}
	if c.Telegram.MaxGroupSize < 1 || c.Telegram.MaxGroupSize > 10 {
		return errors.New("telegram.max_group_size must be between 1 and 10")
	}
	if c.Telegram.SendTimeout <= 0 {
		return errors.New("telegram.send_timeout must be positive")
	}
	if c.Telegram.PollTimeout < 1 || c.Telegram.PollTimeout > 50 {
		return errors.New("telegram.poll_timeout must be between 1 and 50 seconds")
	}
	return nil
}

func (c *Config) validateFetch() error {
	if c.Fetch.Parallelism < 1 || c.Fetch.Parallelism > 4 {
		return errors.New("fetch.parallelism must be between 1 and 4")
	}
	if c.Fetch.LookupTimeout <= 0 {
		return errors.New("fetch.lookup_timeout must be positive")
	}
	if c.Fetch.ItemTimeout <= 0 {
		return errors.New("fetch.item_timeout must be positive")
	}
	if c.Fetch.ChunkKiB < 4 {
		return errors.New("fetch.chunk_kib must be at least 4")
	}
	return nil
}

func (c *Config) validateTranscode() error {
	if c.Transcode.FFmpegBinary == "" {
		return errors.New("transcode.ffmpeg_binary must be set")
	}
	if c.Transcode.TierTimeout <= 0 {
		return errors.New("transcode.tier_timeout must be positive")
	}
	for name, crf := range map[string]int{
		"transcode.reencode_crf":  c.Transcode.ReencodeCRF,
		"transcode.downscale_crf": c.Transcode.DownscaleCRF,
	} {
		if crf < 0 || crf > 51 {
			return fmt.Errorf("%s must be between 0 and 51", name)
		}
	}
	if c.Transcode.MaxHeight < 144 {
		return errors.New("transcode.max_height must be at least 144")
	}
	if c.Transcode.AudioBitrateKbps < 32 {
		return errors.New("transcode.audio_bitrate_kbps must be at least 32")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.MaxConcurrent < 1 || c.Workflow.MaxConcurrent > 2 {
		return errors.New("workflow.max_concurrent must be 1 or 2")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
