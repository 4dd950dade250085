package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateManifest(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateFFmpeg(); err != nil {
		return err
	}
	if err := c.validateValidation(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	return nil
}

func (c *Config) validateManifest() error {
	switch c.Manifest.Format {
	case ManifestFormatRows, ManifestFormatHeader:
		return nil
	default:
		return fmt.Errorf("manifest.format: unsupported value %q (want %q or %q)", c.Manifest.Format, ManifestFormatRows, ManifestFormatHeader)
	}
}

func (c *Config) validateFetch() error {
	switch c.Fetch.Backend {
	case FetchBackendYTDLP, FetchBackendHTTP:
	default:
		return fmt.Errorf("fetch.backend: unsupported value %q (want %q or %q)", c.Fetch.Backend, FetchBackendYTDLP, FetchBackendHTTP)
	}
	if !strings.Contains(c.Fetch.ReferenceFormat, "{id}") {
		return errors.New("fetch.reference_format must contain the {id} placeholder")
	}
	if _, err := c.FetchExtraArgs(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateFFmpeg() error {
	if c.FFmpeg.SampleRate < 0 {
		return errors.New("ffmpeg.sample_rate must not be negative")
	}
	if c.FFmpeg.Channels < 0 {
		return errors.New("ffmpeg.channels must not be negative")
	}
	if _, err := c.FFmpegExtraArgs(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateValidation() error {
	if c.Validation.DurationToleranceSeconds < 0 {
		return errors.New("validation.duration_tolerance_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json", "auto":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
