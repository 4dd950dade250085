package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeBatch(); err != nil {
		return err
	}
	c.normalizeManifest()
	c.normalizeFetch()
	c.normalizeFFmpeg()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(strings.TrimSpace(c.Paths.WorkDir)); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeBatch() error {
	manifests := make([]string, 0, len(c.Batch.Manifests))
	seen := make(map[string]struct{}, len(c.Batch.Manifests))
	for _, raw := range c.Batch.Manifests {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		expanded, err := expandPath(trimmed)
		if err != nil {
			return fmt.Errorf("batch.manifests: %w", err)
		}
		if _, ok := seen[expanded]; ok {
			continue
		}
		seen[expanded] = struct{}{}
		manifests = append(manifests, expanded)
	}
	c.Batch.Manifests = manifests
	if c.Batch.RowLimit < 0 {
		c.Batch.RowLimit = 0
	}
	return nil
}

func (c *Config) normalizeManifest() {
	c.Manifest.Format = strings.ToLower(strings.TrimSpace(c.Manifest.Format))
	if c.Manifest.Format == "" {
		c.Manifest.Format = defaultManifestFormat
	}
}

func (c *Config) normalizeFetch() {
	c.Fetch.Backend = strings.ToLower(strings.TrimSpace(c.Fetch.Backend))
	if c.Fetch.Backend == "" {
		c.Fetch.Backend = defaultFetchBackend
	}
	c.Fetch.Binary = strings.TrimSpace(c.Fetch.Binary)
	if c.Fetch.Binary == "" {
		c.Fetch.Binary = defaultFetchBinary
	}
	c.Fetch.ReferenceFormat = strings.TrimSpace(c.Fetch.ReferenceFormat)
	if c.Fetch.ReferenceFormat == "" {
		c.Fetch.ReferenceFormat = defaultReferenceFormat
	}
	if c.Fetch.TimeoutSeconds < 0 {
		c.Fetch.TimeoutSeconds = 0
	}
}

func (c *Config) normalizeFFmpeg() {
	c.FFmpeg.Binary = strings.TrimSpace(c.FFmpeg.Binary)
	if c.FFmpeg.Binary == "" {
		c.FFmpeg.Binary = defaultFFmpegBinary
	}
	c.FFmpeg.FFprobeBinary = strings.TrimSpace(c.FFmpeg.FFprobeBinary)
	if c.FFmpeg.FFprobeBinary == "" {
		c.FFmpeg.FFprobeBinary = defaultFFprobeBinary
	}
	if c.FFmpeg.TimeoutSeconds < 0 {
		c.FFmpeg.TimeoutSeconds = 0
	}
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
