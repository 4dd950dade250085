package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Manifest input shapes.
const (
	ManifestFormatRows   = "rows"
	ManifestFormatHeader = "header"
)

// Retrieval backends.
const (
	FetchBackendYTDLP = "ytdlp"
	FetchBackendHTTP  = "http"
)

// Paths contains directory configuration.
type Paths struct {
	WorkDir string `toml:"work_dir"`
	LogDir  string `toml:"log_dir"`
}

// Batch contains the set of manifests and the per-manifest processing policy.
type Batch struct {
	Manifests []string `toml:"manifests"`
	// RowLimit bounds how many manifest rows each unit considers. Zero or
	// negative processes every row.
	RowLimit              int  `toml:"row_limit"`
	PreferHighestQuality  bool `toml:"prefer_highest_quality"`
	ResetWorkspaceOnStart bool `toml:"reset_workspace_on_start"`
	// KeepIntermediates retains raw/<id>.* and transcoded/<id>.wav after a
	// row is recorded.
	KeepIntermediates bool `toml:"keep_intermediates"`
}

// Manifest contains manifest parsing options.
type Manifest struct {
	Format string `toml:"format"`
}

// Fetch contains configuration for remote asset retrieval.
type Fetch struct {
	Backend         string `toml:"backend"`
	Binary          string `toml:"binary"`
	ReferenceFormat string `toml:"reference_format"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	ExtraArgs       string `toml:"extra_args"`
}

// FFmpeg contains configuration for the transcode and trim stages.
type FFmpeg struct {
	Binary         string `toml:"binary"`
	FFprobeBinary  string `toml:"ffprobe_binary"`
	SampleRate     int    `toml:"sample_rate"`
	Channels       int    `toml:"channels"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	ExtraArgs      string `toml:"extra_args"`
}

// Validation contains optional output checks.
type Validation struct {
	// VerifyDuration probes each trimmed clip and fails the row when the
	// clip is shorter than the requested window minus the tolerance.
	VerifyDuration           bool    `toml:"verify_duration"`
	DurationToleranceSeconds float64 `toml:"duration_tolerance_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for clipharvest.
//
// Configuration sections by subsystem:
//   - Paths: working and log directories
//   - Batch: manifests, row limit, quality and reset policy
//   - Manifest: input table shape
//   - Fetch: retrieval backend and reference format
//   - FFmpeg: transcode/trim tool settings
//   - Validation: trimmed output verification
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Batch      Batch      `toml:"batch"`
	Manifest   Manifest   `toml:"manifest"`
	Fetch      Fetch      `toml:"fetch"`
	FFmpeg     FFmpeg     `toml:"ffmpeg"`
	Validation Validation `toml:"validation"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/clipharvest/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
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
		decoder.DisallowUnknownFields()
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

// Finalize normalizes and validates a config built in code (tests, CLI overrides).
func (c *Config) Finalize() error {
	if err := c.normalize(); err != nil {
		return err
	}
	return c.Validate()
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

	projectPath, err := filepath.Abs("clipharvest.toml")
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

// EnsureDirectories creates the working and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FetchExtraArgs splits fetch.extra_args using shell quoting rules.
func (c *Config) FetchExtraArgs() ([]string, error) {
	return splitArgs("fetch.extra_args", c.Fetch.ExtraArgs)
}

// FFmpegExtraArgs splits ffmpeg.extra_args using shell quoting rules.
func (c *Config) FFmpegExtraArgs() ([]string, error) {
	return splitArgs("ffmpeg.extra_args", c.FFmpeg.ExtraArgs)
}

func splitArgs(field, raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	args, err := shellquote.Split(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return args, nil
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
