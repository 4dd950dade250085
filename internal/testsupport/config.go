package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"clipharvest/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Fetch.TimeoutSeconds = 30
	cfgVal.FFmpeg.TimeoutSeconds = 30

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Finalize(); err != nil {
		t.Fatalf("finalize test config: %v", err)
	}
	return builder.cfg
}

// WithRowLimit sets batch.row_limit.
func WithRowLimit(limit int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Batch.RowLimit = limit
	}
}

// WithReset sets batch.reset_workspace_on_start.
func WithReset(reset bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Batch.ResetWorkspaceOnStart = reset
	}
}

// WithKeepIntermediates sets batch.keep_intermediates.
func WithKeepIntermediates(keep bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Batch.KeepIntermediates = keep
	}
}

// WithManifests sets batch.manifests.
func WithManifests(paths ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Batch.Manifests = append([]string(nil), paths...)
	}
}

// WithVerifyDuration enables trimmed clip duration checks.
func WithVerifyDuration(tolerance float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Validation.VerifyDuration = true
		b.cfg.Validation.DurationToleranceSeconds = tolerance
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default clipharvest external
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"yt-dlp", "ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
