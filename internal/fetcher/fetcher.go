package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"clipharvest/internal/config"
	"clipharvest/internal/logging"
	"clipharvest/internal/services"
	"clipharvest/internal/stage"
)

// Quality selects which representation of a remote asset to retrieve.
type Quality int

const (
	// QualityDefault lets the backend choose.
	QualityDefault Quality = iota
	// QualityHighest requests the best combined audio and video representation.
	QualityHighest
)

func (q Quality) String() string {
	if q == QualityHighest {
		return "highest"
	}
	return "default"
}

// QualityFor maps the prefer_highest_quality setting to a Quality.
func QualityFor(preferHighest bool) Quality {
	if preferHighest {
		return QualityHighest
	}
	return QualityDefault
}

// Retriever downloads the asset named by reference into scratchDir and
// returns the path of the downloaded file.
type Retriever interface {
	Retrieve(ctx context.Context, reference string, quality Quality, scratchDir string) (string, error)
}

// Fetcher resolves manifest identifiers to local media files.
type Fetcher struct {
	retriever       Retriever
	referenceFormat string
	timeout         time.Duration
	logger          *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithRetriever overrides the backend selected from configuration.
func WithRetriever(r Retriever) Option {
	return func(f *Fetcher) {
		if r != nil {
			f.retriever = r
		}
	}
}

// WithLogger sets the logger used for reuse and cleanup diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New builds a Fetcher for the configured backend. exec runs the yt-dlp
// backend and may be nil to use services.CommandExecutor.
func New(cfg *config.Config, exec services.Executor, opts ...Option) (*Fetcher, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, stage.Fetch, "init", "configuration required", nil)
	}
	f := &Fetcher{
		referenceFormat: cfg.Fetch.ReferenceFormat,
		logger:          logging.NewNop(),
	}
	if cfg.Fetch.TimeoutSeconds > 0 {
		f.timeout = time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.retriever != nil {
		return f, nil
	}

	switch cfg.Fetch.Backend {
	case config.FetchBackendYTDLP, "":
		extra, err := cfg.FetchExtraArgs()
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, stage.Fetch, "init", "invalid extra args", err)
		}
		if exec == nil {
			exec = services.CommandExecutor{}
		}
		f.retriever = &YTDLP{Binary: cfg.Fetch.Binary, ExtraArgs: extra, Executor: exec}
	case config.FetchBackendHTTP:
		f.retriever = &HTTP{}
	default:
		return nil, services.Wrap(services.ErrConfiguration, stage.Fetch, "init", fmt.Sprintf("unsupported backend %q", cfg.Fetch.Backend), nil)
	}
	return f, nil
}

// Reference renders the canonical reference for identifier.
func (f *Fetcher) Reference(identifier string) string {
	return strings.ReplaceAll(f.referenceFormat, "{id}", identifier)
}

// Fetch retrieves identifier into destDir as <identifier>.<ext>. An existing
// file with that naming is reused. Failures are returned as stage.Failed
// wrapping services.ErrFetch.
func (f *Fetcher) Fetch(ctx context.Context, identifier string, quality Quality, destDir string) (result stage.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = stage.Failed(stage.Fetch, services.Wrap(services.ErrFetch, stage.Fetch, "retrieve", identifier, fmt.Errorf("panic: %v", r)))
		}
	}()

	if existing := FindExisting(destDir, identifier); existing != "" {
		f.logger.Debug("reusing fetched asset",
			logging.String(logging.FieldIdentifier, identifier),
			logging.String("path", existing),
		)
		return stage.Ok(stage.Fetch, existing)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return stage.Failed(stage.Fetch, services.Wrap(services.ErrFetch, stage.Fetch, "prepare", destDir, err))
	}
	scratch, err := os.MkdirTemp(destDir, ".fetch-")
	if err != nil {
		return stage.Failed(stage.Fetch, services.Wrap(services.ErrFetch, stage.Fetch, "prepare", "create scratch directory", err))
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			f.logger.Warn("failed to remove fetch scratch directory",
				logging.String("path", scratch),
				logging.Error(err),
			)
		}
	}()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	reference := f.Reference(identifier)
	downloaded, err := f.retriever.Retrieve(ctx, reference, quality, scratch)
	if err != nil {
		return stage.Failed(stage.Fetch, services.Wrap(services.ErrFetch, stage.Fetch, "retrieve", reference, err))
	}
	info, err := os.Stat(downloaded)
	if err != nil || !info.Mode().IsRegular() {
		return stage.Failed(stage.Fetch, services.Wrap(services.ErrFetch, stage.Fetch, "retrieve", "backend produced no file for "+reference, err))
	}

	ext := filepath.Ext(downloaded)
	if ext == "" {
		ext = ".bin"
	}
	dest := filepath.Join(destDir, identifier+ext)
	if err := os.Rename(downloaded, dest); err != nil {
		return stage.Failed(stage.Fetch, services.Wrap(services.ErrFetch, stage.Fetch, "store", dest, err))
	}
	return stage.Ok(stage.Fetch, dest)
}

// HealthCheck reports whether the configured backend is usable.
func (f *Fetcher) HealthCheck(ctx context.Context) stage.Health {
	if checker, ok := f.retriever.(stage.HealthChecker); ok {
		return checker.HealthCheck(ctx)
	}
	return stage.Healthy(stage.Fetch)
}

// FindExisting returns destDir/<identifier>.<ext> when a non-empty file with
// that naming exists.
func FindExisting(destDir, identifier string) string {
	entries, err := os.ReadDir(destDir)
	if err != nil {
		return ""
	}
	prefix := identifier + "."
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !strings.HasPrefix(name, prefix) {
			continue
		}
		ext := strings.TrimPrefix(name, prefix)
		if ext == "" || strings.Contains(ext, ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		return filepath.Join(destDir, name)
	}
	return ""
}
