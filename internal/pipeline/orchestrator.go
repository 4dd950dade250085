package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"clipharvest/internal/audio"
	"clipharvest/internal/config"
	"clipharvest/internal/fetcher"
	"clipharvest/internal/index"
	"clipharvest/internal/ledger"
	"clipharvest/internal/logging"
	"clipharvest/internal/manifest"
	"clipharvest/internal/services"
	"clipharvest/internal/stage"
	"clipharvest/internal/stageexec"
	"clipharvest/internal/workspace"
)

// Orchestrator runs manifests through fetch, transcode, trim, and record.
// It holds no per-run state, so one value may run several manifests
// sequentially or concurrently.
type Orchestrator struct {
	cfg        *config.Config
	fetcher    Fetcher
	transcoder Transcoder
	trimmer    Trimmer
	executor   services.Executor
	logger     *slog.Logger
	runID      string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFetcher replaces the configured fetch stage.
func WithFetcher(f Fetcher) Option {
	return func(o *Orchestrator) { o.fetcher = f }
}

// WithTranscoder replaces the configured transcode stage.
func WithTranscoder(t Transcoder) Option {
	return func(o *Orchestrator) { o.transcoder = t }
}

// WithTrimmer replaces the configured trim stage.
func WithTrimmer(t Trimmer) Option {
	return func(o *Orchestrator) { o.trimmer = t }
}

// WithExecutor sets the tool executor used by the default stages.
func WithExecutor(exec services.Executor) Option {
	return func(o *Orchestrator) { o.executor = exec }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRunID sets the identifier stored in the ledger and attached to logs as
// the correlation id.
func WithRunID(id string) Option {
	return func(o *Orchestrator) { o.runID = id }
}

// New builds an Orchestrator. Stages not supplied through options are built
// from cfg.
func New(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "configuration required", nil)
	}
	o := &Orchestrator{cfg: cfg, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}

	if o.fetcher == nil {
		f, err := fetcher.New(cfg, o.executor, fetcher.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}
		o.fetcher = f
	}
	if o.transcoder == nil {
		t, err := audio.NewTranscoder(cfg, o.executor)
		if err != nil {
			return nil, err
		}
		o.transcoder = t
	}
	if o.trimmer == nil {
		t, err := audio.NewTrimmer(cfg, o.executor)
		if err != nil {
			return nil, err
		}
		o.trimmer = t
	}
	return o, nil
}

// RunID returns the identifier used for ledger entries.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// HealthChecks reports readiness of every stage that exposes a health check.
func (o *Orchestrator) HealthChecks(ctx context.Context) []stage.Health {
	var checks []stage.Health
	for _, candidate := range []any{o.fetcher, o.transcoder, o.trimmer} {
		if checker, ok := candidate.(stage.HealthChecker); ok {
			checks = append(checks, checker.HealthCheck(ctx))
		}
	}
	return checks
}

// unit carries the resources one manifest run owns.
type unit struct {
	manifest Manifest
	ws       *workspace.Workspace
	idx      *index.Writer
	ledger   *ledger.Store
	logger   *slog.Logger
	resume   bool
	produced map[string]struct{}
}

// Run processes every row of m (bounded by batch.row_limit). Row failures
// are recorded in the summary; the returned error is reserved for failures
// that stop the whole manifest (workspace, index, unreadable manifest,
// cancellation).
func (o *Orchestrator) Run(ctx context.Context, m Manifest) (Summary, error) {
	started := time.Now()
	summary := Summary{ManifestID: m.ID, ManifestPath: m.Path, RunID: o.runID}
	ctx = services.WithManifest(ctx, m.ID)
	ctx = services.WithRequestID(ctx, o.runID)
	unitLogger := logging.WithContext(ctx, o.logger)

	reset := o.cfg.Batch.ResetWorkspaceOnStart
	ws, err := workspace.Prepare(o.cfg.Paths.WorkDir, m.ID, reset)
	if err != nil {
		logging.ErrorWithContext(unitLogger, "workspace unavailable", "workspace_error",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check work_dir permissions or wait for the other run to finish"),
		)
		return summary, err
	}
	defer func() {
		if err := ws.Release(); err != nil {
			unitLogger.Warn("failed to release workspace lock", logging.Error(err))
		}
	}()

	u := &unit{
		manifest: m,
		ws:       ws,
		logger:   o.logger,
		resume:   !reset,
		produced: make(map[string]struct{}),
	}
	if handler, closer, err := logging.NewFileHandler(ws.LogPath, o.cfg.Logging.Format, o.cfg.Logging.Level); err != nil {
		unitLogger.Warn("manifest log unavailable", logging.Error(err), logging.String("path", ws.LogPath))
	} else {
		defer closer.Close()
		u.logger = logging.TeeLogger(o.logger, handler)
		unitLogger = logging.WithContext(ctx, u.logger)
	}

	if store, err := ledger.Open(ws.LedgerPath); err != nil {
		unitLogger.Warn("outcome ledger unavailable; row outcomes will only be logged",
			logging.Error(err),
			logging.String(logging.FieldEventType, "ledger_unavailable"),
		)
	} else {
		defer store.Close()
		if err := store.BeginRun(ctx, o.runID, m.Path); err != nil {
			unitLogger.Warn("failed to register run in ledger", logging.Error(err))
		} else {
			u.ledger = store
		}
	}

	unitLogger.Info("manifest started",
		logging.String(logging.FieldEventType, "unit_start"),
		logging.String("manifest_path", m.Path),
		logging.String("workspace", ws.Root),
		logging.Bool("reset", reset),
		logging.Int("row_limit", o.cfg.Batch.RowLimit),
	)

	runErr := o.runRows(ctx, u, &summary)
	summary.Duration = time.Since(started)
	o.finish(ctx, u, &summary, runErr)
	return summary, runErr
}

func (o *Orchestrator) runRows(ctx context.Context, u *unit, summary *Summary) error {
	idx, err := index.Open(u.ws.IndexPath)
	if err != nil {
		return services.Wrap(services.ErrWorkspace, "record", "open index", u.ws.IndexPath, err)
	}
	defer idx.Close()
	u.idx = idx

	reader, err := manifest.Open(u.manifest.Path, o.cfg.Manifest.Format)
	if err != nil {
		return err
	}
	defer reader.Close()

	limit := o.cfg.Batch.RowLimit
	quality := fetcher.QualityFor(o.cfg.Batch.PreferHighestQuality)
	for limit <= 0 || summary.Processed < limit {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var parseErr *manifest.ParseError
			if !errors.As(err, &parseErr) {
				return services.Wrap(services.ErrManifestParse, "manifest", "read", u.manifest.Path, err)
			}
			o.note(ctx, u, summary, o.parseFailure(ctx, u, parseErr))
			continue
		}
		o.note(ctx, u, summary, o.processRow(ctx, u, row, quality))
	}
	return nil
}

func (o *Orchestrator) parseFailure(ctx context.Context, u *unit, parseErr *manifest.ParseError) Outcome {
	logging.WithContext(services.WithStage(ctx, stage.Parse), u.logger).Warn("manifest row rejected",
		logging.String(logging.FieldEventType, "row_parse_error"),
		logging.Int("line", parseErr.Line),
		logging.String("reason", parseErr.Reason),
		logging.String(logging.FieldErrorKind, services.ErrManifestParse.Error()),
	)
	return Outcome{
		Line:        parseErr.Line,
		State:       StateFailed,
		FailedStage: stage.Parse,
		Reason:      parseErr.Reason,
	}
}

// processRow moves one row through the state machine.
func (o *Orchestrator) processRow(ctx context.Context, u *unit, row manifest.Row, quality fetcher.Quality) Outcome {
	rowCtx := services.WithIdentifier(ctx, row.Identifier)
	rowLogger := logging.WithContext(rowCtx, u.logger)
	outcome := Outcome{Line: row.Line, Row: row}

	trimmedPath := u.ws.TrimmedPath(row.Identifier)
	_, producedThisRun := u.produced[row.Identifier]
	if (u.resume || producedThisRun) && clipExists(trimmedPath) {
		return o.skipRow(rowCtx, u, row, trimmedPath, rowLogger)
	}

	fetched := stageexec.Run(rowCtx, stageexec.Options{
		Logger:    u.logger,
		StageName: stage.Fetch,
		Execute: func(ctx context.Context) stage.Result {
			return o.fetcher.Fetch(ctx, row.Identifier, quality, u.ws.RawDir)
		},
	})
	if !fetched.OK() {
		return failed(outcome, fetched)
	}

	transcoded := stageexec.Run(rowCtx, stageexec.Options{
		Logger:    u.logger,
		StageName: stage.Transcode,
		Execute: func(ctx context.Context) stage.Result {
			return o.transcoder.Transcode(ctx, fetched.Path, u.ws.TranscodedDir)
		},
	})
	if !transcoded.OK() {
		return failed(outcome, transcoded)
	}

	trimmed := stageexec.Run(rowCtx, stageexec.Options{
		Logger:    u.logger,
		StageName: stage.Trim,
		Execute: func(ctx context.Context) stage.Result {
			return o.trimmer.Trim(ctx, transcoded.Path, row.Start, row.End, u.ws.TrimmedDir)
		},
	})
	if !trimmed.OK() {
		return failed(outcome, trimmed)
	}
	u.produced[row.Identifier] = struct{}{}

	recorded := stageexec.Run(rowCtx, stageexec.Options{
		Logger:    u.logger,
		StageName: stage.Record,
		Execute: func(context.Context) stage.Result {
			return appendEntry(u.idx, trimmed.Path, row.Labels)
		},
	})
	if !recorded.OK() {
		return failed(outcome, recorded)
	}

	if !o.cfg.Batch.KeepIntermediates {
		removeIntermediates(rowLogger, fetched.Path, transcoded.Path)
	}

	rowLogger.Info("row recorded",
		logging.String(logging.FieldEventType, "row_recorded"),
		logging.String("output", recorded.Path),
		logging.Strings("labels", row.Labels),
	)
	outcome.State = StateRecorded
	outcome.OutputPath = recorded.Path
	return outcome
}

// skipRow handles a row whose clip already exists. The index entry is
// repaired when an earlier run stopped between trim and record.
func (o *Orchestrator) skipRow(ctx context.Context, u *unit, row manifest.Row, trimmedPath string, rowLogger *slog.Logger) Outcome {
	outcome := Outcome{Line: row.Line, Row: row, OutputPath: trimmedPath}
	if !u.idx.Contains(trimmedPath) {
		repaired := stageexec.Run(ctx, stageexec.Options{
			Logger:    u.logger,
			StageName: stage.Record,
			Execute: func(context.Context) stage.Result {
				return appendEntry(u.idx, trimmedPath, row.Labels)
			},
		})
		if !repaired.OK() {
			return failed(outcome, repaired)
		}
	}
	u.produced[row.Identifier] = struct{}{}
	rowLogger.Info("row skipped; clip already present",
		logging.String(logging.FieldEventType, "row_skipped"),
		logging.String("output", trimmedPath),
	)
	outcome.State = StateSkipped
	return outcome
}

func (o *Orchestrator) note(ctx context.Context, u *unit, summary *Summary, outcome Outcome) {
	summary.add(outcome)
	if u.ledger == nil {
		return
	}
	rec := ledger.Record{
		Line:        outcome.Line,
		Identifier:  outcome.Row.Identifier,
		State:       string(outcome.State),
		FailedStage: outcome.FailedStage,
		Reason:      outcome.Reason,
		OutputPath:  outcome.OutputPath,
	}
	if err := u.ledger.Record(context.WithoutCancel(ctx), o.runID, rec); err != nil {
		u.logger.Warn("failed to write ledger entry",
			logging.Error(err),
			logging.Int("line", outcome.Line),
			logging.String(logging.FieldEventType, "ledger_write_failed"),
		)
	}
}

func (o *Orchestrator) finish(ctx context.Context, u *unit, summary *Summary, runErr error) {
	logger := logging.WithContext(ctx, u.logger)
	if u.ledger != nil {
		if err := u.ledger.FinishRun(context.WithoutCancel(ctx), o.runID, summary.Totals(), runErr); err != nil {
			logger.Warn("failed to finalize ledger run", logging.Error(err))
		}
	}
	attrs := []logging.Attr{
		logging.Int("processed", summary.Processed),
		logging.Int("recorded", summary.Recorded),
		logging.Int("skipped", summary.Skipped),
		logging.Int("failed", summary.Failed),
		logging.Int("parse_errors", summary.ParseErrors),
		logging.Duration("duration", summary.Duration),
	}
	if runErr != nil {
		details := services.Details(runErr)
		logging.ErrorWithContext(logger, "manifest aborted", "unit_failed", append(attrs,
			logging.String(logging.FieldErrorKind, details.Kind),
			logging.String("error_message", details.Message),
			logging.String(logging.FieldErrorHint, "fix the manifest or workspace and rerun; finished rows are kept"),
		)...)
		return
	}
	logger.Info("manifest completed", logging.Args(append(attrs, logging.String(logging.FieldEventType, "unit_complete"))...)...)
}

func failed(outcome Outcome, res stage.Result) Outcome {
	outcome.State = StateFailed
	outcome.FailedStage = res.Stage
	outcome.Reason = res.Reason()
	return outcome
}

func appendEntry(idx *index.Writer, path string, labels []string) stage.Result {
	if err := idx.Append(index.Entry{Path: path, Labels: labels}); err != nil {
		return stage.Failed(stage.Record, services.Wrap(services.ErrRecord, stage.Record, "append", path, err))
	}
	return stage.Ok(stage.Record, path)
}

// removeIntermediates deletes staged inputs of a recorded clip. Failures are
// logged; the row stays recorded.
func removeIntermediates(logger *slog.Logger, paths ...string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to remove intermediate file",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldEventType, "intermediate_cleanup_failed"),
			)
		}
	}
}

func clipExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
