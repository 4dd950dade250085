package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"clipharvest/internal/config"
	"clipharvest/internal/logging"
	"clipharvest/internal/pipeline"
	"clipharvest/internal/services"
	"clipharvest/internal/workspace"
)

// Manifest identifies one unit of work.
type Manifest = pipeline.Manifest

// Runner processes a single manifest.
type Runner interface {
	Run(ctx context.Context, m Manifest) (pipeline.Summary, error)
}

// Factory builds the runner for one unit. It is called once per manifest so
// units never share a runner.
type Factory func(runID string, logger *slog.Logger) (Runner, error)

// UnitResult captures how one manifest finished.
type UnitResult struct {
	Manifest Manifest
	Summary  pipeline.Summary
	Err      error
}

// OK reports whether the unit completed without a manifest-level error.
// Individual rows may still have failed.
func (u UnitResult) OK() bool {
	return u.Err == nil
}

// Report aggregates every unit of a batch run, in manifest order.
type Report struct {
	RunID    string
	Units    []UnitResult
	Duration time.Duration
}

// Totals sums row counters across units.
func (r Report) Totals() (processed, recorded, skipped, failed int) {
	for _, unit := range r.Units {
		processed += unit.Summary.Processed
		recorded += unit.Summary.Recorded
		skipped += unit.Summary.Skipped
		failed += unit.Summary.Failed
	}
	return processed, recorded, skipped, failed
}

// FailedUnits returns the units that stopped with a manifest-level error.
func (r Report) FailedUnits() []UnitResult {
	var out []UnitResult
	for _, unit := range r.Units {
		if !unit.OK() {
			out = append(out, unit)
		}
	}
	return out
}

// Dispatcher runs manifests concurrently, one goroutine per manifest.
type Dispatcher struct {
	factory Factory
	logger  *slog.Logger
	runID   string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the base logger handed to every unit.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithFactory replaces the per-unit runner constructor.
func WithFactory(factory Factory) Option {
	return func(d *Dispatcher) { d.factory = factory }
}

// WithRunID fixes the batch run identifier.
func WithRunID(id string) Option {
	return func(d *Dispatcher) { d.runID = id }
}

// WithPipelineOptions builds units with pipeline.New(cfg, opts...). It is the
// default when no factory is supplied.
func WithPipelineOptions(cfg *config.Config, opts ...pipeline.Option) Option {
	return func(d *Dispatcher) { d.factory = PipelineFactory(cfg, opts...) }
}

// PipelineFactory returns a Factory that builds one Orchestrator per unit.
func PipelineFactory(cfg *config.Config, opts ...pipeline.Option) Factory {
	return func(runID string, logger *slog.Logger) (Runner, error) {
		unitOpts := append([]pipeline.Option{
			pipeline.WithLogger(logger),
			pipeline.WithRunID(runID),
		}, opts...)
		return pipeline.New(cfg, unitOpts...)
	}
}

// New builds a Dispatcher.
func New(cfg *config.Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	if d.factory == nil {
		d.factory = PipelineFactory(cfg)
	}
	if strings.TrimSpace(d.runID) == "" {
		d.runID = uuid.NewString()
	}
	return d
}

// RunID returns the batch run identifier.
func (d *Dispatcher) RunID() string {
	return d.runID
}

// Manifests converts manifest paths into units, deriving each workspace id
// from the file name. Two paths mapping to the same id are rejected.
func Manifests(paths []string) ([]Manifest, error) {
	out := make([]Manifest, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		id := workspace.ManifestID(path)
		if prev, ok := seen[id]; ok {
			return nil, services.Wrap(services.ErrConfiguration, "batch", "manifests",
				fmt.Sprintf("%s and %s both map to workspace %q", prev, path, id), nil)
		}
		seen[id] = path
		out = append(out, Manifest{ID: id, Path: path})
	}
	return out, nil
}

// Run executes every manifest concurrently and waits for all of them.
func (d *Dispatcher) Run(ctx context.Context, manifests []Manifest) Report {
	started := time.Now()
	ctx = services.WithRequestID(ctx, d.runID)
	logger := logging.WithContext(ctx, d.logger)
	logger.Info("batch started",
		logging.String(logging.FieldEventType, "batch_start"),
		logging.Int("manifests", len(manifests)),
	)

	results := make([]UnitResult, len(manifests))
	dupes := duplicateIDs(manifests)

	var wg sync.WaitGroup
	for i, m := range manifests {
		results[i].Manifest = m
		if _, dup := dupes[i]; dup {
			results[i].Err = services.Wrap(services.ErrConfiguration, "batch", "dispatch",
				fmt.Sprintf("manifest id %q already used in this batch", m.ID), nil)
			continue
		}
		wg.Add(1)
		go func(slot *UnitResult, m Manifest) {
			defer wg.Done()
			*slot = d.runUnit(ctx, m)
		}(&results[i], m)
	}
	wg.Wait()

	report := Report{RunID: d.runID, Units: results, Duration: time.Since(started)}
	processed, recorded, skipped, failed := report.Totals()
	logger.Info("batch completed",
		logging.String(logging.FieldEventType, "batch_complete"),
		logging.Int("manifests", len(manifests)),
		logging.Int("failed_manifests", len(report.FailedUnits())),
		logging.Int("processed", processed),
		logging.Int("recorded", recorded),
		logging.Int("skipped", skipped),
		logging.Int("failed", failed),
		logging.Duration("duration", report.Duration),
	)
	return report
}

func (d *Dispatcher) runUnit(ctx context.Context, m Manifest) (result UnitResult) {
	result.Manifest = m
	unitCtx := services.WithManifest(ctx, m.ID)
	defer func() {
		if r := recover(); r != nil {
			result.Err = services.Wrap(services.ErrPanic, "batch", "run unit", "unit panicked", fmt.Errorf("%v", r))
			logging.ErrorWithContext(logging.WithContext(unitCtx, d.logger), "manifest unit panicked", "unit_panic",
				logging.Any("panic", r),
				logging.String(logging.FieldErrorHint, "report this failure; other manifests were unaffected"),
			)
		}
	}()

	runner, err := d.factory(d.runID, d.logger)
	if err != nil {
		result.Err = err
		logging.ErrorWithContext(logging.WithContext(unitCtx, d.logger), "manifest unit setup failed", "unit_setup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check tool and fetch configuration"),
		)
		return result
	}
	result.Summary, result.Err = runner.Run(ctx, m)
	return result
}

func duplicateIDs(manifests []Manifest) map[int]struct{} {
	seen := make(map[string]struct{}, len(manifests))
	dupes := make(map[int]struct{})
	for i, m := range manifests {
		if _, ok := seen[m.ID]; ok {
			dupes[i] = struct{}{}
			continue
		}
		seen[m.ID] = struct{}{}
	}
	return dupes
}
