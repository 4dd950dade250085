package batch_test

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"clipharvest/internal/batch"
	"clipharvest/internal/logging"
	"clipharvest/internal/pipeline"
	"clipharvest/internal/services"
	"clipharvest/internal/testsupport"
	"clipharvest/internal/workspace"
)

type scriptedRunner struct {
	run func(context.Context, batch.Manifest) (pipeline.Summary, error)
}

func (s scriptedRunner) Run(ctx context.Context, m batch.Manifest) (pipeline.Summary, error) {
	return s.run(ctx, m)
}

func scripted(fn func(context.Context, batch.Manifest) (pipeline.Summary, error)) batch.Factory {
	return func(string, *slog.Logger) (batch.Runner, error) {
		return scriptedRunner{run: fn}, nil
	}
}

func TestDispatcherIsolatesUnitFailures(t *testing.T) {
	var started atomic.Int32
	d := batch.New(nil, batch.WithRunID("batch-1"), batch.WithFactory(scripted(func(_ context.Context, m batch.Manifest) (pipeline.Summary, error) {
		started.Add(1)
		switch m.ID {
		case "broken":
			return pipeline.Summary{ManifestID: m.ID}, services.Wrap(services.ErrWorkspace, "workspace", "prepare", "denied", nil)
		case "panics":
			panic("boom")
		default:
			return pipeline.Summary{ManifestID: m.ID, Processed: 2, Recorded: 2}, nil
		}
	})))

	report := d.Run(context.Background(), []batch.Manifest{
		{ID: "a", Path: "a.csv"},
		{ID: "broken", Path: "broken.csv"},
		{ID: "panics", Path: "panics.csv"},
		{ID: "b", Path: "b.csv"},
	})

	if started.Load() != 4 {
		t.Fatalf("expected every unit started, got %d", started.Load())
	}
	if report.RunID != "batch-1" || len(report.Units) != 4 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !report.Units[0].OK() || !report.Units[3].OK() {
		t.Fatalf("expected healthy units to succeed: %+v", report.Units)
	}
	if !errors.Is(report.Units[1].Err, services.ErrWorkspace) {
		t.Fatalf("expected workspace error, got %v", report.Units[1].Err)
	}
	if !errors.Is(report.Units[2].Err, services.ErrPanic) || !strings.Contains(report.Units[2].Err.Error(), "panicked") {
		t.Fatalf("expected panic captured, got %v", report.Units[2].Err)
	}
	if errors.Is(report.Units[2].Err, services.ErrWorkspace) {
		t.Fatalf("panic must not be reported as a workspace error: %v", report.Units[2].Err)
	}
	if kind := services.Details(report.Units[2].Err).Kind; kind != "internal panic" {
		t.Fatalf("unexpected kind %q", kind)
	}
	if len(report.FailedUnits()) != 2 {
		t.Fatalf("expected 2 failed units, got %d", len(report.FailedUnits()))
	}
	processed, recorded, _, _ := report.Totals()
	if processed != 4 || recorded != 4 {
		t.Fatalf("unexpected totals processed=%d recorded=%d", processed, recorded)
	}
}

func TestDispatcherRejectsDuplicateIDs(t *testing.T) {
	var runs atomic.Int32
	d := batch.New(nil, batch.WithFactory(scripted(func(_ context.Context, m batch.Manifest) (pipeline.Summary, error) {
		runs.Add(1)
		return pipeline.Summary{ManifestID: m.ID}, nil
	})))
	report := d.Run(context.Background(), []batch.Manifest{{ID: "x", Path: "one/x.csv"}, {ID: "x", Path: "two/x.csv"}})
	if runs.Load() != 1 {
		t.Fatalf("expected one run, got %d", runs.Load())
	}
	if !report.Units[0].OK() || !errors.Is(report.Units[1].Err, services.ErrConfiguration) {
		t.Fatalf("unexpected units %+v", report.Units)
	}
}

func TestDispatcherFactoryError(t *testing.T) {
	d := batch.New(nil, batch.WithFactory(func(string, *slog.Logger) (batch.Runner, error) {
		return nil, services.Wrap(services.ErrConfiguration, "fetch", "init", "bad backend", nil)
	}))
	report := d.Run(context.Background(), []batch.Manifest{{ID: "a", Path: "a.csv"}})
	if !errors.Is(report.Units[0].Err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", report.Units[0].Err)
	}
}

func TestDispatcherPropagatesRunID(t *testing.T) {
	var seen atomic.Value
	d := batch.New(nil, batch.WithRunID("corr-9"), batch.WithFactory(func(runID string, _ *slog.Logger) (batch.Runner, error) {
		seen.Store(runID)
		return scriptedRunner{run: func(ctx context.Context, m batch.Manifest) (pipeline.Summary, error) {
			if id, _ := services.RequestIDFromContext(ctx); id != "corr-9" {
				t.Errorf("expected request id in context, got %q", id)
			}
			return pipeline.Summary{}, nil
		}}, nil
	}))
	d.Run(context.Background(), []batch.Manifest{{ID: "a", Path: "a.csv"}})
	if seen.Load() != "corr-9" {
		t.Fatalf("expected factory to receive run id, got %v", seen.Load())
	}
}

func TestNewGeneratesRunID(t *testing.T) {
	a := batch.New(nil)
	b := batch.New(nil)
	if a.RunID() == "" || a.RunID() == b.RunID() {
		t.Fatalf("expected distinct run ids, got %q and %q", a.RunID(), b.RunID())
	}
}

func TestManifests(t *testing.T) {
	got, err := batch.Manifests([]string{"/data/balanced_train.csv", " ", "/data/eval segments.csv"})
	if err != nil {
		t.Fatalf("Manifests: %v", err)
	}
	if len(got) != 2 || got[0].ID != "balanced_train" || got[1].ID != "eval_segments" {
		t.Fatalf("unexpected manifests %+v", got)
	}

	if _, err := batch.Manifests([]string{"/a/train.csv", "/b/train.csv"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestBatchWithPipelineUnits(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := filepath.Join(testsupport.BaseDir(cfg), "manifests")
	first := testsupport.WriteManifest(t, dir, "first.csv", "abc123, 10, 15, Speech, Music", "bad, 0, 5, Speech")
	second := testsupport.WriteManifest(t, dir, "second.csv", "def456, 0, 3, Music")
	missing := filepath.Join(dir, "missing.csv")

	exec := &testsupport.FakeExecutor{Handle: func(binary string, args []string) error {
		if filepath.Base(binary) == "ffmpeg" && strings.Contains(strings.Join(args, " "), "bad.mp4") {
			return &services.CommandError{Binary: binary, ExitCode: 1}
		}
		return nil
	}}
	manifests, err := batch.Manifests([]string{first, second, missing})
	if err != nil {
		t.Fatalf("Manifests: %v", err)
	}
	d := batch.New(cfg, batch.WithLogger(logging.NewNop()), batch.WithPipelineOptions(cfg, pipeline.WithExecutor(exec)))
	report := d.Run(context.Background(), manifests)

	if len(report.Units) != 3 {
		t.Fatalf("expected 3 units, got %d", len(report.Units))
	}
	if !report.Units[0].OK() || report.Units[0].Summary.Recorded != 1 || report.Units[0].Summary.Failed != 1 {
		t.Fatalf("unexpected first unit %+v", report.Units[0])
	}
	if !report.Units[1].OK() || report.Units[1].Summary.Recorded != 1 {
		t.Fatalf("unexpected second unit %+v", report.Units[1])
	}
	if !errors.Is(report.Units[2].Err, services.ErrManifestParse) {
		t.Fatalf("expected missing manifest to fail its own unit, got %v", report.Units[2].Err)
	}

	wsFirst := workspace.New(cfg.Paths.WorkDir, "first")
	lines := testsupport.ReadLines(t, wsFirst.IndexPath)
	want := filepath.Join(wsFirst.TrimmedDir, "abc123.wav") + ", Speech,Music"
	if len(lines) != 1 || lines[0] != want {
		t.Fatalf("unexpected first index %q", lines)
	}
	wsSecond := workspace.New(cfg.Paths.WorkDir, "second")
	if lines := testsupport.ReadLines(t, wsSecond.IndexPath); len(lines) != 1 {
		t.Fatalf("unexpected second index %q", lines)
	}
}
