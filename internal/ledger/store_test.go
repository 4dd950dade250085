package ledger_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"clipharvest/internal/ledger"
)

func openStore(t *testing.T) *ledger.Store {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "eval", "ledger.db"))
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	if run, err := store.LatestRun(ctx); err != nil || run != nil {
		t.Fatalf("expected empty ledger, got %v %v", run, err)
	}
	if err := store.BeginRun(ctx, "run-1", "/data/eval.csv"); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	records := []ledger.Record{
		{Line: 1, Identifier: "abc123", State: ledger.StateRecorded, OutputPath: "/w/trimmed/abc123.wav"},
		{Line: 2, Identifier: "gone", State: ledger.StateFailed, FailedStage: "fetch", Reason: "video unavailable"},
		{Line: 3, State: ledger.StateFailed, FailedStage: "parse", Reason: "end must be greater than start"},
		{Line: 4, Identifier: "old", State: ledger.StateSkipped, OutputPath: "/w/trimmed/old.wav"},
	}
	for _, rec := range records {
		if err := store.Record(ctx, "run-1", rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	totals := ledger.Totals{Processed: 4, Recorded: 1, Skipped: 1, Failed: 2, ParseErrors: 1}
	if err := store.FinishRun(ctx, "run-1", totals, nil); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	run, err := store.LatestRun(ctx)
	if err != nil || run == nil {
		t.Fatalf("LatestRun: %v %v", run, err)
	}
	if run.ID != "run-1" || !run.Finished() || run.Totals != totals || run.ManifestPath != "/data/eval.csv" {
		t.Fatalf("unexpected run %+v", run)
	}

	failed, err := store.Outcomes(ctx, "run-1", ledger.StateFailed)
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	if len(failed) != 2 || failed[0].Identifier != "gone" || failed[0].FailedStage != "fetch" {
		t.Fatalf("unexpected failed outcomes %+v", failed)
	}
	if failed[1].Identifier != "" || failed[1].RecordedAt.IsZero() {
		t.Fatalf("unexpected parse failure record %+v", failed[1])
	}

	all, err := store.Outcomes(ctx, "run-1")
	if err != nil || len(all) != 4 {
		t.Fatalf("expected 4 outcomes, got %d (%v)", len(all), err)
	}

	counts, err := store.FailuresByStage(ctx, "run-1")
	if err != nil {
		t.Fatalf("FailuresByStage: %v", err)
	}
	if counts["fetch"] != 1 || counts["parse"] != 1 {
		t.Fatalf("unexpected failure counts %v", counts)
	}
}

func TestRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	for _, id := range []string{"run-1", "run-2", "run-3"} {
		if err := store.BeginRun(ctx, id, "/data/eval.csv"); err != nil {
			t.Fatalf("BeginRun %s: %v", id, err)
		}
	}
	runs, err := store.Runs(ctx, 2)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-3" || runs[1].ID != "run-2" {
		t.Fatalf("unexpected order %+v", runs)
	}
	if runs[0].Finished() {
		t.Fatal("expected unfinished run")
	}
}

func TestFinishRunRecordsError(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	if err := store.BeginRun(ctx, "run-1", "/data/missing.csv"); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := store.FinishRun(ctx, "run-1", ledger.Totals{}, errors.New("manifest unreadable")); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	run, _ := store.LatestRun(ctx)
	if run.ErrorMessage != "manifest unreadable" {
		t.Fatalf("unexpected error message %q", run.ErrorMessage)
	}
	if err := store.FinishRun(ctx, "nope", ledger.Totals{}, nil); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestBeginRunRejectsDuplicatesAndEmpty(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	if err := store.BeginRun(ctx, "", "/data/eval.csv"); err == nil {
		t.Fatal("expected error for empty run id")
	}
	if err := store.BeginRun(ctx, "run-1", "/data/eval.csv"); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := store.BeginRun(ctx, "run-1", "/data/eval.csv"); err == nil {
		t.Fatal("expected error for duplicate run id")
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := ledger.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = store.BeginRun(ctx, "run-1", "/data/eval.csv")
	_ = store.Close()

	store, err = ledger.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	runs, err := store.Runs(ctx, 0)
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected history preserved, got %v %v", runs, err)
	}
}
