package ledger

import "time"

// Row states stored in the ledger.
const (
	StateRecorded = "recorded"
	StateSkipped  = "skipped"
	StateFailed   = "failed"
)

// Record is one row outcome.
type Record struct {
	ID          int64
	RunID       string
	Line        int
	Identifier  string
	State       string
	FailedStage string
	Reason      string
	OutputPath  string
	RecordedAt  time.Time
}

// Totals are the per-run counters stored when a run finishes.
type Totals struct {
	Processed   int
	Recorded    int
	Skipped     int
	Failed      int
	ParseErrors int
}

// Run describes one pass over a manifest.
type Run struct {
	ID           string
	ManifestPath string
	StartedAt    time.Time
	FinishedAt   time.Time
	Totals       Totals
	ErrorMessage string
}

// Finished reports whether FinishRun was called for the run.
func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}
