package pipeline

import (
	"context"
	"time"

	"clipharvest/internal/fetcher"
	"clipharvest/internal/ledger"
	"clipharvest/internal/manifest"
	"clipharvest/internal/stage"
)

// State is the terminal state of one manifest row.
type State string

const (
	StateRecorded State = ledger.StateRecorded
	StateSkipped  State = ledger.StateSkipped
	StateFailed   State = ledger.StateFailed
)

// Manifest identifies one unit of work: a manifest file and the workspace
// name it maps to.
type Manifest struct {
	ID   string
	Path string
}

// Outcome is the result of one manifest row.
type Outcome struct {
	Line        int
	Row         manifest.Row
	State       State
	FailedStage string
	Reason      string
	OutputPath  string
}

// Summary aggregates the outcomes of one manifest run. Failures holds the
// failed rows; the full per-row history lives in the workspace ledger.
type Summary struct {
	ManifestID   string
	ManifestPath string
	RunID        string
	Processed    int
	Recorded     int
	Skipped      int
	Failed       int
	ParseErrors  int
	Failures     []Outcome
	Duration     time.Duration
}

func (s *Summary) add(o Outcome) {
	s.Processed++
	switch o.State {
	case StateRecorded:
		s.Recorded++
	case StateSkipped:
		s.Skipped++
	case StateFailed:
		s.Failed++
		if o.FailedStage == stage.Parse {
			s.ParseErrors++
		}
		s.Failures = append(s.Failures, o)
	}
}

// Totals converts the counters for the ledger.
func (s Summary) Totals() ledger.Totals {
	return ledger.Totals{
		Processed:   s.Processed,
		Recorded:    s.Recorded,
		Skipped:     s.Skipped,
		Failed:      s.Failed,
		ParseErrors: s.ParseErrors,
	}
}

// Fetcher is the acquire stage.
type Fetcher interface {
	Fetch(ctx context.Context, identifier string, quality fetcher.Quality, destDir string) stage.Result
}

// Transcoder is the transcode stage.
type Transcoder interface {
	Transcode(ctx context.Context, src, destDir string) stage.Result
}

// Trimmer is the trim stage.
type Trimmer interface {
	Trim(ctx context.Context, src string, start, end int, destDir string) stage.Result
}
