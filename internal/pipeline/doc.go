// Package pipeline drives one manifest through the per-row state machine:
//
//	Pending -> Fetched -> Transcoded -> Trimmed -> Recorded
//	Pending -> Skipped          (trimmed clip already present)
//	any stage -> Failed(stage)  (row abandoned, run continues)
//
// Rows are processed sequentially. A row failure is captured as an Outcome
// and never stops the run; only workspace, index, or manifest-level errors
// abort the manifest, and even those are returned to the caller rather than
// escaping the unit.
package pipeline
