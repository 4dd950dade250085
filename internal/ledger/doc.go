// Package ledger persists per-row outcomes for a manifest workspace in
// SQLite so operators can see which rows failed at which stage across runs.
//
// Each workspace owns its own ledger database; units never share one. A run
// is opened with BeginRun, every row outcome is appended with Record, and
// FinishRun stores the totals. The ledger is informational: resume decisions
// are made from the trimmed directory, never from the ledger.
package ledger
