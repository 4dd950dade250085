// Package logging assembles structured slog loggers and formatting helpers used
// across clipharvest.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so pipeline code can tag log lines with
// the manifest, row identifier, stage, and batch correlation ID. Each manifest
// unit also tees its records into a log file inside its own workspace.
package logging
