// Package workspace manages the per-manifest working directory: the raw,
// transcoded, and trimmed stage directories, the output index, the outcome
// ledger, and the lock that keeps a single process driving each workspace.
//
// A workspace is rooted at <work_dir>/<manifest_id>. Prepare creates it (or
// resets it when requested) and holds the lock until Release is called.
// List and CleanStale support the CLI's inspection and housekeeping commands.
package workspace
