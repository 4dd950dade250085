// Package ffprobe provides a typed wrapper around ffprobe JSON output, used to
// verify that trimmed clips carry audio of the requested length.
//
// Key types:
//   - Prober: the inspection capability, satisfied by Command and test fakes
//   - Result: parsed ffprobe output containing streams and format metadata
//
// Inspect is a convenience wrapper for one-off inspections.
package ffprobe
