// Package services defines shared utilities consumed by the pipeline stages
// and external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp manifest IDs, row identifiers, stage names,
//     and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the stage that produced them (fetch, transcode, trim, record) or
//     the manifest-level condition that aborted a unit (workspace, parse).
//   - The Executor abstraction that makes command execution of external tools
//     (yt-dlp, ffmpeg) testable.
//
// Use these helpers when wiring new stage logic so failure handling and
// observability stay uniform across the pipeline.
package services
