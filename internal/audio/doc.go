// Package audio implements the transcode and trim stages on top of ffmpeg.
//
// Both stages write to a temporary file next to the destination and rename
// it into place only after ffmpeg exits cleanly, so a stage output either
// exists completely or not at all. That property is what lets the pipeline
// treat an existing trimmed clip as proof of a finished row.
package audio
