// Package stageexec runs a single pipeline stage with uniform logging:
// stage_start before the work, then stage_complete with the output path or
// stage_failure with the classified error.
package stageexec
