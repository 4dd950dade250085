package stage

import (
	"errors"
	"strings"
)

// Result is the outcome of one stage: Ok with an output path, or Failed with
// a reason. Exactly one of Path and Err is set.
type Result struct {
	Stage string
	Path  string
	Err   error
}

// Ok constructs a successful result.
func Ok(stageName, path string) Result {
	return Result{Stage: stageName, Path: path}
}

// Failed constructs a failed result. A nil err is replaced with a generic
// failure so the result never reads as success.
func Failed(stageName string, err error) Result {
	if err == nil {
		err = errors.New(stageName + " failed")
	}
	return Result{Stage: stageName, Err: err}
}

// OK reports whether the stage produced an output.
func (r Result) OK() bool {
	return r.Err == nil && strings.TrimSpace(r.Path) != ""
}

// Reason returns the failure message, or "" for a successful result.
func (r Result) Reason() string {
	if r.OK() {
		return ""
	}
	if r.Err == nil {
		return r.Stage + " produced no output"
	}
	return r.Err.Error()
}
