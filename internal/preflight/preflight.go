package preflight

import (
	"context"

	"clipharvest/internal/config"
	"clipharvest/internal/stage"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// Blocking reports whether the result should stop a run.
func (r Result) Blocking() bool {
	return !r.Passed && !r.Optional
}

// RunAll executes the filesystem and tool checks for cfg. Manifest checks
// cover every configured manifest.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir))
	results = append(results, CheckFreeSpace("Work directory space", cfg.Paths.WorkDir, minFreeBytes))
	if cfg.Paths.LogDir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}
	for _, path := range cfg.Batch.Manifests {
		results = append(results, CheckManifestFile(path))
	}
	for _, status := range CheckSystemDeps(ctx, cfg) {
		result := Result{Name: status.Name, Passed: status.Available, Optional: status.Optional, Detail: status.Detail}
		if result.Passed {
			result.Detail = status.Path
		}
		results = append(results, result)
	}
	return results
}

// StageHealth collects readiness from the supplied stages.
func StageHealth(ctx context.Context, checkers ...stage.HealthChecker) []Result {
	results := make([]Result, 0, len(checkers))
	for _, checker := range checkers {
		if checker == nil {
			continue
		}
		health := checker.HealthCheck(ctx)
		detail := health.Detail
		if detail == "" && health.Ready {
			detail = "ready"
		}
		results = append(results, Result{
			Name:   stage.Label(health.Name) + " stage",
			Passed: health.Ready,
			Detail: detail,
		})
	}
	return results
}

// Blocking returns the results that should stop a run.
func Blocking(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Blocking() {
			out = append(out, r)
		}
	}
	return out
}
