package stage

import "context"

// Names of the per-row pipeline stages, in execution order after parse.
const (
	Parse     = "parse"
	Fetch     = "fetch"
	Transcode = "transcode"
	Trim      = "trim"
	Record    = "record"
)

// HealthChecker is implemented by stage components that depend on external
// tools or services so the check command can report readiness.
type HealthChecker interface {
	HealthCheck(context.Context) Health
}
