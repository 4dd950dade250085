// Package preflight provides readiness checks for the filesystem paths and
// external tools that clipharvest depends on.
//
// These checks run in two contexts:
//   - "clipharvest run" calls RunAll before dispatching manifests and refuses
//     to start when a required check fails, so a batch never half-starts on a
//     missing tool or an unwritable work directory.
//   - "clipharvest check" prints every result, including optional tools and
//     stage health reported through stage.HealthChecker.
package preflight
