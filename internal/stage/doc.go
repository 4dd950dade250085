// Package stage defines the vocabulary shared by the per-row pipeline stages:
// stage names, the Ok/Failed stage Result, and health reporting for stage
// dependencies.
package stage
