// Package main hosts the clipharvest CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration once, applies flag overrides
// to the [batch] section, and hands work to the internal packages: batch for
// runs, ledger and workspace for status and maintenance, preflight for
// readiness checks. Commands only translate flags and render results.
package main
