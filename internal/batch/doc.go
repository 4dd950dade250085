// Package batch fans a set of manifests out to independent pipeline units.
//
// Each manifest runs on its own goroutine with its own orchestrator,
// workspace, index, and ledger. Units share nothing mutable; the dispatcher
// only joins them and collects their results into a Report, so a failing or
// panicking unit never affects its siblings.
package batch
