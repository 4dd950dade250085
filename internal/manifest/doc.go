// Package manifest reads the tabular input that drives a clipharvest unit.
//
// Two shapes are supported. The positional "rows" shape has no header and
// fixed columns: identifier, start seconds, end seconds, then zero or more
// labels. The "header" shape is keyed by named columns (identifier,
// start_seconds, end_seconds, positive_labels) with labels comma-joined in a
// single cell. Numeric cells tolerate embedded whitespace and fractional
// seconds, which are truncated to whole seconds.
//
// Rows are streamed one at a time so a malformed line surfaces as a
// row-scoped ParseError and never stops the reader.
package manifest
