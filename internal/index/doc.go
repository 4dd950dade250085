// Package index maintains a manifest's output index: one line per recorded
// clip of the form "<trimmed_path>, <label>,<label>...". The file is only ever
// appended to, and each append is flushed to disk before returning so an
// interrupted run leaves complete lines behind.
package index
