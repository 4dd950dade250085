// Package config loads, normalizes, and validates clipharvest configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// batch runner and CLI need: the manifests to process, the per-manifest row
// limit, quality and workspace reset policy, and the external tool settings
// for fetching, transcoding, and trimming.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
