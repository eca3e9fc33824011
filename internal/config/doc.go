// Package config loads, normalizes, and validates bidsort configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// BIDSORT_OUTPUT_DIR. The Config type centralizes every knob the ingest
// pipeline needs, including the mapping tables that translate raw scanner
// identifiers into canonical dataset names.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, compiled protocol patterns, and clear validation errors.
package config
