// Package services defines shared utilities consumed by the ingestion stages
// and the external converter integration.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, source folder names, and stage names
//     for logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into a consistent outcome (discard the group vs. fail the folder).
//   - Thin abstractions that make command execution from external tools
//     testable.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
