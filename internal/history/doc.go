// Package history records ingestion runs and the outcome of every source
// folder in a SQLite database under the log directory.
//
// Each run gets a row in runs; each processed folder gets a row in
// folder_outcomes carrying its counts or its failure cause. The CLI reads
// these tables to list past runs and the folders that need operator
// attention.
//
// The schema is embedded from schema.sql. When it changes, bump
// schemaVersion; existing databases with an older version are rejected with
// ErrSchemaMismatch and must be removed.
package history
