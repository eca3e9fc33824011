// Package ledger maintains the per-subject session ledger, a tab-separated
// table with one row per processed source session folder.
//
// Ledgers are append-only: every commit reads the whole table, appends one
// row, and replaces the file atomically (temp file + rename). Commits to the
// same ledger are serialized within the process by a keyed mutex and across
// processes by an advisory file lock next to the ledger.
package ledger
