// Package ingest drives conversion of DICOM session folders into the
// dataset.
//
// A run visits every source folder matching ingest.subject_pattern. For each
// folder the driver converts every series subfolder into its own staging
// directory, then walks the converted groups through decode, identity,
// classification, and placement, accumulating per-modality counts. When the
// folder is done the counts become one ledger row for the subject.
//
// Failures are isolated per folder: a folder that fails is rolled back (its
// placed files removed, its staging directory deleted), recorded in the run
// history, and the run continues with the next folder. A quota violation is
// reported the same way but keeps its files and ledger row so the operator
// can inspect them.
//
// Folders may be processed concurrently (ingest.jobs). Ledger commits are
// serialized per subject and backup slots are claimed atomically, so
// concurrent folders for the same subject never overwrite each other.
package ingest
