// Package staging manages the scratch directories dcm2niix writes into.
//
// Every run owns <staging_dir>/<run-id>; every converter invocation gets its
// own numbered directory below the source folder's name. Directories left
// behind by crashed runs are removed by CleanStale at the start of the next
// run.
package staging
