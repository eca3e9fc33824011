// Package fileutil holds filesystem helpers shared by the ingest stages:
// directory listing, converter file-name splitting, and no-overwrite copies.
package fileutil
