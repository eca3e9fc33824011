// Package preflight provides readiness checks for the filesystem paths and
// external binaries an ingest run depends on.
//
// The ingest command calls RunAll before touching any folder and refuses to
// start when a check fails. The deps command uses CheckSystemDeps to report
// converter availability.
package preflight
