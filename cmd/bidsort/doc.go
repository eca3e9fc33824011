// Package main hosts the bidsort CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration once, then hands off to the
// internal packages: ingest runs the session driver, ledger and history
// render what previous runs wrote, and config/deps help operators get a host
// ready. Keep the heavy lifting in internal packages and surface it here.
package main
