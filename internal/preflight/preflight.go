package preflight

import (
	"context"

	"bidsort/internal/config"
	"bidsort/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for the given config. Output, staging,
// and log directories are created first so only permission problems fail.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	var results []Result
	results = append(results, CheckDirectoryAccess("Input directory", cfg.Paths.InputDir, AccessRead))

	if err := cfg.EnsureDirectories(); err != nil {
		results = append(results, Result{Name: "Dataset directories", Detail: err.Error()})
		return results
	}
	results = append(results,
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir, AccessReadWrite),
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir, AccessReadWrite),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir, AccessReadWrite),
		CheckSessionTable(cfg),
	)
	statuses := CheckSystemDeps(ctx, cfg)
	missing := make(map[string]bool)
	for _, status := range deps.Missing(statuses) {
		missing[status.Name] = true
	}
	for _, status := range statuses {
		r := Result{Name: status.Name, Passed: !missing[status.Name], Detail: status.Detail}
		if status.Available {
			r.Detail = status.Path
		}
		results = append(results, r)
	}
	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
