package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"bidsort/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a resolved config seeded with unique temp directories per
// test. Session tags A, C, and C2 map to PAT ses-acute, ses-followup1, and
// ses-followup2; H maps to CON ses-baseline.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.InputDir = filepath.Join(base, "dicom")
	cfgVal.Paths.OutputDir = filepath.Join(base, "bids")
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Mapping.Sessions = map[string]config.SessionCode{
		"A":  {ID: "PAT", Session: "ses-acute"},
		"C":  {ID: "PAT", Session: "ses-followup1"},
		"C2": {ID: "PAT", Session: "ses-followup2"},
		"H":  {ID: "CON", Session: "ses-baseline"},
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.Resolve(); err != nil {
		t.Fatalf("resolve test config: %v", err)
	}
	if err := os.MkdirAll(builder.cfg.Paths.InputDir, 0o755); err != nil {
		t.Fatalf("create input dir: %v", err)
	}
	return builder.cfg
}

// WithJobs sets the number of folders processed concurrently.
func WithJobs(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ingest.Jobs = n
	}
}

// WithBackupCountMode sets the ledger backup count semantics.
func WithBackupCountMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ingest.BackupCountMode = mode
	}
}

// WithCorrection adds a subject id correction.
func WithCorrection(raw, canonical string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Mapping.Corrections[raw] = canonical
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, dcm2niix is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"dcm2niix"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
