package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"bidsort/internal/config"
	"bidsort/internal/history"
	"bidsort/internal/services/dcm2niix"
	"bidsort/internal/testsupport"
)

const stamp = "20230514101500"

type cliTestEnv struct {
	cfg        *config.Config
	conv       *testsupport.FakeConverter
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	t.Setenv("HOME", filepath.Join(testsupport.BaseDir(cfg), "home"))
	configPath := filepath.Join(testsupport.BaseDir(cfg), "bidsort.toml")
	writeTestConfig(t, configPath, cfg)

	conv := testsupport.NewFakeConverter()
	previous := defaultConverterFactory
	defaultConverterFactory = func(*config.Config, *slog.Logger) (dcm2niix.Converter, error) {
		return conv, nil
	}
	t.Cleanup(func() { defaultConverterFactory = previous })

	return &cliTestEnv{cfg: cfg, conv: conv, configPath: configPath}
}

func (e *cliTestEnv) addSession(t *testing.T, folder string, boldVolumes int) {
	t.Helper()
	input := e.cfg.Paths.InputDir
	e.conv.AddSeries(t, input, folder, "01_t1", testsupport.FakeOutput{Base: folder + "--MPRAGE--" + stamp, Dims: []int{176, 256, 256}})
	e.conv.AddSeries(t, input, folder, "02_t2", testsupport.FakeOutput{Base: folder + "--t2_spc--" + stamp, Dims: []int{176, 256, 256}})
	e.conv.AddSeries(t, input, folder, "03_bold", testsupport.FakeOutput{Base: folder + "--BOLD_rest--" + stamp, Dims: []int{64, 64, 36, boldVolumes}})
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestRootHelp(t *testing.T) {
	out, _, err := runCLI(t, []string{"--help"}, "")
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	for _, name := range []string{"ingest", "ledger", "history", "deps", "config"} {
		requireContains(t, out, name)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Session tags: 4")

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestIngestLedgerAndHistory(t *testing.T) {
	env := setupCLITestEnv(t)
	env.addSession(t, "FCS01A", 120)
	env.addSession(t, "FCS01C", 120)

	out, _, err := runCLI(t, []string{"ingest", "--no-progress", "--jobs", "2"}, env.configPath)
	if err != nil {
		t.Fatalf("ingest: %v\n%s", err, out)
	}
	requireContains(t, out, "2 completed, 0 failed, 0 quota")
	requireContains(t, out, "FCS01A")

	anat := testsupport.ListFiles(t, filepath.Join(env.cfg.Paths.OutputDir, "sub-PAT01", "ses-followup1", "anat"), ".nii.gz")
	if len(anat) != 2 {
		t.Fatalf("expected two anatomical volumes, got %v", anat)
	}

	out, _, err = runCLI(t, []string{"ledger", "show", "sub-PAT01"}, env.configPath)
	if err != nil {
		t.Fatalf("ledger show: %v", err)
	}
	requireContains(t, out, "ses-acute")
	requireContains(t, out, "ses-followup1")
	requireContains(t, out, "BACKUP-anat")

	out, _, err = runCLI(t, []string{"ledger", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("ledger list: %v", err)
	}
	requireContains(t, out, "sub-PAT01")

	out, _, err = runCLI(t, []string{"ledger", "check", "PAT01"}, env.configPath)
	if err != nil {
		t.Fatalf("ledger check: %v\n%s", err, out)
	}
	requireContains(t, out, "All 2 sessions meet the anatomical quota")

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "completed")
}

func TestIngestReportsFailedFolders(t *testing.T) {
	env := setupCLITestEnv(t)
	env.addSession(t, "FCS02A", 120)
	// Session tag Z is not mapped.
	env.addSession(t, "FCS03Z", 120)

	out, _, err := runCLI(t, []string{"ingest", "--no-progress"}, env.configPath)
	if err == nil {
		t.Fatalf("expected ingest to fail when a folder fails\n%s", out)
	}
	requireContains(t, err.Error(), "1 of 2 folders need attention")
	requireContains(t, out, "unknown session tag")

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "partial")

	runID := latestRunID(t, env.cfg)
	out, _, err = runCLI(t, []string{"history", "show", runID}, env.configPath)
	if err != nil {
		t.Fatalf("history show: %v", err)
	}
	requireContains(t, out, "FCS03Z")
	if strings.Contains(out, "FCS02A") {
		t.Fatalf("completed folder should be hidden without --all: %q", out)
	}

	out, _, err = runCLI(t, []string{"history", "show", runID, "--all"}, env.configPath)
	if err != nil {
		t.Fatalf("history show --all: %v", err)
	}
	requireContains(t, out, "FCS02A")
}

func latestRunID(t *testing.T, cfg *config.Config) string {
	t.Helper()
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer store.Close()
	runs, err := store.ListRuns(context.Background(), 1)
	if err != nil || len(runs) != 1 {
		t.Fatalf("list runs: %v (%d runs)", err, len(runs))
	}
	return runs[0].ID[:8]
}

func TestIngestSelectsNamedFolders(t *testing.T) {
	env := setupCLITestEnv(t)
	env.addSession(t, "FCS04A", 120)
	env.addSession(t, "FCS05A", 120)

	out, _, err := runCLI(t, []string{"ingest", "--no-progress", "FCS05A"}, env.configPath)
	if err != nil {
		t.Fatalf("ingest: %v\n%s", err, out)
	}
	requireContains(t, out, "1 completed")
	calls := env.conv.Calls()
	for _, call := range calls {
		if strings.Contains(call, "FCS04A") {
			t.Fatalf("unselected folder converted: %v", calls)
		}
	}
}

func TestDepsReportsMissingConverter(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Dcm2niix.Binary = "clearly-not-present-dcm2niix"
	writeTestConfig(t, env.configPath, env.cfg)

	out, _, err := runCLI(t, []string{"deps"}, env.configPath)
	if err == nil {
		t.Fatalf("expected deps to fail\n%s", out)
	}
	requireContains(t, out, "dcm2niix")
	requireContains(t, out, "not found")
}
