package layout

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"bidsort/internal/config"
	"bidsort/internal/criteria"
	"bidsort/internal/identity"
	"bidsort/internal/services"
)

var testID = identity.Canonical{SubjectCode: "PAT", Session: "ses-acute", ID: "07"}

func TestMaterializeIsIdempotent(t *testing.T) {
	tree := Tree{Root: t.TempDir()}
	modalities := []string{"anat", "dwi", "func"}

	created, err := tree.Materialize(testID, modalities)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if !created {
		t.Fatal("expected first materialize to create the session tree")
	}
	for _, m := range modalities {
		info, err := os.Stat(filepath.Join(tree.Root, "sub-PAT07", "ses-acute", m))
		if err != nil || !info.IsDir() {
			t.Fatalf("modality folder %s missing: %v", m, err)
		}
	}

	if err := os.Remove(tree.ModalityDir(testID, "dwi")); err != nil {
		t.Fatal(err)
	}
	created, err = tree.Materialize(testID, modalities)
	if err != nil {
		t.Fatalf("second Materialize: %v", err)
	}
	if created {
		t.Fatal("second materialize should report an existing tree")
	}
	if _, err := os.Stat(tree.ModalityDir(testID, "dwi")); err != nil {
		t.Fatalf("missing modality folder not restored: %v", err)
	}
}

func TestPruneRemovesOnlyEmptyFolders(t *testing.T) {
	tree := Tree{Root: t.TempDir()}
	modalities := []string{"anat", "dwi", "func"}
	if _, err := tree.Materialize(testID, modalities); err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(tree.ModalityDir(testID, "anat"), BackupDir), 0o755); err != nil {
		t.Fatal(err)
	}

	other := identity.Canonical{SubjectCode: "PAT", Session: "ses-followup1", ID: "07"}
	if _, err := tree.Materialize(other, modalities); err != nil {
		t.Fatal(err)
	}
	kept := filepath.Join(tree.ModalityDir(other, "func"), "run.nii.gz")
	if err := os.WriteFile(kept, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := tree.Prune(testID, modalities); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if _, err := os.Stat(tree.SessionDir(testID)); !os.IsNotExist(err) {
		t.Fatalf("empty session folder should be removed, stat err = %v", err)
	}
	if _, err := os.Stat(kept); err != nil {
		t.Fatalf("other session's file removed: %v", err)
	}

	if err := tree.Prune(other, modalities); err != nil {
		t.Fatalf("Prune non-empty: %v", err)
	}
	if _, err := os.Stat(tree.ModalityDir(other, "func")); err != nil {
		t.Fatalf("non-empty modality folder removed: %v", err)
	}
	if _, err := os.Stat(tree.ModalityDir(other, "dwi")); !os.IsNotExist(err) {
		t.Fatalf("empty modality folder should be removed, stat err = %v", err)
	}
	if _, err := os.Stat(tree.SubjectDir(other)); err != nil {
		t.Fatalf("subject folder with content removed: %v", err)
	}
}

func TestLedgerPath(t *testing.T) {
	tree := Tree{Root: "/data"}
	if got, want := tree.LedgerPath(testID), "/data/sub-PAT07/sub-PAT07_sessions.tsv"; got != want {
		t.Fatalf("LedgerPath = %q, want %q", got, want)
	}
	for _, name := range []string{"sub-PAT07", "PAT07"} {
		if got, want := tree.SubjectLedger(name), "/data/sub-PAT07/sub-PAT07_sessions.tsv"; got != want {
			t.Fatalf("SubjectLedger(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestCanonicalName(t *testing.T) {
	tests := []struct {
		decision criteria.Decision
		run      int
		want     string
	}{
		{criteria.Decision{Class: config.ClassT1}, 0, "sub-PAT07_ses-acute_T1w"},
		{criteria.Decision{Class: config.ClassT2}, 0, "sub-PAT07_ses-acute_T2w"},
		{criteria.Decision{Class: config.ClassDiffusion, Direction: "dir-AP"}, 0, "sub-PAT07_ses-acute_dir-AP_dwi"},
		{criteria.Decision{Class: config.ClassFunctional}, 2, "sub-PAT07_ses-acute_task-rest_run-2_bold"},
	}
	for _, tt := range tests {
		got, err := CanonicalName(testID, tt.decision, tt.run)
		if err != nil {
			t.Fatalf("CanonicalName(%+v): %v", tt.decision, err)
		}
		if got != tt.want {
			t.Fatalf("CanonicalName(%+v) = %q, want %q", tt.decision, got, tt.want)
		}
	}
}

func TestCanonicalNameRejectsIncompleteDecisions(t *testing.T) {
	for _, d := range []struct {
		decision criteria.Decision
		run      int
	}{
		{criteria.Decision{Class: config.ClassDiffusion}, 0},
		{criteria.Decision{Class: config.ClassFunctional}, 0},
		{criteria.Decision{Class: criteria.ClassExcluded}, 0},
	} {
		if _, err := CanonicalName(testID, d.decision, d.run); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("CanonicalName(%+v) expected validation error, got %v", d.decision, err)
		}
	}
}
