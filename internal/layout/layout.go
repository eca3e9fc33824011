// Package layout owns the canonical dataset tree: where subject, session, and
// modality folders live and how accepted groups are named inside them.
package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"bidsort/internal/config"
	"bidsort/internal/criteria"
	"bidsort/internal/identity"
	"bidsort/internal/services"
)

// BackupDir is the per-modality folder collisions are diverted into.
const BackupDir = "backup"

// Tree resolves paths under one dataset root.
type Tree struct {
	Root string
}

// SubjectDir returns <root>/sub-<code><id>.
func (t Tree) SubjectDir(id identity.Canonical) string {
	return filepath.Join(t.Root, id.SubjectDir())
}

// SessionDir returns <root>/sub-<code><id>/<session>.
func (t Tree) SessionDir(id identity.Canonical) string {
	return filepath.Join(t.SubjectDir(id), id.Session)
}

// ModalityDir returns <root>/sub-<code><id>/<session>/<modality>.
func (t Tree) ModalityDir(id identity.Canonical, modality string) string {
	return filepath.Join(t.SessionDir(id), modality)
}

// LedgerPath returns the subject's session ledger, <subject>/<subject>_sessions.tsv.
func (t Tree) LedgerPath(id identity.Canonical) string {
	return t.SubjectLedger(id.SubjectDir())
}

// SubjectLedger returns the session ledger for a subject folder name such as
// sub-PAT07. A missing "sub-" prefix is added.
func (t Tree) SubjectLedger(subject string) string {
	if !strings.HasPrefix(subject, "sub-") {
		subject = "sub-" + subject
	}
	return filepath.Join(t.Root, subject, subject+"_sessions.tsv")
}

// Materialize ensures every modality folder exists for the session. It
// reports whether the session folder was newly created. Pre-existing trees
// are not an error; missing modality folders inside them are filled in.
func (t Tree) Materialize(id identity.Canonical, modalities []string) (bool, error) {
	sessionDir := t.SessionDir(id)
	created := false
	if _, err := os.Stat(sessionDir); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return false, services.Wrap(services.ErrTransient, "layout", "stat session", sessionDir, err)
		}
		created = true
	}
	for _, modality := range modalities {
		dir := filepath.Join(sessionDir, modality)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return created, services.Wrap(services.ErrTransient, "layout", "create modality folder", dir, err)
		}
	}
	return created, nil
}

// Prune removes the session's folders that are empty after a failed attempt:
// backup and modality folders, the session folder, then the subject folder.
// Folders that still hold anything are kept.
func (t Tree) Prune(id identity.Canonical, modalities []string) error {
	sessionDir := t.SessionDir(id)
	var dirs []string
	for _, modality := range modalities {
		dir := filepath.Join(sessionDir, modality)
		dirs = append(dirs, filepath.Join(dir, BackupDir), dir)
	}
	dirs = append(dirs, sessionDir, t.SubjectDir(id))
	for _, dir := range dirs {
		if err := removeEmptyDir(dir); err != nil {
			return services.Wrap(services.ErrTransient, "layout", "prune", dir, err)
		}
	}
	return nil
}

func removeEmptyDir(dir string) error {
	err := os.Remove(dir)
	switch {
	case err == nil, errors.Is(err, os.ErrNotExist):
		return nil
	case errors.Is(err, unix.ENOTEMPTY), errors.Is(err, unix.EEXIST):
		return nil
	default:
		return err
	}
}

// CanonicalName builds the extension-less dataset name for an accepted group:
//
//	anat: sub-<code><id>_<session>_<T1w|T2w>
//	dwi:  sub-<code><id>_<session>_<direction>_dwi
//	func: sub-<code><id>_<session>_task-rest_run-<run>_bold
//
// run is the 1-based functional run index within the source folder.
func CanonicalName(id identity.Canonical, decision criteria.Decision, run int) (string, error) {
	parts := []string{"sub-" + id.Subject(), id.Session}
	switch decision.Class {
	case config.ClassT1, config.ClassT2:
	case config.ClassDiffusion:
		if strings.TrimSpace(decision.Direction) == "" {
			return "", services.Wrap(services.ErrValidation, "layout", "canonical name", "diffusion group without direction code", nil)
		}
		parts = append(parts, decision.Direction)
	case config.ClassFunctional:
		if run < 1 {
			return "", services.Wrap(services.ErrValidation, "layout", "canonical name", fmt.Sprintf("invalid run index %d", run), nil)
		}
		parts = append(parts, "task-rest", fmt.Sprintf("run-%d", run))
	default:
		return "", services.Wrap(services.ErrValidation, "layout", "canonical name", fmt.Sprintf("class %q has no canonical name", decision.Class), nil)
	}
	parts = append(parts, decision.Class)
	return strings.Join(parts, "_"), nil
}
