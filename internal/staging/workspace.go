package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Workspace is the staging area of one run.
type Workspace struct {
	root string
}

// NewWorkspace creates <stagingDir>/<runID>.
func NewWorkspace(stagingDir, runID string) (*Workspace, error) {
	stagingDir = strings.TrimSpace(stagingDir)
	runID = strings.TrimSpace(runID)
	if stagingDir == "" || runID == "" {
		return nil, errors.New("staging directory and run id required")
	}
	root := filepath.Join(stagingDir, runID)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create staging workspace: %w", err)
	}
	return &Workspace{root: root}, nil
}

// Root returns the run's staging directory.
func (w *Workspace) Root() string {
	return w.root
}

// maxFolderClaims bounds the name suffixes tried for clashing folder names.
const maxFolderClaims = 1000

// FolderStage is the staging directory owned by one source folder.
type FolderStage struct {
	dir string
}

// Claim creates a staging directory for folder that no other folder of the
// run shares. It is named after the folder, with "-2", "-3", ... appended
// when another source folder of the same name already claimed it.
func (w *Workspace) Claim(folder string) (*FolderStage, error) {
	base := filepath.Base(filepath.Clean(folder))
	if base == "." || base == string(filepath.Separator) {
		return nil, fmt.Errorf("invalid source folder %q", folder)
	}
	for i := 1; i <= maxFolderClaims; i++ {
		name := base
		if i > 1 {
			name = fmt.Sprintf("%s-%d", base, i)
		}
		dir := filepath.Join(w.root, name)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return &FolderStage{dir: dir}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create folder staging directory: %w", err)
		}
	}
	return nil, fmt.Errorf("no free staging directory for %s", base)
}

// Dir returns the folder's staging directory.
func (s *FolderStage) Dir() string {
	return s.dir
}

// InvocationDir returns a fresh, empty directory for the n-th converter
// invocation. Leftovers from an earlier attempt are removed.
func (s *FolderStage) InvocationDir(n int) (string, error) {
	dir := filepath.Join(s.dir, strconv.Itoa(n))
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clear staging directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}
	return dir, nil
}

// Remove deletes the folder's staging directory.
func (s *FolderStage) Remove() error {
	return os.RemoveAll(s.dir)
}

// Remove deletes the whole run workspace.
func (w *Workspace) Remove() error {
	return os.RemoveAll(w.root)
}
