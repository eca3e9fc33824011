package placer

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"bidsort/internal/fileutil"
	"bidsort/internal/layout"
	"bidsort/internal/logging"
	"bidsort/internal/services"
)

// maxSlots bounds the backup slot search.
const maxSlots = 10000

// Placement records where one source file ended up.
type Placement struct {
	Source string
	Dest   string
	// Slot is the backup index used, or -1 for the primary path.
	Slot int
}

// Backup reports whether the file was diverted to a backup slot.
func (p Placement) Backup() bool {
	return p.Slot >= 0
}

// Result describes one Place call.
type Result struct {
	Placements []Placement
	// Slots is the highest backup index allocated plus one, or 0 when every
	// file reached its primary path.
	Slots int
}

// Placer moves files into modality folders.
type Placer struct {
	logger *slog.Logger
}

// New returns a placer that logs backup allocations to logger.
func New(logger *slog.Logger) *Placer {
	return &Placer{logger: logging.NewComponentLogger(logger, "placer")}
}

// Place moves every file into modalityDir under name, diverting collisions
// into backup slots. On error, files already placed by this call stay where
// they are and are listed in the returned Result so the caller can roll them
// back.
func (p *Placer) Place(files []string, modalityDir, name string) (Result, error) {
	var result Result
	for _, src := range files {
		ext := fileutil.Ext(src)
		dest, slot, err := p.claim(src, modalityDir, name, ext)
		if err != nil {
			return result, err
		}
		pl := Placement{Source: src, Dest: dest, Slot: slot}
		result.Placements = append(result.Placements, pl)
		if slot+1 > result.Slots {
			result.Slots = slot + 1
		}
		if pl.Backup() {
			attrs := logging.DecisionAttrs("placement", "backup", "primary_path_taken",
				logging.String("source", filepath.Base(src)),
				logging.String("destination", dest),
				logging.Int("slot", slot),
			)
			p.logger.Info("file diverted to backup slot", logging.Args(attrs...)...)
		}
	}
	return result, nil
}

func (p *Placer) claim(src, modalityDir, name, ext string) (string, int, error) {
	primary := filepath.Join(modalityDir, withExt(name, ext))
	err := moveExclusive(src, primary)
	if err == nil {
		return primary, -1, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return "", 0, services.Wrap(services.ErrTransient, "placer", "move file", primary, err)
	}

	backupDir := filepath.Join(modalityDir, layout.BackupDir)
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", 0, services.Wrap(services.ErrTransient, "placer", "create backup folder", backupDir, err)
	}
	for k := 0; k < maxSlots; k++ {
		candidate := filepath.Join(backupDir, withExt(fmt.Sprintf("%s_bck-%d", name, k), ext))
		err := moveExclusive(src, candidate)
		if err == nil {
			return candidate, k, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", 0, services.Wrap(services.ErrTransient, "placer", "move file", candidate, err)
		}
	}
	return "", 0, services.Wrap(services.ErrTransient, "placer", "allocate backup slot", fmt.Sprintf("exhausted backup slots for %s", name), nil)
}

// moveExclusive moves src to dst, failing with os.ErrExist if dst exists.
// A hard link claims dst atomically; filesystems that cannot link fall back
// to an exclusive-create copy.
func moveExclusive(src, dst string) error {
	err := os.Link(src, dst)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return err
		}
		var linkErr *os.LinkError
		if !errors.As(err, &linkErr) || !linkUnsupported(linkErr.Err) {
			return err
		}
		if err := fileutil.CopyFileVerified(src, dst); err != nil {
			return err
		}
	}
	if err := os.Remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove source after placement: %w", err)
	}
	return nil
}

func linkUnsupported(err error) bool {
	return errors.Is(err, unix.EXDEV) || errors.Is(err, unix.EPERM) || errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EMLINK)
}

// Rollback removes placed files, returning the first error encountered.
func Rollback(placements []Placement) error {
	var first error
	for _, pl := range placements {
		if err := os.Remove(pl.Dest); err != nil && !errors.Is(err, os.ErrNotExist) && first == nil {
			first = err
		}
	}
	return first
}

func withExt(name, ext string) string {
	if ext == "" {
		return name
	}
	return name + "." + ext
}
