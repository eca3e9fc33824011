package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// EntryKind selects which directory entries ListEntries returns.
type EntryKind int

const (
	KindDir EntryKind = iota
	KindFile
)

// ListEntries returns the immediate children of path of the given kind whose
// names match the glob pattern, sorted by name. An empty pattern matches
// everything. Hidden entries are skipped.
func ListEntries(path string, kind EntryKind, pattern string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		pattern = "*"
	}
	var out []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		isDir := entry.IsDir()
		if entry.Type()&os.ModeSymlink != 0 {
			info, statErr := os.Stat(filepath.Join(path, name))
			if statErr != nil {
				continue
			}
			isDir = info.IsDir()
		}
		if (kind == KindDir) != isDir {
			continue
		}
		ok, err := filepath.Match(pattern, name)
		if err != nil {
			return nil, fmt.Errorf("match %q: %w", pattern, err)
		}
		if ok {
			out = append(out, filepath.Join(path, name))
		}
	}
	sort.Strings(out)
	return out, nil
}

// SplitName splits a file name into its base name and extension. The extension
// starts at the first dot followed by a letter, so "a--b_1.5--c.nii.gz" yields
// ("a--b_1.5--c", "nii.gz").
func SplitName(name string) (string, string) {
	name = filepath.Base(name)
	for i := 0; i < len(name)-1; i++ {
		if name[i] == '.' && isLetter(name[i+1]) {
			return name[:i], name[i+1:]
		}
	}
	return name, ""
}

// Ext returns the placement extension of a file: the last component, or the
// last two when the file is gzip-compressed ("nii.gz").
func Ext(name string) string {
	parts := strings.Split(filepath.Base(name), ".")
	if len(parts) < 2 {
		return ""
	}
	last := parts[len(parts)-1]
	if last == "gz" && len(parts) >= 3 {
		return parts[len(parts)-2] + "." + last
	}
	return last
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// CopyFileVerified streams src to dst with SHA256 + size integrity verification.
// dst must not exist. Removes dst on mismatch.
func CopyFileVerified(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, dstHasher), io.TeeReader(in, srcHasher))
	if err != nil {
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}

	if written != srcInfo.Size() {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = os.Remove(dst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
