package testsupport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"bidsort/internal/media/nifti"
)

// FakeOutput describes one group the fake converter writes.
type FakeOutput struct {
	// Base is the group base name, e.g. "FCS01A--MPRAGE--20230514101500".
	Base string
	// Dims are the NIfTI axis extents; defaults to a 3D volume.
	Dims []int
	// Sidecar is the JSON sidecar body; "{}" when empty.
	Sidecar string
	// Extras are additional extensions written as plain files (e.g. "bval").
	Extras []string
}

// FakeConverter stands in for dcm2niix. Series are registered by source
// directory; converting an unregistered directory fails.
type FakeConverter struct {
	mu     sync.Mutex
	series map[string][]FakeOutput
	errs   map[string]error
	calls  []string
}

// NewFakeConverter returns an empty fake.
func NewFakeConverter() *FakeConverter {
	return &FakeConverter{series: map[string][]FakeOutput{}, errs: map[string]error{}}
}

// AddSeries creates <inputDir>/<folder>/<series> and registers the outputs the
// fake writes when it is converted.
func (f *FakeConverter) AddSeries(t testing.TB, inputDir, folder, series string, outputs ...FakeOutput) string {
	t.Helper()
	dir := filepath.Join(inputDir, folder, series)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("create series dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "IM0001.dcm"), []byte("DICM"), 0o644); err != nil {
		t.Fatalf("write dicom stub: %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.series[dir] = append(f.series[dir], outputs...)
	return dir
}

// FailSeries makes converting dir return err.
func (f *FakeConverter) FailSeries(dir string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[dir] = err
}

// Calls returns the converted source directories, sorted.
func (f *FakeConverter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := append([]string(nil), f.calls...)
	sort.Strings(calls)
	return calls
}

// Convert writes the registered outputs for sourceDir into outputDir.
func (f *FakeConverter) Convert(ctx context.Context, sourceDir, outputDir string) ([]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sourceDir)
	outputs, ok := f.series[sourceDir]
	err := f.errs[sourceDir]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("fake converter: no series registered for %s", sourceDir)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	var written []string
	for _, out := range outputs {
		paths, err := writeOutput(outputDir, out)
		if err != nil {
			return nil, err
		}
		written = append(written, paths...)
	}
	if len(written) == 0 {
		return nil, errors.New("fake converter: no outputs")
	}
	sort.Strings(written)
	return written, nil
}

func writeOutput(dir string, out FakeOutput) ([]string, error) {
	dims := out.Dims
	if len(dims) == 0 {
		dims = []int{16, 16, 8}
	}
	volume := filepath.Join(dir, out.Base+".nii.gz")
	if err := nifti.WriteHeader(volume, dims...); err != nil {
		return nil, err
	}
	sidecar := out.Sidecar
	if sidecar == "" {
		sidecar = "{}"
	}
	jsonPath := filepath.Join(dir, out.Base+".json")
	if err := os.WriteFile(jsonPath, []byte(sidecar), 0o644); err != nil {
		return nil, err
	}
	paths := []string{volume, jsonPath}
	for _, ext := range out.Extras {
		p := filepath.Join(dir, out.Base+"."+ext)
		if err := os.WriteFile(p, []byte(ext), 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}
