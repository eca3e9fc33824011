package preflight

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"bidsort/internal/config"
	"bidsort/internal/deps"
)

// Access is the permission set a directory check requires.
type Access uint32

const (
	AccessRead      Access = unix.R_OK | unix.X_OK
	AccessReadWrite Access = unix.R_OK | unix.W_OK | unix.X_OK
)

func (a Access) String() string {
	if a&unix.W_OK != 0 {
		return "read/write"
	}
	return "read"
}

// CheckDirectoryAccess verifies that the directory exists and grants access.
func CheckDirectoryAccess(name, path string, access Access) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, uint32(access)); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s ok)", path, access)}
}

// CheckSessionTable verifies that at least one session tag is mapped; without
// one every folder would fail identity resolution.
func CheckSessionTable(cfg *config.Config) Result {
	const name = "Session table"
	n := len(cfg.Mapping.Sessions)
	if n == 0 {
		return Result{Name: name, Detail: "no session tags configured in [mapping.sessions]"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d session tags", n)}
}

// CheckSystemDeps evaluates the external binaries required for the given config.
func CheckSystemDeps(_ context.Context, cfg *config.Config) []deps.Status {
	return deps.CheckBinaries([]deps.Requirement{
		{
			Name:        "dcm2niix",
			Command:     cfg.ConverterBinary(),
			Description: "Required for DICOM to NIfTI conversion",
		},
	})
}
