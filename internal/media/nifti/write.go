package nifti

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// WriteHeader writes a minimal NIfTI-1 single-file header (little endian,
// no voxel data) with the given axis extents. Paths ending in .gz are
// gzip-compressed. It exists so tests and fake converters can produce
// readable volumes.
func WriteHeader(path string, dims ...int) error {
	if len(dims) == 0 || len(dims) > 7 {
		return fmt.Errorf("write header: need 1..7 dims, got %d", len(dims))
	}
	buf := make([]byte, nifti1HeaderSize+4)
	binary.LittleEndian.PutUint32(buf[:4], nifti1HeaderSize)
	binary.LittleEndian.PutUint16(buf[nifti1DimOffset:], uint16(len(dims)))
	for i, d := range dims {
		off := nifti1DimOffset + 2*(i+1)
		binary.LittleEndian.PutUint16(buf[off:off+2], uint16(d))
	}
	copy(buf[344:348], "n+1\x00")

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	var w io.Writer = file
	var zw *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		zw = gzip.NewWriter(file)
		w = zw
	}
	if _, err := w.Write(buf); err != nil {
		file.Close()
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			file.Close()
			return err
		}
	}
	return file.Close()
}
