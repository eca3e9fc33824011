package nifti

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

const (
	nifti1HeaderSize = 348
	nifti2HeaderSize = 540

	nifti1DimOffset = 40
	nifti2DimOffset = 16

	// prefixSize covers sizeof_hdr and the dim array of both versions.
	prefixSize = nifti2DimOffset + 8*8
)

var gzipMagic = []byte{0x1f, 0x8b}

// ErrNotNIfTI reports a file whose sizeof_hdr matches neither version.
var ErrNotNIfTI = errors.New("not a NIfTI header")

// Header is the subset of a NIfTI header this package decodes.
type Header struct {
	// Version is 1 or 2.
	Version int
	// ByteOrder is the byte order the header was written in.
	ByteOrder binary.ByteOrder
	// Dim holds dim[0] (number of axes) followed by the extent of each axis.
	Dim [8]int64
}

// Axes returns the number of used dimensions, clamped to 1..7.
func (h Header) Axes() int {
	n := int(h.Dim[0])
	if n < 1 {
		return 1
	}
	if n > 7 {
		return 7
	}
	return n
}

// LastAxis returns the extent of the last used axis. For a 4D series this is
// the number of volumes.
func (h Header) LastAxis() int64 {
	return h.Dim[h.Axes()]
}

// ReadHeader decodes the header at the start of r. Gzip streams are detected
// by their magic bytes.
func ReadHeader(r io.Reader) (Header, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil {
		return Header{}, fmt.Errorf("read header: %w", err)
	}
	var src io.Reader = br
	if bytes.Equal(magic, gzipMagic) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return Header{}, fmt.Errorf("open gzip stream: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	buf := make([]byte, prefixSize)
	if _, err := io.ReadFull(src, buf); err != nil {
		return Header{}, fmt.Errorf("read header: %w", err)
	}
	return parsePrefix(buf)
}

func parsePrefix(buf []byte) (Header, error) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		switch order.Uint32(buf[:4]) {
		case nifti1HeaderSize:
			h := Header{Version: 1, ByteOrder: order}
			for i := range h.Dim {
				off := nifti1DimOffset + 2*i
				h.Dim[i] = int64(int16(order.Uint16(buf[off : off+2])))
			}
			return h, nil
		case nifti2HeaderSize:
			h := Header{Version: 2, ByteOrder: order}
			for i := range h.Dim {
				off := nifti2DimOffset + 8*i
				h.Dim[i] = int64(order.Uint64(buf[off : off+8]))
			}
			return h, nil
		}
	}
	return Header{}, ErrNotNIfTI
}

// VolumeCount opens path and returns the extent of the image's last axis.
func VolumeCount(path string) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()
	h, err := ReadHeader(file)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return h.LastAxis(), nil
}
