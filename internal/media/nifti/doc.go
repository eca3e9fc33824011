// Package nifti reads the dimension fields of NIfTI-1 and NIfTI-2 headers.
//
// Only the header is decoded; voxel data is never read. Gzip-compressed
// volumes (.nii.gz) are decompressed on the fly up to the end of the fields
// needed.
//
// Primary entry points:
//   - ReadHeader: decode the format version and dim array from a reader
//   - VolumeCount: open a file and return the extent of its last axis
package nifti
