// Package placer moves accepted files into the dataset without ever
// overwriting an existing file.
//
// Each file first tries its primary path, <modality>/<name>.<ext>. When that
// path is taken the file goes to the lowest free backup slot,
// <modality>/backup/<name>_bck-<k>.<ext>. Destinations are claimed with a
// hard link (or an exclusive create when linking is impossible), so two
// placers racing for the same slot cannot both win.
package placer
