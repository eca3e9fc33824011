package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"bidsort/internal/ingest"
)

// folderProgress drives a terminal progress bar across the folders of a run.
// It is inert when the writer is not a terminal.
type folderProgress struct {
	w   io.Writer
	on  bool
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func newFolderProgress(w io.Writer, disabled bool) *folderProgress {
	return &folderProgress{w: w, on: !disabled && isTerminal(w)}
}

func (p *folderProgress) enabled() bool {
	return p != nil && p.on
}

func (p *folderProgress) start(total int) {
	if !p.enabled() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetDescription("ingest"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
	)
}

func (p *folderProgress) update(done, total int, result ingest.FolderResult) {
	if !p.enabled() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		return
	}
	p.bar.Describe(fmt.Sprintf("ingest %s", filepath.Base(result.Folder)))
	_ = p.bar.Set(done)
}

func (p *folderProgress) finish() {
	if !p.enabled() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
