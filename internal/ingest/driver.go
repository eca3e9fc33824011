package ingest

import (
	"context"
	"errors"
	"log/slog"

	"bidsort/internal/config"
	"bidsort/internal/criteria"
	"bidsort/internal/history"
	"bidsort/internal/identity"
	"bidsort/internal/layout"
	"bidsort/internal/ledger"
	"bidsort/internal/logging"
	"bidsort/internal/placer"
	"bidsort/internal/services/dcm2niix"
)

// Recorder persists run and folder outcomes.
type Recorder interface {
	StartRun(ctx context.Context, run history.Run) error
	RecordFolder(ctx context.Context, outcome history.FolderOutcome) error
	FinishRun(ctx context.Context, runID string, status history.RunStatus) error
}

// ProgressFunc is called after each folder finishes.
type ProgressFunc func(done, total int, result FolderResult)

// Option configures the driver.
type Option func(*Driver)

// WithRecorder persists outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(d *Driver) {
		d.recorder = r
	}
}

// WithProgress registers a callback invoked after every folder.
func WithProgress(fn ProgressFunc) Option {
	return func(d *Driver) {
		d.progress = fn
	}
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.baseLogger = logger
		}
	}
}

// Driver converts and organizes source session folders.
type Driver struct {
	cfg        *config.Config
	converter  dcm2niix.Converter
	evaluator  *criteria.Evaluator
	resolver   *identity.Resolver
	placer     *placer.Placer
	ledger     *ledger.Ledger
	tree       layout.Tree
	recorder   Recorder
	progress   ProgressFunc
	baseLogger *slog.Logger
	logger     *slog.Logger
}

// New builds a driver for a resolved config.
func New(cfg *config.Config, converter dcm2niix.Converter, opts ...Option) (*Driver, error) {
	if cfg == nil {
		return nil, errors.New("ingest: config required")
	}
	if converter == nil {
		return nil, errors.New("ingest: converter required")
	}
	d := &Driver{
		cfg:        cfg,
		converter:  converter,
		tree:       layout.Tree{Root: cfg.Paths.OutputDir},
		baseLogger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.NewComponentLogger(d.baseLogger, "ingest")
	d.evaluator = criteria.NewEvaluator(cfg, d.baseLogger)
	d.resolver = identity.NewResolver(cfg.Mapping)
	d.placer = placer.New(d.baseLogger)
	d.ledger = ledger.New(d.baseLogger)
	return d, nil
}

// Tree returns the dataset layout the driver writes into.
func (d *Driver) Tree() layout.Tree {
	return d.tree
}
