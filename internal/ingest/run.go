package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"bidsort/internal/fileutil"
	"bidsort/internal/history"
	"bidsort/internal/logging"
	"bidsort/internal/services"
	"bidsort/internal/staging"
)

// LockFileName is the dataset-root lock that keeps two runs from writing the
// same dataset.
const LockFileName = ".bidsort.lock"

// ErrDatasetLocked reports that another run holds the dataset lock.
var ErrDatasetLocked = errors.New("dataset is locked by another bidsort run")

// Summary aggregates the folder results of one run.
type Summary struct {
	RunID     string
	Results   []FolderResult
	Completed int
	Failed    int
	Quota     int
	Elapsed   time.Duration
}

// Failures returns the results that need operator attention, in folder order.
func (s Summary) Failures() []FolderResult {
	var out []FolderResult
	for _, r := range s.Results {
		if r.Failed() {
			out = append(out, r)
		}
	}
	return out
}

// Status returns the run status implied by the results.
func (s Summary) Status() history.RunStatus {
	if s.Failed+s.Quota > 0 {
		return history.RunPartial
	}
	return history.RunCompleted
}

// DiscoverFolders lists the source session folders under the input directory
// that match ingest.subject_pattern.
func (d *Driver) DiscoverFolders() ([]string, error) {
	folders, err := fileutil.ListEntries(d.cfg.Paths.InputDir, fileutil.KindDir, d.cfg.Ingest.SubjectPattern)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "discover folders", d.cfg.Paths.InputDir, err)
	}
	return folders, nil
}

// Run processes folders under runID. Folder failures do not stop the run;
// the returned error is reserved for conditions that prevent the run itself
// (dataset lock, staging setup, cancellation).
func (d *Driver) Run(ctx context.Context, runID string, folders []string) (Summary, error) {
	started := time.Now()
	summary := Summary{RunID: runID}
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, d.logger)

	if err := os.MkdirAll(d.cfg.Paths.OutputDir, 0o755); err != nil {
		return summary, services.Wrap(services.ErrConfiguration, "ingest", "create output", d.cfg.Paths.OutputDir, err)
	}
	lock := flock.New(filepath.Join(d.cfg.Paths.OutputDir, LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return summary, fmt.Errorf("acquire dataset lock: %w", err)
	}
	if !locked {
		return summary, ErrDatasetLocked
	}
	defer func() {
		_ = lock.Unlock()
	}()

	maxAge := time.Duration(d.cfg.Ingest.StaleStagingHours) * time.Hour
	staging.CleanStale(ctx, d.cfg.Paths.StagingDir, maxAge, []string{runID}, d.baseLogger)
	ws, err := staging.NewWorkspace(d.cfg.Paths.StagingDir, runID)
	if err != nil {
		return summary, services.Wrap(services.ErrConfiguration, "ingest", "staging", d.cfg.Paths.StagingDir, err)
	}
	defer func() {
		_ = ws.Remove()
	}()

	if d.recorder != nil {
		run := history.Run{ID: runID, StartedAt: started, InputDir: d.cfg.Paths.InputDir, OutputDir: d.cfg.Paths.OutputDir}
		if err := d.recorder.StartRun(ctx, run); err != nil {
			logging.WarnWithContext(logger, "failed to record run start", "history_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "run will be missing from bidsort history"),
			)
		}
	}
	folders, repeated := uniqueFolders(folders)
	for _, folder := range repeated {
		logging.WarnWithContext(logger, "source folder listed more than once", "folder_repeated",
			logging.String("source_folder", folder),
			logging.String(logging.FieldImpact, "folder processed once"),
		)
	}
	logger.Info("ingest run started",
		logging.Int("folders", len(folders)),
		logging.Int("jobs", d.cfg.Ingest.Jobs),
		logging.String("output_dir", d.cfg.Paths.OutputDir),
	)

	results := make([]FolderResult, len(folders))
	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, d.cfg.Ingest.Jobs))
	for i, folder := range folders {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result := d.ProcessFolder(gctx, ws, folder)
			results[i] = result
			d.record(gctx, runID, result)

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			if d.progress != nil {
				d.progress(n, len(folders), result)
			}
			return nil
		})
	}
	runErr := g.Wait()
	if runErr == nil {
		runErr = ctx.Err()
	}

	for _, r := range results {
		if r.Folder == "" {
			continue
		}
		summary.Results = append(summary.Results, r)
		switch r.Outcome {
		case history.OutcomeCompleted:
			summary.Completed++
		case history.OutcomeQuota:
			summary.Quota++
		default:
			summary.Failed++
		}
	}
	summary.Elapsed = time.Since(started)

	status := summary.Status()
	if runErr != nil {
		status = history.RunAborted
	}
	if d.recorder != nil {
		if err := d.recorder.FinishRun(context.WithoutCancel(ctx), runID, status); err != nil {
			logging.WarnWithContext(logger, "failed to record run finish", "history_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "run will show as running in bidsort history"),
			)
		}
	}
	for _, r := range summary.Failures() {
		logger.Error("folder needs attention",
			logging.String(logging.FieldFolder, filepath.Base(r.Folder)),
			logging.String("outcome", string(r.Outcome)),
			logging.String("cause", services.Cause(r.Err)),
			logging.Error(r.Err),
		)
	}
	logger.Info("ingest run complete",
		logging.String("status", string(status)),
		logging.Int("completed", summary.Completed),
		logging.Int("failed", summary.Failed),
		logging.Int("quota", summary.Quota),
		logging.Duration("elapsed", summary.Elapsed),
	)
	return summary, runErr
}

// uniqueFolders drops repeated folders, keeping the first occurrence.
func uniqueFolders(folders []string) ([]string, []string) {
	seen := make(map[string]bool, len(folders))
	unique := make([]string, 0, len(folders))
	var repeated []string
	for _, folder := range folders {
		key := filepath.Clean(folder)
		if seen[key] {
			repeated = append(repeated, folder)
			continue
		}
		seen[key] = true
		unique = append(unique, folder)
	}
	return unique, repeated
}

func (d *Driver) record(ctx context.Context, runID string, r FolderResult) {
	if d.recorder == nil {
		return
	}
	outcome := history.FolderOutcome{
		RunID:     runID,
		Folder:    filepath.Base(r.Folder),
		Subject:   r.Subject,
		Session:   r.Session,
		Outcome:   r.Outcome,
		Discarded: r.Discarded,
	}
	if r.Err != nil {
		outcome.Cause = services.Cause(r.Err)
		outcome.Message = r.Err.Error()
	}
	if r.Record != nil {
		outcome.Anat = r.Record.Counts.Anat
		outcome.Dwi = r.Record.Counts.Dwi
		outcome.Func = r.Record.Counts.Func
		outcome.BackupAnat = r.Record.Backups.Anat
		outcome.BackupDwi = r.Record.Backups.Dwi
		outcome.BackupFunc = r.Record.Backups.Func
	}
	if err := d.recorder.RecordFolder(context.WithoutCancel(ctx), outcome); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, d.logger), "failed to record folder outcome", "history_write_failed",
			logging.String("source_folder", outcome.Folder),
			logging.Error(err),
			logging.String(logging.FieldImpact, "folder outcome missing from bidsort history"),
		)
	}
}
