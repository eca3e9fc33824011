package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"bidsort/internal/config"
	"bidsort/internal/history"
	"bidsort/internal/ingest"
	"bidsort/internal/ledger"
	"bidsort/internal/preflight"
	"bidsort/internal/services"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var jobs int
	var pattern string
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "ingest [folder...]",
		Short: "Convert and organize source session folders",
		Long: `Convert every source session folder under input_dir (or only the named
folders) with dcm2niix, classify the resulting series, and place accepted
series into the dataset. Each subject's session ledger is updated once per
folder. Folders that fail are rolled back and listed at the end; the command
exits non-zero when any folder needs attention.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("jobs") {
				cfg.Ingest.Jobs = jobs
			}
			if strings.TrimSpace(pattern) != "" {
				cfg.Ingest.SubjectPattern = strings.TrimSpace(pattern)
			}
			if cfg.Ingest.Jobs < 1 {
				return fmt.Errorf("jobs must be at least 1 (got %d)", cfg.Ingest.Jobs)
			}
			out := cmd.OutOrStdout()

			if failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg)); len(failed) > 0 {
				for _, r := range failed {
					fmt.Fprintf(out, "preflight: %s: %s\n", r.Name, r.Detail)
				}
				return fmt.Errorf("preflight failed: %d check(s) did not pass", len(failed))
			}

			progress := newFolderProgress(cmd.ErrOrStderr(), noProgress)
			console := cmd.ErrOrStderr()
			if progress.enabled() {
				console = io.Discard
			}
			logger, err := ctx.logger(console)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			defer store.Close()

			converter, err := ctx.newConverter(cfg, logger)
			if err != nil {
				return fmt.Errorf("dcm2niix: %w", err)
			}
			driver, err := ingest.New(cfg, converter,
				ingest.WithLogger(logger),
				ingest.WithRecorder(store),
				ingest.WithProgress(progress.update),
			)
			if err != nil {
				return err
			}

			folders, err := selectFolders(cfg, driver, args)
			if err != nil {
				return err
			}
			if len(folders) == 0 {
				fmt.Fprintf(out, "No source folders matched %q under %s\n", cfg.Ingest.SubjectPattern, cfg.Paths.InputDir)
				return nil
			}

			runID := uuid.NewString()
			progress.start(len(folders))
			summary, runErr := driver.Run(cmd.Context(), runID, folders)
			progress.finish()

			if len(summary.Results) > 0 {
				fmt.Fprintln(out, renderSummary(summary))
			}
			fmt.Fprintf(out, "Run %s: %d completed, %d failed, %d quota (%s)\n",
				shortID(runID), summary.Completed, summary.Failed, summary.Quota, summary.Elapsed.Round(time.Millisecond))
			if runErr != nil {
				if errors.Is(runErr, ingest.ErrDatasetLocked) {
					return fmt.Errorf("%w: %s", runErr, filepath.Join(cfg.Paths.OutputDir, ingest.LockFileName))
				}
				return runErr
			}
			if n := len(summary.Failures()); n > 0 {
				return fmt.Errorf("%d of %d folders need attention (see `bidsort history show %s`)", n, len(summary.Results), shortID(runID))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "Number of folders processed concurrently (overrides ingest.jobs)")
	cmd.Flags().StringVar(&pattern, "pattern", "", "Glob selecting source folders (overrides ingest.subject_pattern)")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar and stream logs instead")
	return cmd
}

// selectFolders returns the folders named on the command line, or every
// matching folder under input_dir when none are named.
func selectFolders(cfg *config.Config, driver *ingest.Driver, args []string) ([]string, error) {
	if len(args) == 0 {
		return driver.DiscoverFolders()
	}
	folders := make([]string, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		path := arg
		if !filepath.IsAbs(path) && !strings.ContainsRune(path, filepath.Separator) {
			path = filepath.Join(cfg.Paths.InputDir, path)
		}
		expanded, err := config.ExpandPath(path)
		if err != nil {
			return nil, err
		}
		folders = append(folders, expanded)
	}
	return folders, nil
}

func renderSummary(summary ingest.Summary) string {
	headers := []string{"Folder", "Subject", "Session", "Outcome", "anat", "dwi", "func", "Discarded", "Detail"}
	rows := make([][]string, 0, len(summary.Results))
	for _, r := range summary.Results {
		var counts ledger.Counts
		if r.Record != nil {
			counts = r.Record.Counts
		}
		detail := ""
		if r.Err != nil {
			detail = services.Cause(r.Err) + ": " + ingest.FailureHint(r.Err)
		}
		rows = append(rows, []string{
			filepath.Base(r.Folder),
			r.Subject,
			r.Session,
			string(r.Outcome),
			strconv.Itoa(counts.Anat),
			strconv.Itoa(counts.Dwi),
			strconv.Itoa(counts.Func),
			strconv.Itoa(r.Discarded),
			detail,
		})
	}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft}
	return renderTable(headers, rows, aligns)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
