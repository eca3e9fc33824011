package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"bidsort/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent ingest runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *history.Store) error {
				runs, err := store.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{
						shortID(run.ID),
						formatTimestamp(run.StartedAt),
						formatTimestamp(run.FinishedAt),
						string(run.Status),
						strconv.Itoa(run.Folders),
						strconv.Itoa(run.Failed),
					})
				}
				headers := []string{"Run", "Started", "Finished", "Status", "Folders", "Failed"}
				aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight}
				fmt.Fprintln(out, renderTable(headers, rows, aligns))
				return nil
			})
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list (0 for all)")
	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	return historyCmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show folder outcomes for a run (failures only by default)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(ctx, func(store *history.Store) error {
				run, err := store.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if run == nil {
					return fmt.Errorf("run %q not found", args[0])
				}
				outcomes, err := store.Outcomes(cmd.Context(), run.ID, !all)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Run %s (%s): %d folders, %d failed\n", run.ID, run.Status, run.Folders, run.Failed)
				fmt.Fprintf(out, "Input: %s\nOutput: %s\n", run.InputDir, run.OutputDir)
				if len(outcomes) == 0 {
					if all {
						fmt.Fprintln(out, "No folder outcomes recorded")
					} else {
						fmt.Fprintln(out, "No folders need attention")
					}
					return nil
				}
				rows := make([][]string, 0, len(outcomes))
				for _, o := range outcomes {
					rows = append(rows, []string{
						o.Folder,
						o.Subject,
						o.Session,
						string(o.Outcome),
						o.Cause,
						o.Message,
					})
				}
				headers := []string{"Folder", "Subject", "Session", "Outcome", "Cause", "Message"}
				fmt.Fprintln(out, renderTable(headers, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include folders that completed")
	return cmd
}

func withHistory(ctx *commandContext, fn func(*history.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
