package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"bidsort/internal/layout"
	"bidsort/internal/ledger"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect subject session ledgers",
	}
	ledgerCmd.AddCommand(newLedgerShowCommand(ctx))
	ledgerCmd.AddCommand(newLedgerCheckCommand(ctx))
	ledgerCmd.AddCommand(newLedgerListCommand(ctx))
	return ledgerCmd
}

func newLedgerShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <subject>",
		Short: "Print a subject's session ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := layout.Tree{Root: cfg.Paths.OutputDir}.SubjectLedger(strings.TrimSpace(args[0]))
			table, err := readExistingLedger(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(table.Rows) == 0 {
				fmt.Fprintf(out, "Ledger %s has no sessions\n", path)
				return nil
			}
			aligns := make([]columnAlignment, len(table.Header))
			for i, column := range table.Header {
				if isCountColumn(column) {
					aligns[i] = alignRight
				}
			}
			fmt.Fprintln(out, renderTable(table.Header, table.Rows, aligns))
			return nil
		},
	}
}

func newLedgerCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check <subject>",
		Short: "Report sessions that violate the anatomical quota",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := layout.Tree{Root: cfg.Paths.OutputDir}.SubjectLedger(strings.TrimSpace(args[0]))
			table, err := readExistingLedger(path)
			if err != nil {
				return err
			}
			records, err := table.Records()
			if err != nil {
				return fmt.Errorf("decode ledger %s: %w", path, err)
			}
			out := cmd.OutOrStdout()
			violations := 0
			for _, rec := range records {
				if err := ledger.CheckQuota(rec, cfg.Criteria.MinAnatomical); err != nil {
					violations++
					fmt.Fprintln(out, err)
				}
			}
			if violations > 0 {
				return fmt.Errorf("%d of %d sessions violate the anatomical quota", violations, len(records))
			}
			fmt.Fprintf(out, "All %d sessions meet the anatomical quota (%d)\n", len(records), cfg.Criteria.MinAnatomical)
			return nil
		},
	}
}

func newLedgerListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List subjects with a session ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			matches, err := filepath.Glob(filepath.Join(cfg.Paths.OutputDir, "sub-*", "sub-*_sessions.tsv"))
			if err != nil {
				return err
			}
			sort.Strings(matches)
			out := cmd.OutOrStdout()
			if len(matches) == 0 {
				fmt.Fprintf(out, "No subject ledgers under %s\n", cfg.Paths.OutputDir)
				return nil
			}
			rows := make([][]string, 0, len(matches))
			for _, path := range matches {
				table, err := ledger.Read(path)
				if err != nil {
					return err
				}
				rows = append(rows, []string{filepath.Base(filepath.Dir(path)), fmt.Sprintf("%d", len(table.Rows))})
			}
			fmt.Fprintln(out, renderTable([]string{"Subject", "Sessions"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}

func readExistingLedger(path string) (ledger.Table, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ledger.Table{}, fmt.Errorf("no ledger at %s", path)
		}
		return ledger.Table{}, err
	}
	return ledger.Read(path)
}

func isCountColumn(column string) bool {
	switch column {
	case ledger.ColumnAnat, ledger.ColumnDwi, ledger.ColumnFunc,
		ledger.ColumnBackupAnat, ledger.ColumnBackupDwi, ledger.ColumnBackupFunc:
		return true
	default:
		return false
	}
}
