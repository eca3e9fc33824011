package ingest

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"bidsort/internal/config"
	"bidsort/internal/fileutil"
	"bidsort/internal/history"
	"bidsort/internal/layout"
	"bidsort/internal/ledger"
	"bidsort/internal/logging"
	"bidsort/internal/naming"
	"bidsort/internal/placer"
	"bidsort/internal/services"
	"bidsort/internal/staging"
)

// FolderResult is the outcome of one source folder.
type FolderResult struct {
	Folder    string
	Outcome   history.Outcome
	Subject   string
	Session   string
	Record    *ledger.SessionRecord
	Discarded int
	Err       error
	Elapsed   time.Duration
}

// Failed reports whether the folder needs operator attention.
func (r FolderResult) Failed() bool {
	return r.Outcome != history.OutcomeCompleted
}

// ProcessFolder converts and organizes one source session folder. It never
// returns an error: failures are reported in the result so the caller can
// move on to the next folder.
func (d *Driver) ProcessFolder(ctx context.Context, ws *staging.Workspace, folder string) FolderResult {
	started := time.Now()
	ctx = services.WithFolder(ctx, filepath.Base(folder))
	logger := logging.WithContext(ctx, d.logger)

	acc := Accumulator{Folder: folder}
	stage, err := ws.Claim(folder)
	if err != nil {
		err = services.Wrap(services.ErrTransient, "ingest", "staging", folder, err)
	} else {
		acc, err = d.convertFolder(ctx, stage, acc)
	}
	result := FolderResult{Folder: folder, Discarded: acc.Discarded}
	if acc.Bound {
		result.Subject = acc.Identity.SubjectDir()
		result.Session = acc.Identity.Session
	}
	if err == nil && !acc.Bound {
		err = services.Wrap(services.ErrValidation, "ingest", "identity", "no acquisition in the folder could be identified", nil)
	}

	if err == nil {
		rec := acc.Record()
		err = d.ledger.Append(services.WithStage(ctx, "ledger"), d.tree.LedgerPath(acc.Identity), rec)
		if err == nil {
			result.Record = &rec
			err = ledger.CheckQuota(rec, d.cfg.Criteria.MinAnatomical)
			if err != nil {
				result.Outcome = history.OutcomeQuota
			}
		}
	}
	if err != nil && result.Outcome != history.OutcomeQuota {
		result.Outcome = history.OutcomeFailed
		d.rollback(ctx, acc)
	}
	if err == nil {
		result.Outcome = history.OutcomeCompleted
	}
	d.removeStage(logger, stage)
	result.Err = err
	result.Elapsed = time.Since(started)
	d.logResult(logger, result)
	return result
}

func (d *Driver) removeStage(logger *slog.Logger, stage *staging.FolderStage) {
	if stage == nil {
		return
	}
	if err := stage.Remove(); err != nil {
		logging.WarnWithContext(logger, "failed to remove folder staging directory", "staging_cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the directory manually or wait for stale cleanup"),
			logging.String(logging.FieldImpact, "disk space not reclaimed until the next run"),
		)
	}
}

func (d *Driver) convertFolder(ctx context.Context, stage *staging.FolderStage, acc Accumulator) (Accumulator, error) {
	series, err := fileutil.ListEntries(acc.Folder, fileutil.KindDir, "")
	if err != nil {
		return acc, services.Wrap(services.ErrValidation, "ingest", "list series", acc.Folder, err)
	}
	if len(series) == 0 {
		series = []string{acc.Folder}
	}
	for n, src := range series {
		if err := ctx.Err(); err != nil {
			return acc, err
		}
		outDir, err := stage.InvocationDir(n)
		if err != nil {
			return acc, services.Wrap(services.ErrTransient, "ingest", "staging", acc.Folder, err)
		}
		outputs, err := d.converter.Convert(services.WithStage(ctx, "convert"), src, outDir)
		if err != nil {
			if errors.Is(err, services.ErrExternalTool) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return acc, err
			}
			return acc, services.Wrap(services.ErrExternalTool, "convert", filepath.Base(src), "converter failed", err)
		}
		for _, group := range fileutil.GroupByBase(outputs) {
			acc, err = d.processGroup(ctx, acc, group)
			if err != nil {
				return acc, err
			}
		}
	}
	return acc, nil
}

// processGroup walks one converted group through decode, identity,
// classification, and placement.
func (d *Driver) processGroup(ctx context.Context, acc Accumulator, group fileutil.Group) (Accumulator, error) {
	logger := logging.WithContext(ctx, d.logger)

	if d.evaluator.IsScout(group.Base) {
		logger.Debug("scout acquisition discarded",
			logging.Args(logging.DecisionAttrs("scout", "discarded", "scout_pattern", logging.String("group", group.Base))...)...)
		return d.discard(acc, group)
	}

	info, err := naming.Decode(group.Base)
	if err != nil {
		return acc, err
	}
	id, err := d.resolver.Resolve(info.RawSubject, info.SessionTag)
	if err != nil {
		return acc, err
	}
	if acc, err = acc.bind(id, info); err != nil {
		return acc, err
	}

	decision, err := d.evaluator.Evaluate(group, info.Protocol)
	if err != nil {
		if services.Classify(err) == services.OutcomeDiscard {
			logging.WarnWithContext(logger, "acquisition discarded", "group_discarded",
				logging.String("group", group.Base),
				logging.String("cause", services.Cause(err)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "inspect the converter sidecar for this series"),
				logging.String(logging.FieldImpact, "series excluded from the dataset"),
			)
			return d.discard(acc, group)
		}
		return acc, err
	}
	modality := decision.Modality()
	if !decision.Accept || !slices.Contains(d.cfg.Ingest.Modalities, modality) {
		return d.discard(acc, group)
	}

	if !acc.materialized {
		created, err := d.tree.Materialize(acc.Identity, d.cfg.Ingest.Modalities)
		if err != nil {
			return acc, err
		}
		acc.materialized = true
		acc.SessionCreated = created
		if created {
			logger.Info("session tree created", logging.String("session_dir", d.tree.SessionDir(acc.Identity)))
		}
	}
	series := info.Series()
	run := 0
	if decision.Class == config.ClassFunctional {
		run = acc.functionalRun(series)
	}
	name, err := layout.CanonicalName(acc.Identity, decision, run)
	if err != nil {
		return acc, err
	}
	name += suffixPart(info.Suffix)
	placed, err := d.placer.Place(group.Files, d.tree.ModalityDir(acc.Identity, modality), name)
	acc.Placed = append(acc.Placed, placed.Placements...)
	if err != nil {
		return acc, err
	}
	acc = acc.place(series, modality, run, placed, d.cfg.Ingest.BackupCountMode)
	logger.Info("acquisition placed",
		logging.String("group", group.Base),
		logging.String("class", decision.Class),
		logging.String("name", name),
		logging.Int("backup_slots", placed.Slots),
	)
	return acc, nil
}

// suffixPart keeps images of one series apart in the dataset, e.g. the
// "_e2" echo of a multi-echo acquisition.
func suffixPart(suffix string) string {
	if suffix == "" || strings.HasPrefix(suffix, "_") {
		return suffix
	}
	return "_" + suffix
}

func (d *Driver) discard(acc Accumulator, group fileutil.Group) (Accumulator, error) {
	if err := group.Remove(); err != nil {
		return acc, services.Wrap(services.ErrTransient, "ingest", "discard", group.Base, err)
	}
	acc.Discarded++
	return acc, nil
}

// rollback removes what a failed attempt left in the dataset: the files it
// placed and, when it created the session tree, any folders left empty.
func (d *Driver) rollback(ctx context.Context, acc Accumulator) {
	logger := logging.WithContext(ctx, d.logger)
	if len(acc.Placed) > 0 {
		if err := placer.Rollback(acc.Placed); err != nil {
			logging.ErrorWithContext(logger, "rollback of placed files incomplete", "rollback_failed",
				logging.Error(err),
				logging.Int("placed_files", len(acc.Placed)),
				logging.String(logging.FieldErrorHint, "remove the listed files before re-running the folder"),
			)
			return
		}
		logger.Info("placed files rolled back", logging.Int("files", len(acc.Placed)))
	}
	if !acc.SessionCreated {
		return
	}
	if err := d.tree.Prune(acc.Identity, d.cfg.Ingest.Modalities); err != nil {
		logging.WarnWithContext(logger, "failed to remove session folders", "rollback_prune_failed",
			logging.Error(err),
			logging.String("session_dir", d.tree.SessionDir(acc.Identity)),
			logging.String(logging.FieldErrorHint, "remove the empty session folder before re-running"),
		)
	}
}

func (d *Driver) logResult(logger *slog.Logger, r FolderResult) {
	attrs := []logging.Attr{
		logging.String("outcome", string(r.Outcome)),
		logging.String("subject", r.Subject),
		logging.String("session", r.Session),
		logging.Int("discarded", r.Discarded),
		logging.Duration("elapsed", r.Elapsed),
	}
	if r.Record != nil {
		attrs = append(attrs,
			logging.Int("anat", r.Record.Counts.Anat),
			logging.Int("dwi", r.Record.Counts.Dwi),
			logging.Int("func", r.Record.Counts.Func),
		)
	}
	if r.Err == nil {
		logger.Info("folder processed", logging.Args(attrs...)...)
		return
	}
	attrs = append(attrs,
		logging.String("cause", services.Cause(r.Err)),
		logging.Error(r.Err),
		logging.String(logging.FieldErrorHint, FailureHint(r.Err)),
	)
	logging.ErrorWithContext(logger, "folder failed", "folder_failed", attrs...)
}

// FailureHint suggests the operator's next step for a failure cause.
func FailureHint(err error) string {
	switch {
	case errors.Is(err, services.ErrMalformedName):
		return "check the converter filename template and the source series naming"
	case errors.Is(err, services.ErrUnknownSessionTag):
		return "add the session tag to [mapping.sessions]"
	case errors.Is(err, services.ErrQuotaViolation):
		return "verify the session has both T1 and T2 acquisitions"
	case errors.Is(err, services.ErrExternalTool):
		return "inspect dcm2niix output for the folder"
	case errors.Is(err, services.ErrValidation):
		return "inspect the folder contents and converter outputs"
	default:
		return "check logs for details"
	}
}
