package ingest

import (
	"fmt"
	"path/filepath"
	"slices"

	"bidsort/internal/config"
	"bidsort/internal/identity"
	"bidsort/internal/ledger"
	"bidsort/internal/naming"
	"bidsort/internal/placer"
	"bidsort/internal/services"
)

// Accumulator carries the state of one source folder between group steps.
// Each step takes the accumulator by value and returns the updated copy.
type Accumulator struct {
	Folder          string
	Identity        identity.Canonical
	Bound           bool
	AcquisitionTime string
	Counts          ledger.Counts
	Backups         ledger.Counts
	FunctionalRuns  int
	Discarded       int
	Placed          []placer.Placement
	// SessionCreated is set when this attempt created the session folder.
	SessionCreated bool
	materialized   bool
	series         []placedSeries
}

// placedSeries is one acquired series already counted for the folder. A
// series may reach the dataset as several groups (echoes, phase images).
type placedSeries struct {
	name     string
	modality string
	run      int
	backup   bool
}

func (a Accumulator) lookupSeries(name, modality string) (placedSeries, int) {
	for i, s := range a.series {
		if s.name == name && s.modality == modality {
			return s, i
		}
	}
	return placedSeries{}, -1
}

// functionalRun returns the run index for a functional series: the index
// already assigned to it, or the next free one.
func (a Accumulator) functionalRun(series string) int {
	if s, i := a.lookupSeries(series, "func"); i >= 0 {
		return s.run
	}
	return a.FunctionalRuns + 1
}

// bind fixes the folder's identity on the first decoded group and rejects
// groups that resolve to a different subject or session.
func (a Accumulator) bind(id identity.Canonical, info naming.Info) (Accumulator, error) {
	if !a.Bound {
		a.Identity = id
		a.Bound = true
		a.AcquisitionTime = info.AcquisitionTime
		return a, nil
	}
	if a.Identity != id {
		return a, services.Wrap(services.ErrValidation, "identity", "bind",
			fmt.Sprintf("group %s resolves to %s/%s but folder is %s/%s",
				info.Base, id.SubjectDir(), id.Session, a.Identity.SubjectDir(), a.Identity.Session), nil)
	}
	if info.AcquisitionTime < a.AcquisitionTime {
		a.AcquisitionTime = info.AcquisitionTime
	}
	return a, nil
}

// place records one accepted group's placement. The modality counter moves
// once per series; further groups of a counted series only update backups.
func (a Accumulator) place(series, modality string, run int, result placer.Result, backupMode string) Accumulator {
	a.series = slices.Clone(a.series)
	_, i := a.lookupSeries(series, modality)
	if i < 0 {
		a.Counts.Add(modality, 1)
		a.series = append(a.series, placedSeries{name: series, modality: modality, run: run})
		i = len(a.series) - 1
	}
	a.FunctionalRuns = max(a.FunctionalRuns, run)
	switch backupMode {
	case config.BackupCountGroups:
		if result.Slots > 0 && !a.series[i].backup {
			a.Backups.Add(modality, 1)
			a.series[i].backup = true
		}
	default:
		a.Backups.Max(modality, result.Slots)
	}
	return a
}

// Record builds the ledger row for the folder.
func (a Accumulator) Record() ledger.SessionRecord {
	return ledger.SessionRecord{
		Session:         a.Identity.Session,
		AcquisitionTime: a.AcquisitionTime,
		Folder:          filepath.Base(a.Folder),
		Counts:          a.Counts,
		Backups:         a.Backups,
	}
}
