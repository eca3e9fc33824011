package ledger

import (
	"fmt"
	"strconv"
)

// Column names of the ledger table, in file order.
const (
	ColumnSession    = "session_id"
	ColumnAcqTime    = "acq_time"
	ColumnFolder     = "FOLDER"
	ColumnAnat       = "anat"
	ColumnDwi        = "dwi"
	ColumnFunc       = "func"
	ColumnBackupAnat = "BACKUP-anat"
	ColumnBackupDwi  = "BACKUP-dwi"
	ColumnBackupFunc = "BACKUP-func"
)

const (
	modalityAnat       = "anat"
	modalityDiffusion  = "dwi"
	modalityFunctional = "func"
)

// Columns is the required column set.
var Columns = []string{
	ColumnSession,
	ColumnAcqTime,
	ColumnFolder,
	ColumnAnat,
	ColumnDwi,
	ColumnFunc,
	ColumnBackupAnat,
	ColumnBackupDwi,
	ColumnBackupFunc,
}

// Counts holds one integer per modality folder.
type Counts struct {
	Anat int
	Dwi  int
	Func int
}

// Add increments the counter for modality by n. Unknown modalities are ignored.
func (c *Counts) Add(modality string, n int) {
	switch modality {
	case modalityAnat:
		c.Anat += n
	case modalityDiffusion:
		c.Dwi += n
	case modalityFunctional:
		c.Func += n
	}
}

// Max raises the counter for modality to n if n is larger.
func (c *Counts) Max(modality string, n int) {
	switch modality {
	case modalityAnat:
		c.Anat = max(c.Anat, n)
	case modalityDiffusion:
		c.Dwi = max(c.Dwi, n)
	case modalityFunctional:
		c.Func = max(c.Func, n)
	}
}

// SessionRecord is one ledger row.
type SessionRecord struct {
	Session         string
	AcquisitionTime string
	Folder          string
	Counts          Counts
	Backups         Counts
}

func (r SessionRecord) values() map[string]string {
	return map[string]string{
		ColumnSession:    r.Session,
		ColumnAcqTime:    r.AcquisitionTime,
		ColumnFolder:     r.Folder,
		ColumnAnat:       strconv.Itoa(r.Counts.Anat),
		ColumnDwi:        strconv.Itoa(r.Counts.Dwi),
		ColumnFunc:       strconv.Itoa(r.Counts.Func),
		ColumnBackupAnat: strconv.Itoa(r.Backups.Anat),
		ColumnBackupDwi:  strconv.Itoa(r.Backups.Dwi),
		ColumnBackupFunc: strconv.Itoa(r.Backups.Func),
	}
}

func recordFromValues(values map[string]string) (SessionRecord, error) {
	r := SessionRecord{
		Session:         values[ColumnSession],
		AcquisitionTime: values[ColumnAcqTime],
		Folder:          values[ColumnFolder],
	}
	ints := []struct {
		column string
		dst    *int
	}{
		{ColumnAnat, &r.Counts.Anat},
		{ColumnDwi, &r.Counts.Dwi},
		{ColumnFunc, &r.Counts.Func},
		{ColumnBackupAnat, &r.Backups.Anat},
		{ColumnBackupDwi, &r.Backups.Dwi},
		{ColumnBackupFunc, &r.Backups.Func},
	}
	for _, f := range ints {
		raw := values[f.column]
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return SessionRecord{}, fmt.Errorf("column %s: %w", f.column, err)
		}
		*f.dst = n
	}
	return r, nil
}
