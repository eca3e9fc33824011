package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"bidsort/internal/logging"
	"bidsort/internal/services"
)

const lockRetryDelay = 50 * time.Millisecond

// Table is the raw ledger contents. Columns beyond the required set are
// preserved on rewrite.
type Table struct {
	Header []string
	Rows   [][]string
}

// Records decodes every row of the table.
func (t Table) Records() ([]SessionRecord, error) {
	records := make([]SessionRecord, 0, len(t.Rows))
	for i, row := range t.Rows {
		values := make(map[string]string, len(t.Header))
		for j, column := range t.Header {
			if j < len(row) {
				values[column] = row[j]
			}
		}
		rec, err := recordFromValues(values)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (t *Table) ensureColumns() {
	present := make(map[string]bool, len(t.Header))
	for _, c := range t.Header {
		present[c] = true
	}
	for _, c := range Columns {
		if !present[c] {
			t.Header = append(t.Header, c)
		}
	}
}

func (t *Table) append(rec SessionRecord) {
	values := rec.values()
	row := make([]string, len(t.Header))
	for i, column := range t.Header {
		row[i] = values[column]
	}
	t.Rows = append(t.Rows, row)
}

// Read loads a ledger. A missing file yields an empty table with the
// required columns.
func Read(path string) (Table, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Table{Header: append([]string(nil), Columns...)}, nil
		}
		return Table{}, err
	}
	defer file.Close()
	return decode(file)
}

func decode(r io.Reader) (Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("parse ledger: %w", err)
	}
	if len(rows) == 0 {
		return Table{Header: append([]string(nil), Columns...)}, nil
	}
	t := Table{Header: rows[0], Rows: rows[1:]}
	t.ensureColumns()
	return t, nil
}

// Ledger commits session records. A single Ledger should be shared by all
// workers of a run.
type Ledger struct {
	locks  sync.Map
	logger *slog.Logger
}

// New returns a ledger writer.
func New(logger *slog.Logger) *Ledger {
	return &Ledger{logger: logging.NewComponentLogger(logger, "ledger")}
}

func (l *Ledger) pathLock(path string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(path, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Append adds rec to the ledger at path, creating it when absent. The
// read-modify-write either replaces the file completely or leaves it
// untouched.
func (l *Ledger) Append(ctx context.Context, path string, rec SessionRecord) error {
	mu := l.pathLock(path)
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "ledger", "create subject folder", path, err)
	}
	fileLock := flock.New(path + ".lock")
	locked, err := fileLock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return services.Wrap(services.ErrTransient, "ledger", "lock", path, err)
	}
	if !locked {
		return services.Wrap(services.ErrTransient, "ledger", "lock", fmt.Sprintf("could not lock %s", path), nil)
	}
	defer func() {
		_ = fileLock.Unlock()
	}()

	table, err := Read(path)
	if err != nil {
		return services.Wrap(services.ErrValidation, "ledger", "read", path, err)
	}
	table.append(rec)
	if err := writeAtomic(path, table); err != nil {
		return services.Wrap(services.ErrTransient, "ledger", "write", path, err)
	}
	l.logger.Info("ledger row appended",
		logging.String("ledger", path),
		logging.String("session", rec.Session),
		logging.String("source_folder", rec.Folder),
		logging.Int("rows", len(table.Rows)),
	)
	return nil
}

func writeAtomic(path string, t Table) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	w := csv.NewWriter(tmp)
	w.Comma = '\t'
	if err := w.Write(t.Header); err != nil {
		return err
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}

// CheckQuota fails with services.ErrQuotaViolation when the record holds
// fewer anatomical acquisitions than minAnatomical.
func CheckQuota(rec SessionRecord, minAnatomical int) error {
	if rec.Counts.Anat >= minAnatomical {
		return nil
	}
	return services.Wrap(
		services.ErrQuotaViolation,
		"ledger",
		"quota",
		fmt.Sprintf("session %s from %s has %d anatomical acquisitions, %d required", rec.Session, rec.Folder, rec.Counts.Anat, minAnatomical),
		nil,
	)
}
