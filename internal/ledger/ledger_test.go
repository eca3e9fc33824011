package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bidsort/internal/services"
)

func TestAppendCreatesLedgerWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub-PAT01", "sub-PAT01_sessions.tsv")
	rec := SessionRecord{
		Session:         "ses-acute",
		AcquisitionTime: "202305-14101500",
		Folder:          "FCS01A",
		Counts:          Counts{Anat: 2, Func: 1},
	}
	if err := New(nil).Append(context.Background(), path, rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	want := "session_id\tacq_time\tFOLDER\tanat\tdwi\tfunc\tBACKUP-anat\tBACKUP-dwi\tBACKUP-func\n" +
		"ses-acute\t202305-14101500\tFCS01A\t2\t0\t1\t0\t0\t0\n"
	if string(data) != want {
		t.Fatalf("ledger contents mismatch:\n%s", cmp.Diff(want, string(data)))
	}
}

func TestAppendIsMonotonic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub-PAT01_sessions.tsv")
	l := New(nil)
	var want []SessionRecord
	for i := 0; i < 4; i++ {
		rec := SessionRecord{
			Session:         fmt.Sprintf("ses-%d", i),
			AcquisitionTime: "202001-01",
			Folder:          fmt.Sprintf("F%d", i),
			Counts:          Counts{Anat: 2, Dwi: i},
			Backups:         Counts{Anat: i},
		}
		if err := l.Append(context.Background(), path, rec); err != nil {
			t.Fatalf("Append #%d: %v", i, err)
		}
		want = append(want, rec)
	}
	table, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	got, err := table.Records()
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendConcurrentWritersKeepEveryRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub-PAT01_sessions.tsv")
	l := New(nil)
	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- l.Append(context.Background(), path, SessionRecord{Session: "ses-x", Folder: fmt.Sprintf("F%02d", i)})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	table, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Rows) != n {
		t.Fatalf("expected %d rows, got %d", n, len(table.Rows))
	}
}

func TestAppendPreservesExtraColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub-PAT01_sessions.tsv")
	legacy := "session_id\tacq_time\tFOLDER\tanat\tdwi\tfunc\tnotes\n" +
		"ses-acute\t202001-01\tOLD\t2\t1\t0\tmanual fix\n"
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := New(nil).Append(context.Background(), path, SessionRecord{Session: "ses-acute", Folder: "NEW", Counts: Counts{Anat: 2}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	table, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	wantHeader := []string{"session_id", "acq_time", "FOLDER", "anat", "dwi", "func", "notes", "BACKUP-anat", "BACKUP-dwi", "BACKUP-func"}
	if diff := cmp.Diff(wantHeader, table.Header); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
	if got := strings.Join(table.Rows[0][:7], ","); got != "ses-acute,202001-01,OLD,2,1,0,manual fix" {
		t.Fatalf("first row altered: %s", got)
	}
	records, err := table.Records()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[1].Folder != "NEW" || records[0].Counts.Dwi != 1 {
		t.Fatalf("unexpected records %+v", records)
	}
}

func TestAppendLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub-PAT01_sessions.tsv")
	if err := New(nil).Append(context.Background(), path, SessionRecord{Session: "ses-a"}); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestReadMissingLedger(t *testing.T) {
	table, err := Read(filepath.Join(t.TempDir(), "absent.tsv"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if diff := cmp.Diff(Columns, table.Header); diff != "" || len(table.Rows) != 0 {
		t.Fatalf("unexpected empty table %+v", table)
	}
}

func TestCheckQuota(t *testing.T) {
	if err := CheckQuota(SessionRecord{Counts: Counts{Anat: 2}}, 2); err != nil {
		t.Fatalf("two anatomical acquisitions should satisfy the quota: %v", err)
	}
	err := CheckQuota(SessionRecord{Session: "ses-a", Folder: "F", Counts: Counts{Anat: 1, Func: 1}}, 2)
	if !errors.Is(err, services.ErrQuotaViolation) {
		t.Fatalf("expected ErrQuotaViolation, got %v", err)
	}
	if services.Classify(err) != services.OutcomeFatal {
		t.Fatal("quota violation must be fatal")
	}
}

func TestCountsAddAndMax(t *testing.T) {
	var c Counts
	c.Add("anat", 1)
	c.Add("anat", 1)
	c.Add("func", 1)
	c.Add("other", 5)
	c.Max("dwi", 2)
	c.Max("dwi", 1)
	if c != (Counts{Anat: 2, Dwi: 2, Func: 1}) {
		t.Fatalf("unexpected counts %+v", c)
	}
}
