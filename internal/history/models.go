package history

import "time"

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	// RunPartial means at least one folder failed.
	RunPartial RunStatus = "partial"
	// RunAborted means the run stopped before visiting every folder.
	RunAborted RunStatus = "aborted"
)

// Outcome is the result of processing one source folder.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	// OutcomeQuota means the folder was persisted but violated the anatomical quota.
	OutcomeQuota Outcome = "quota"
)

// Run is one ingestion run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	InputDir   string
	OutputDir  string
	Status     RunStatus
	Folders    int
	Failed     int
}

// FolderOutcome is the recorded result of one source folder.
type FolderOutcome struct {
	RunID      string
	Folder     string
	Subject    string
	Session    string
	Outcome    Outcome
	Cause      string
	Message    string
	Anat       int
	Dwi        int
	Func       int
	BackupAnat int
	BackupDwi  int
	BackupFunc int
	Discarded  int
	RecordedAt time.Time
}

// IsFailure reports whether the folder needs operator attention.
func (o FolderOutcome) IsFailure() bool {
	return o.Outcome != OutcomeCompleted
}
