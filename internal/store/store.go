package store

import (
	"context"
	"time"
)

// Store defines the persistence layer interface for sensor runs and the
// triage queue built from scored diffs.
type Store interface {
	// Run management
	CreateRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, runID string) (Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Diff persistence
	SaveDiff(ctx context.Context, record DiffRecord) error
	GetDiff(ctx context.Context, diffID string) (DiffRecord, error)

	// Triage queue. An empty note keeps the existing one.
	ListQueue(ctx context.Context, state TriageState, limit int) ([]DiffRecord, error)
	SetTriageState(ctx context.Context, diffID string, state TriageState, note string) error

	// Utility
	Close() error
}

// TriageState tracks where a scored diff sits in the analyst workflow.
type TriageState string

const (
	TriagePending    TriageState = "pending"
	TriageInProgress TriageState = "in_progress"
	TriageAccepted   TriageState = "accepted"
	TriageDenied     TriageState = "denied"
)

// Valid reports whether s is one of the known triage states.
func (s TriageState) Valid() bool {
	switch s {
	case TriagePending, TriageInProgress, TriageAccepted, TriageDenied:
		return true
	}
	return false
}

// Run represents a single sensor execution. Seed is the deterministic
// sampling seed for the build triple, recorded so a collaborator can
// reproduce any sampling over the stored bundle.
type Run struct {
	RunID      string
	Timestamp  time.Time
	BuildFrom  string
	BuildTo    string
	Component  string
	ConfigHash string
	Seed       int64
}

// DiffRecord stores a scored diff together with its serialized evidence
// bundle and score result. The JSON columns hold the exact artifacts the
// pipeline emitted, so a stored diff can be re-reported without rerunning
// extraction.
type DiffRecord struct {
	DiffID         string
	RunID          string
	BuildFrom      string
	BuildTo        string
	Component      string
	TotalScore     float64
	RuleSetVersion string
	TriageState    TriageState
	TriageNote     string
	BundleJSON     []byte
	ScoreJSON      []byte
	CreatedAt      time.Time
}
