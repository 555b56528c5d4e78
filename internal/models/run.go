package models

import (
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a [MigrationRun].
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// Outcome status values for journaled records and relations.
const (
	StatusCreated = "created"
	StatusLinked  = "linked"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Endpoint identifies a project on one backend instance.
type Endpoint struct {
	URL     string `json:"url"`
	Project string `json:"project"`
}

// MigrationRun is one journaled invocation of the transfer engine.
type MigrationRun struct {
	id            string
	sequence      int
	source        Endpoint
	dest          Endpoint
	linkStrategy  string
	status        RunStatus
	recordsTotal  int
	recordsCopied int
	recordsFailed int
	linksTotal    int
	linksCreated  int
	linksFailed   int
	errorMessage  string
	startedAt     time.Time
	completedAt   *time.Time
	createdAt     time.Time
	updatedAt     time.Time
}

// NewMigrationRun creates a pending run between two endpoints.
func NewMigrationRun(sequence int, source, dest Endpoint, linkStrategy string) *MigrationRun {
	now := time.Now()
	return &MigrationRun{
		sequence:     sequence,
		source:       source,
		dest:         dest,
		linkStrategy: linkStrategy,
		status:       RunPending,
		startedAt:    now,
		createdAt:    now,
		updatedAt:    now,
	}
}

func (m *MigrationRun) ID() string              { return m.id }
func (m *MigrationRun) Sequence() int           { return m.sequence }
func (m *MigrationRun) Source() Endpoint        { return m.source }
func (m *MigrationRun) Dest() Endpoint          { return m.dest }
func (m *MigrationRun) LinkStrategy() string    { return m.linkStrategy }
func (m *MigrationRun) Status() RunStatus       { return m.status }
func (m *MigrationRun) RecordsTotal() int       { return m.recordsTotal }
func (m *MigrationRun) RecordsCopied() int      { return m.recordsCopied }
func (m *MigrationRun) RecordsFailed() int      { return m.recordsFailed }
func (m *MigrationRun) LinksTotal() int         { return m.linksTotal }
func (m *MigrationRun) LinksCreated() int       { return m.linksCreated }
func (m *MigrationRun) LinksFailed() int        { return m.linksFailed }
func (m *MigrationRun) ErrorMessage() string    { return m.errorMessage }
func (m *MigrationRun) StartedAt() time.Time    { return m.startedAt }
func (m *MigrationRun) CompletedAt() *time.Time { return m.completedAt }
func (m *MigrationRun) CreatedAt() time.Time    { return m.createdAt }
func (m *MigrationRun) UpdatedAt() time.Time    { return m.updatedAt }

func (m *MigrationRun) SetID(id string)             { m.id = id }
func (m *MigrationRun) SetSequence(seq int)         { m.sequence = seq }
func (m *MigrationRun) SetStatus(s RunStatus)       { m.status = s }
func (m *MigrationRun) SetUpdatedAt(t time.Time)    { m.updatedAt = t }
func (m *MigrationRun) SetErrorMessage(msg string)  { m.errorMessage = msg }
func (m *MigrationRun) SetRecordsTotal(n int)       { m.recordsTotal = n }
func (m *MigrationRun) SetCompletedAt(t *time.Time) { m.completedAt = t }

// SetCopyCounts records the outcome of the copy phase.
func (m *MigrationRun) SetCopyCounts(copied, failed int) {
	m.recordsCopied = copied
	m.recordsFailed = failed
}

// SetLinkCounts records the outcome of the link phase.
func (m *MigrationRun) SetLinkCounts(total, created, failed int) {
	m.linksTotal = total
	m.linksCreated = created
	m.linksFailed = failed
}

// Finish marks the run complete and derives its final status from the counts and error.
func (m *MigrationRun) Finish(err error) {
	now := time.Now()
	m.completedAt = &now
	m.updatedAt = now

	switch {
	case err != nil && m.recordsCopied == 0:
		m.status = RunFailed
	case err != nil || m.recordsFailed > 0 || m.linksFailed > 0:
		m.status = RunPartial
	default:
		m.status = RunCompleted
	}

	if err != nil {
		m.errorMessage = err.Error()
	}
}

// Validate checks required fields.
func (m *MigrationRun) Validate() error {
	if m.source.URL == "" || m.source.Project == "" {
		return fmt.Errorf("source endpoint is required")
	}
	if m.dest.URL == "" || m.dest.Project == "" {
		return fmt.Errorf("destination endpoint is required")
	}
	switch m.status {
	case RunPending, RunRunning, RunCompleted, RunPartial, RunFailed:
	default:
		return fmt.Errorf("invalid run status %q", m.status)
	}
	return nil
}

// RestoreMigrationRun rebuilds a run from persisted columns.
func RestoreMigrationRun(
	id string, sequence int, source, dest Endpoint, linkStrategy string, status RunStatus,
	counts [6]int, errorMessage string, startedAt time.Time, completedAt *time.Time, createdAt, updatedAt time.Time,
) *MigrationRun {
	return &MigrationRun{
		id:            id,
		sequence:      sequence,
		source:        source,
		dest:          dest,
		linkStrategy:  linkStrategy,
		status:        status,
		recordsTotal:  counts[0],
		recordsCopied: counts[1],
		recordsFailed: counts[2],
		linksTotal:    counts[3],
		linksCreated:  counts[4],
		linksFailed:   counts[5],
		errorMessage:  errorMessage,
		startedAt:     startedAt,
		completedAt:   completedAt,
		createdAt:     createdAt,
		updatedAt:     updatedAt,
	}
}
