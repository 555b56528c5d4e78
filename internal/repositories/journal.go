package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/desertthunder/witx/internal/models"
	"github.com/desertthunder/witx/internal/tasks"
)

var _ tasks.RunRecorder = (*RunJournal)(nil)

// RunJournal records one engine run into the journal tables.
//
// The engine calls it sequentially between phases, never from pool workers.
type RunJournal struct {
	runs    *RunRepository
	records *RecordMappingRepository
	links   *RelationLinkRepository

	mu  sync.Mutex
	run *models.MigrationRun
}

// NewRunJournal creates a journal writing to db.
func NewRunJournal(db *sql.DB) *RunJournal {
	return &RunJournal{
		runs:    NewRunRepository(db),
		records: NewRecordMappingRepository(db),
		links:   NewRelationLinkRepository(db),
	}
}

// Run returns the journaled run, or nil before Begin.
func (j *RunJournal) Run() *models.MigrationRun {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.run
}

func (j *RunJournal) Begin(_ context.Context, source, dest models.Endpoint, strategy string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	run := models.NewMigrationRun(0, source, dest, strategy)
	run.SetStatus(models.RunRunning)
	if err := j.runs.Create(run); err != nil {
		return err
	}
	j.run = run
	return nil
}

func (j *RunJournal) RecordCopy(_ context.Context, total int, report *tasks.CopyReport) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.run == nil {
		return fmt.Errorf("journal not started")
	}

	var errs []error
	for _, o := range report.Outcomes {
		if err := j.records.Create(o.Mapping(j.run.ID())); err != nil {
			errs = append(errs, fmt.Errorf("source #%d: %w", o.Source.ID, err))
		}
	}

	j.run.SetRecordsTotal(total)
	j.run.SetCopyCounts(report.Created, report.Failed)
	errs = append(errs, j.runs.Update(j.run))
	return errors.Join(errs...)
}

func (j *RunJournal) RecordLink(_ context.Context, report *tasks.LinkReport) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.run == nil {
		return fmt.Errorf("journal not started")
	}

	var errs []error
	for _, o := range report.Outcomes {
		if err := j.links.Create(o.Link(j.run.ID())); err != nil {
			errs = append(errs, fmt.Errorf("relation #%d -> #%d: %w", o.SourceID, o.TargetID, err))
		}
	}

	j.run.SetLinkCounts(len(report.Outcomes), report.Linked, report.Failed)
	errs = append(errs, j.runs.Update(j.run))
	return errors.Join(errs...)
}

// Finish derives the final status of the run. It is a no-op when Begin never succeeded.
func (j *RunJournal) Finish(_ context.Context, runErr error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.run == nil {
		return nil
	}
	j.run.Finish(runErr)
	return j.runs.Update(j.run)
}

// LoadReport loads a run, by sequence number or ID, with its record and relation entries.
func LoadReport(db *sql.DB, ref string) (*models.RunReport, error) {
	run, err := NewRunRepository(db).Find(ref)
	if err != nil {
		return nil, err
	}

	criteria := map[string]any{"run_id": run.ID()}
	records, err := NewRecordMappingRepository(db).List(criteria)
	if err != nil {
		return nil, err
	}
	links, err := NewRelationLinkRepository(db).List(criteria)
	if err != nil {
		return nil, err
	}

	return &models.RunReport{Run: run, Records: records, Links: links}, nil
}
