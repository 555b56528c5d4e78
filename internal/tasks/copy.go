package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/desertthunder/witx/internal/models"
	"github.com/desertthunder/witx/internal/shared"
)

// TransferFields is the allow-list of fields carried over to the destination.
var TransferFields = []string{
	models.FieldTitle,
	models.FieldDescription,
	models.FieldRemainingWork,
}

// tagSources are joined, in order, into the destination tag field.
var tagSources = []string{
	models.FieldAssignedTo,
	models.FieldIterationPath,
}

// CopyOutcome is the result of copying one source record.
type CopyOutcome struct {
	Source models.WorkRecord
	Dest   *models.Handle // nil unless created
	Err    error
}

func (o CopyOutcome) Created() bool { return o.Err == nil && o.Dest != nil }

// Mapping converts the outcome to a journal entry.
func (o CopyOutcome) Mapping(runID string) *models.RecordMapping {
	m := models.NewRecordMapping(runID, o.Source)
	if o.Created() {
		m.Created(*o.Dest)
	} else if o.Err != nil {
		m.Error = o.Err.Error()
	}
	return m
}

// CopyReport aggregates a copy phase.
type CopyReport struct {
	Outcomes []CopyOutcome // One per input record, in input order
	Created  int
	Failed   int
	IDMap    *IDMap
}

// Outcome returns the outcome for a source record id.
func (r *CopyReport) Outcome(sourceID int) (CopyOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Source.ID == sourceID {
			return o, true
		}
	}
	return CopyOutcome{}, false
}

// SelectFields returns the allow-listed fields present on rec. Absent or null fields are omitted.
func SelectFields(rec models.WorkRecord) map[string]any {
	out := make(map[string]any, len(TransferFields))
	for _, name := range TransferFields {
		if v, ok := rec.Fields[name]; ok && v != nil {
			out[name] = v
		}
	}
	return out
}

// DeriveTags joins the present assignee and iteration path with ";".
func DeriveTags(rec models.WorkRecord) (string, bool) {
	var parts []string
	for _, name := range tagSources {
		if s, ok := rec.FieldString(name); ok && s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, ";"), true
}

// BuildCreateFields returns the initial field set of the destination copy of rec.
func BuildCreateFields(rec models.WorkRecord) map[string]any {
	fields := SelectFields(rec)
	if tags, ok := DeriveTags(rec); ok {
		fields[models.FieldTags] = tags
	}
	return fields
}

// Copy creates one destination record in project for every record, concurrently.
//
// Every unit runs to completion. The report holds one outcome per record and the id map of created copies; the
// error joins every failed unit and is nil when all succeeded.
func (e *MigrationEngine) Copy(ctx context.Context, records []models.WorkRecord, project string, progress chan<- ProgressUpdate) (*CopyReport, error) {
	report := &CopyReport{
		Outcomes: make([]CopyOutcome, len(records)),
		IDMap:    NewIDMap(),
	}
	if e.dest == nil {
		return report, fmt.Errorf("%w: destination tracker not initialized", shared.ErrServiceUnavailable)
	}

	total := len(records)
	e.sendPhase(ctx, progress, copyStartedUpdate(total))
	e.logger.Info("copy started", "records", total, "project", project, "concurrency", e.opts.Concurrency)

	var done atomic.Int32
	errs := e.runPool(ctx, total, func(ctx context.Context, i int) error {
		rec := records[i]
		h, err := e.dest.Create(ctx, BuildCreateFields(rec), rec.Type, project)
		if err == nil && h == nil {
			err = fmt.Errorf("%w: no handle returned", shared.ErrRemoteWrite)
		}
		if err == nil {
			report.IDMap.Put(rec.ID, *h)
			report.Outcomes[i] = CopyOutcome{Source: rec, Dest: h}
			e.logger.Debug("record created", "source_id", rec.ID, "dest_id", h.ID, "type", rec.Type)
		} else {
			err = fmt.Errorf("copy %s #%d %q: %w", rec.Type, rec.ID, rec.Title(), err)
			e.logger.Warn("record not created", "source_id", rec.ID, "error", err)
		}

		e.sendProgress(progress, copyRecordUpdate(int(done.Add(1)), total, CopyOutcome{Source: rec, Dest: h, Err: err}))
		return err
	})

	for i, err := range errs {
		if err != nil {
			report.Outcomes[i] = CopyOutcome{Source: records[i], Err: err}
			report.Failed++
		} else {
			report.Created++
		}
	}

	e.sendPhase(ctx, progress, copyFinishedUpdate(report))
	e.logger.Info("copy finished", "created", report.Created, "failed", report.Failed)

	return report, errors.Join(errs...)
}
