package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/desertthunder/witx/internal/models"
	"github.com/desertthunder/witx/internal/services"
	"github.com/desertthunder/witx/internal/shared"
	"github.com/desertthunder/witx/internal/wiql"
)

// Resolver maps a source record to the handle of its destination copy.
type Resolver interface {
	Resolve(ctx context.Context, rec models.WorkRecord) (models.Handle, error)
}

// MappingResolver resolves through the id map built by Copy.
type MappingResolver struct {
	IDs *IDMap
}

func (r MappingResolver) Resolve(_ context.Context, rec models.WorkRecord) (models.Handle, error) {
	if r.IDs != nil {
		if h, ok := r.IDs.Get(rec.ID); ok {
			return h, nil
		}
	}
	return models.Handle{}, fmt.Errorf("%w: source #%d has no destination copy", shared.ErrSkippedEndpoint, rec.ID)
}

// LookupResolver resolves by querying the destination for the record's title and type.
type LookupResolver struct {
	Dest services.Tracker
}

func (r LookupResolver) Resolve(ctx context.Context, rec models.WorkRecord) (models.Handle, error) {
	return FindByTitleAndType(ctx, r.Dest, rec.Title(), rec.Type)
}

// FindByTitleAndType returns the single record of dest with the exact title and type.
//
// Zero or several matches fail with [shared.ErrAmbiguousLookup].
func FindByTitleAndType(ctx context.Context, dest services.Tracker, title, recordType string) (models.Handle, error) {
	records, err := dest.Query(ctx, wiql.TitleTypeQuery(title, recordType))
	if err != nil {
		return models.Handle{}, err
	}
	if len(records) != 1 {
		return models.Handle{}, fmt.Errorf("%w: %d records titled %q of type %q", shared.ErrAmbiguousLookup, len(records), title, recordType)
	}

	rec := records[0]
	project, _ := rec.FieldString(models.FieldTeamProject)
	return models.Handle{ID: rec.ID, URL: rec.URL, Project: project, Type: rec.Type, Title: rec.Title()}, nil
}

// LinkOutcome is the result of recreating one forward relation.
type LinkOutcome struct {
	SourceID int
	TargetID int
	Relation models.Relation
	From     *models.Handle
	To       *models.Handle
	Err      error
}

func (o LinkOutcome) Linked() bool { return o.Err == nil }

// Skipped reports whether an endpoint had no destination copy and no remote call was made.
func (o LinkOutcome) Skipped() bool { return errors.Is(o.Err, shared.ErrSkippedEndpoint) }

// Link converts the outcome to a journal entry.
func (o LinkOutcome) Link(runID string) *models.RelationLink {
	l := models.NewRelationLink(runID, o.SourceID, o.TargetID)
	if o.From != nil {
		l.FromDest = o.From.ID
	}
	if o.To != nil {
		l.ToDest = o.To.ID
	}
	switch {
	case o.Linked():
		l.Status = models.StatusLinked
	case o.Skipped():
		l.Status = models.StatusSkipped
		l.Error = o.Err.Error()
	default:
		l.Error = o.Err.Error()
	}
	return l
}

// LinkReport aggregates a link phase. Skipped relations count as failed.
type LinkReport struct {
	Outcomes []LinkOutcome
	Linked   int
	Failed   int
	Skipped  int
}

type linkUnit struct {
	owner  models.WorkRecord
	target *models.WorkRecord
	rel    models.Relation
	outc   LinkOutcome
}

// planLinks expands the forward relations of records into link units.
//
// Relations whose target cannot be parsed or is absent from records fail with [shared.ErrDanglingRelation].
func planLinks(records []models.WorkRecord) []linkUnit {
	batch := make(map[int]*models.WorkRecord, len(records))
	for i := range records {
		batch[records[i].ID] = &records[i]
	}

	var units []linkUnit
	for _, rec := range records {
		for _, rel := range rec.ForwardRelations() {
			u := linkUnit{owner: rec, rel: rel, outc: LinkOutcome{SourceID: rec.ID, Relation: rel}}

			targetID, err := rel.TargetID()
			if err != nil {
				u.outc.Err = fmt.Errorf("%w: #%d: %v", shared.ErrDanglingRelation, rec.ID, err)
			} else if target, ok := batch[targetID]; !ok {
				u.outc.TargetID = targetID
				u.outc.Err = fmt.Errorf("%w: #%d references #%d outside the fetched batch", shared.ErrDanglingRelation, rec.ID, targetID)
			} else {
				u.outc.TargetID = targetID
				u.target = target
			}
			units = append(units, u)
		}
	}
	return units
}

// resolver returns the configured [Resolver] for a copy report.
func (e *MigrationEngine) resolver(report *CopyReport) Resolver {
	if e.opts.LinkStrategy == StrategyLookup {
		return LookupResolver{Dest: e.dest}
	}
	if report == nil {
		return MappingResolver{}
	}
	return MappingResolver{IDs: report.IDMap}
}

// Link recreates every forward relation of records between their destination copies, concurrently.
//
// Only forward hierarchy relations are acted upon. When copyReport is given, relations with an endpoint whose copy
// failed are skipped without a remote call. The error joins every failed unit.
func (e *MigrationEngine) Link(ctx context.Context, records []models.WorkRecord, copyReport *CopyReport, progress chan<- ProgressUpdate) (*LinkReport, error) {
	units := planLinks(records)
	report := &LinkReport{Outcomes: make([]LinkOutcome, len(units))}
	if e.dest == nil {
		return report, fmt.Errorf("%w: destination tracker not initialized", shared.ErrServiceUnavailable)
	}

	total := len(units)
	e.sendPhase(ctx, progress, linkStartedUpdate(total))
	e.logger.Info("link started", "relations", total, "strategy", e.opts.LinkStrategy)

	notCreated := map[int]bool{}
	if copyReport != nil {
		for _, o := range copyReport.Outcomes {
			if !o.Created() {
				notCreated[o.Source.ID] = true
			}
		}
	}

	var (
		done    atomic.Int32
		pending []int
	)
	for i, u := range units {
		switch {
		case u.outc.Err != nil:
		case notCreated[u.owner.ID]:
			u.outc.Err = fmt.Errorf("%w: owner #%d was not copied", shared.ErrSkippedEndpoint, u.owner.ID)
		case notCreated[u.target.ID]:
			u.outc.Err = fmt.Errorf("%w: target #%d was not copied", shared.ErrSkippedEndpoint, u.target.ID)
		default:
			pending = append(pending, i)
			continue
		}
		report.Outcomes[i] = u.outc
		e.logger.Warn("relation not linked", "source_id", u.outc.SourceID, "target_id", u.outc.TargetID, "error", u.outc.Err)
		e.sendProgress(progress, linkRelationUpdate(int(done.Add(1)), total, u.outc))
	}

	resolver := e.resolver(copyReport)
	errs := e.runPool(ctx, len(pending), func(ctx context.Context, j int) error {
		u := units[pending[j]]
		o := e.linkOne(ctx, resolver, u)
		report.Outcomes[pending[j]] = o
		e.sendProgress(progress, linkRelationUpdate(int(done.Add(1)), total, o))
		return o.Err
	})
	for j, err := range errs {
		i := pending[j]
		if err != nil && report.Outcomes[i].Err == nil {
			report.Outcomes[i] = units[i].outc
			report.Outcomes[i].Err = err
		}
	}

	var failed []error
	for _, o := range report.Outcomes {
		switch {
		case o.Linked():
			report.Linked++
		case o.Skipped():
			report.Skipped++
			report.Failed++
			failed = append(failed, o.Err)
		default:
			report.Failed++
			failed = append(failed, o.Err)
		}
	}

	e.sendPhase(ctx, progress, linkFinishedUpdate(report))
	e.logger.Info("link finished", "linked", report.Linked, "failed", report.Failed, "skipped", report.Skipped)

	return report, errors.Join(failed...)
}

func (e *MigrationEngine) linkOne(ctx context.Context, resolver Resolver, u linkUnit) LinkOutcome {
	o := u.outc

	from, err := resolver.Resolve(ctx, u.owner)
	if err != nil {
		o.Err = fmt.Errorf("link #%d -> #%d: resolve owner: %w", o.SourceID, o.TargetID, err)
		return o
	}
	o.From = &from

	to, err := resolver.Resolve(ctx, *u.target)
	if err != nil {
		o.Err = fmt.Errorf("link #%d -> #%d: resolve target: %w", o.SourceID, o.TargetID, err)
		return o
	}
	o.To = &to

	if err := e.dest.AddRelation(ctx, from, to, models.RelationForward); err != nil {
		o.Err = fmt.Errorf("link #%d -> #%d: %w", o.SourceID, o.TargetID, err)
		return o
	}

	e.logger.Debug("relation linked", "source_id", o.SourceID, "target_id", o.TargetID, "from", from.ID, "to", to.ID)
	return o
}
