package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/witx/internal/models"
	"github.com/desertthunder/witx/internal/services"
	"github.com/desertthunder/witx/internal/shared"
	"github.com/desertthunder/witx/internal/wiql"
	"golang.org/x/time/rate"
)

// Link strategies
const (
	StrategyMapping = "mapping"
	StrategyLookup  = "lookup"
)

// Partial-success policies applied between Copy and Link
const (
	OnErrorAbort    = "abort"
	OnErrorContinue = "continue"
)

const (
	DefaultConcurrency = 8
	MaxConcurrency     = 64
	DefaultRateLimit   = 10.0
)

// EngineOpts configures a [MigrationEngine].
type EngineOpts struct {
	Concurrency  int         // Concurrent remote calls per phase (default: 8, max: 64)
	RateLimit    float64     // Remote calls per second (default: 10)
	LinkStrategy string      // mapping (default) or lookup
	OnError      string      // abort (default) or continue
	Recorder     RunRecorder // Optional run journal
	Logger       *log.Logger
}

// RunRecorder journals a run as it progresses.
//
// Errors are logged by the engine and never fail the run.
type RunRecorder interface {
	Begin(ctx context.Context, source, dest models.Endpoint, strategy string) error
	RecordCopy(ctx context.Context, total int, report *CopyReport) error
	RecordLink(ctx context.Context, report *LinkReport) error
	Finish(ctx context.Context, runErr error) error
}

// RunResult contains all data from a full migration run.
type RunResult struct {
	Source     models.Endpoint
	Dest       models.Endpoint
	Strategy   string
	Records    []models.WorkRecord // Fetched source batch
	Copy       *CopyReport
	Link       *LinkReport // nil when Link did not run
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// MigrationEngine copies work items between two tracker instances and rebuilds their hierarchy.
//
// One engine holds one client per instance and reuses it for every call in a run.
type MigrationEngine struct {
	source  services.Tracker
	dest    services.Tracker
	opts    EngineOpts
	logger  *log.Logger
	limiter *rate.Limiter
}

// NewMigrationEngine creates an engine between source and dest, normalizing opts.
func NewMigrationEngine(source, dest services.Tracker, opts EngineOpts) *MigrationEngine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Concurrency > MaxConcurrency {
		opts.Concurrency = MaxConcurrency
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.LinkStrategy == "" {
		opts.LinkStrategy = StrategyMapping
	}
	if opts.OnError == "" {
		opts.OnError = OnErrorAbort
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &MigrationEngine{
		source:  source,
		dest:    dest,
		opts:    opts,
		logger:  opts.Logger,
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Concurrency),
	}
}

// Opts returns the normalized options.
func (e *MigrationEngine) Opts() EngineOpts { return e.opts }

// sendProgress sends a per-unit progress update through the channel without blocking. It is dropped when the reader
// falls behind.
func (e *MigrationEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// sendPhase delivers a phase boundary update, blocking until it is read or ctx ends.
func (e *MigrationEngine) sendPhase(ctx context.Context, progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	case <-ctx.Done():
	}
}

// Fetch returns every record of project on the source instance.
func (e *MigrationEngine) Fetch(ctx context.Context, project string) ([]models.WorkRecord, error) {
	if e.source == nil {
		return nil, fmt.Errorf("%w: source tracker not initialized", shared.ErrServiceUnavailable)
	}
	if project == "" {
		return nil, fmt.Errorf("%w: source project", shared.ErrMissingArgument)
	}

	records, err := e.source.Query(ctx, wiql.ProjectQuery(project))
	if err != nil {
		return nil, err
	}

	e.logger.Info("fetched source records", "project", project, "count", len(records))
	return records, nil
}

// Run fetches sourceProject, copies it into destProject and links the copies.
//
// With [OnErrorAbort] a copy failure ends the run before Link. With [OnErrorContinue] Link runs for every relation
// whose endpoints were created. The returned result is never nil and holds whatever phases completed.
func (e *MigrationEngine) Run(ctx context.Context, sourceProject, destProject string, progress chan<- ProgressUpdate) (*RunResult, error) {
	result := &RunResult{
		Strategy:  e.opts.LinkStrategy,
		StartedAt: time.Now(),
	}
	if e.source != nil {
		result.Source = models.Endpoint{URL: e.source.Name(), Project: sourceProject}
	}
	if e.dest != nil {
		result.Dest = models.Endpoint{URL: e.dest.Name(), Project: destProject}
	}

	err := e.run(ctx, result, sourceProject, destProject, progress)
	result.Err = err
	result.FinishedAt = time.Now()

	e.journal("finish", func(rec RunRecorder) error { return rec.Finish(context.WithoutCancel(ctx), err) })
	if err == nil {
		e.sendPhase(ctx, progress, doneUpdate(result))
	}
	return result, err
}

func (e *MigrationEngine) run(ctx context.Context, result *RunResult, sourceProject, destProject string, progress chan<- ProgressUpdate) error {
	if e.source == nil || e.dest == nil {
		return fmt.Errorf("%w: source and destination trackers are required", shared.ErrServiceUnavailable)
	}
	if destProject == "" {
		return fmt.Errorf("%w: destination project", shared.ErrMissingArgument)
	}

	e.journal("begin", func(rec RunRecorder) error {
		return rec.Begin(ctx, result.Source, result.Dest, e.opts.LinkStrategy)
	})

	e.sendPhase(ctx, progress, queryingUpdate())
	records, err := e.Fetch(ctx, sourceProject)
	if err != nil {
		return err
	}
	result.Records = records
	e.sendPhase(ctx, progress, foundRecordsUpdate(len(records)))

	copyReport, copyErr := e.Copy(ctx, records, destProject, progress)
	result.Copy = copyReport
	e.journal("copy", func(rec RunRecorder) error { return rec.RecordCopy(ctx, len(records), copyReport) })

	if copyErr != nil && e.opts.OnError != OnErrorContinue {
		e.logger.Error("copy phase failed, skipping link phase", "failed", copyReport.Failed, "created", copyReport.Created)
		return copyErr
	}

	linkReport, linkErr := e.Link(ctx, records, copyReport, progress)
	result.Link = linkReport
	e.journal("link", func(rec RunRecorder) error { return rec.RecordLink(ctx, linkReport) })

	return errors.Join(copyErr, linkErr)
}

func (e *MigrationEngine) journal(step string, fn func(RunRecorder) error) {
	if e.opts.Recorder == nil {
		return
	}
	if err := fn(e.opts.Recorder); err != nil {
		e.logger.Warn("failed to journal run", "step", step, "error", err)
	}
}

// Report converts the result into a journal-shaped report for runID.
func (r *RunResult) Report(runID string) *models.RunReport {
	run := models.NewMigrationRun(0, r.Source, r.Dest, r.Strategy)
	run.SetID(runID)
	run.SetRecordsTotal(len(r.Records))

	report := &models.RunReport{Run: run}
	if r.Copy != nil {
		run.SetCopyCounts(r.Copy.Created, r.Copy.Failed)
		for _, o := range r.Copy.Outcomes {
			report.Records = append(report.Records, o.Mapping(runID))
		}
	}
	if r.Link != nil {
		run.SetLinkCounts(len(r.Link.Outcomes), r.Link.Linked, r.Link.Failed)
		for _, o := range r.Link.Outcomes {
			report.Links = append(report.Links, o.Link(runID))
		}
	}
	run.Finish(r.Err)
	return report
}

// Summary renders the phase counts of the run as display lines.
func (r *RunResult) Summary() []string {
	lines := []string{
		fmt.Sprintf("Source: %s (%s)", r.Source.Project, r.Source.URL),
		fmt.Sprintf("Destination: %s (%s)", r.Dest.Project, r.Dest.URL),
	}

	if r.Copy != nil {
		lines = append(lines, fmt.Sprintf("Copied %d of %d work items (%d failed)", r.Copy.Created, len(r.Records), r.Copy.Failed))
	}
	if r.Link != nil {
		lines = append(lines, fmt.Sprintf("Linked %d of %d relations (%d failed, %d skipped)",
			r.Link.Linked, len(r.Link.Outcomes), r.Link.Failed, r.Link.Skipped))
	} else if r.Copy != nil {
		lines = append(lines, "Linking skipped")
	}

	lines = append(lines, fmt.Sprintf("Finished in %s", r.Duration().Round(time.Millisecond)))
	return lines
}

// Duration is the wall time of the run.
func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
