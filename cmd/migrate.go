package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/witx/internal/formatter"
	"github.com/desertthunder/witx/internal/models"
	"github.com/desertthunder/witx/internal/repositories"
	"github.com/desertthunder/witx/internal/shared"
	"github.com/desertthunder/witx/internal/tasks"
	"github.com/desertthunder/witx/internal/ui"
	"github.com/urfave/cli/v3"
)

// migration is a migration request with flags applied over the config.
type migration struct {
	source shared.EndpointConfig
	dest   shared.EndpointConfig
	engine shared.MigrationConfig
}

// resolveMigration overlays command flags on the configured endpoints and engine settings.
func (r *Runner) resolveMigration(cmd *cli.Command) migration {
	m := migration{
		source: r.config.Source,
		dest:   r.config.Destination,
		engine: r.config.Migration,
	}
	overlayEndpoint(cmd, "source", &m.source)
	overlayEndpoint(cmd, "dest", &m.dest)

	if cmd.IsSet("concurrency") {
		m.engine.Concurrency = int(cmd.Int("concurrency"))
	}
	if cmd.IsSet("rate-limit") {
		m.engine.RateLimit = cmd.Float("rate-limit")
	}
	if cmd.IsSet("link-strategy") {
		m.engine.LinkStrategy = cmd.String("link-strategy")
	}
	if cmd.IsSet("on-error") {
		m.engine.OnError = cmd.String("on-error")
	}
	if cmd.IsSet("max-retries") {
		m.engine.MaxRetries = int(cmd.Int("max-retries"))
	}
	return m
}

func overlayEndpoint(cmd *cli.Command, prefix string, e *shared.EndpointConfig) {
	for name, dst := range map[string]*string{
		prefix + "-url":     &e.URL,
		prefix + "-project": &e.Project,
		prefix + "-token":   &e.Token,
		prefix + "-auth":    &e.Auth,
	} {
		if cmd.IsSet(name) {
			*dst = cmd.String(name)
		}
	}
}

func (m migration) answers() ui.Answers {
	return ui.Answers{
		SourceURL:     m.source.URL,
		SourceProject: m.source.Project,
		DestURL:       m.dest.URL,
		DestProject:   m.dest.Project,
	}
}

func (m migration) withAnswers(a ui.Answers) migration {
	m.source.URL, m.source.Project = a.SourceURL, a.SourceProject
	m.dest.URL, m.dest.Project = a.DestURL, a.DestProject
	return m
}

// validate checks the endpoints and engine settings before anything is contacted.
func (m migration) validate() error {
	a := m.answers()
	for i, v := range []string{a.SourceURL, a.SourceProject, a.DestURL, a.DestProject} {
		if err := ui.ValidateField(i, v); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrMissingArgument, err)
		}
	}

	cfg := shared.DefaultConfig()
	cfg.Migration = m.engine
	if err := cfg.Validate(); err != nil {
		return err
	}
	return nil
}

// migrate connects to both instances and runs the engine, journaling the run when the database is enabled.
//
// The returned run is nil when nothing was journaled.
func (r *Runner) migrate(ctx context.Context, m migration, progress chan<- tasks.ProgressUpdate) (*tasks.RunResult, *models.MigrationRun, error) {
	notify(ctx, progress, "Connecting to "+m.source.URL)
	source, err := r.trackerFactory(ctx, m.source, m.engine, r.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("source: %w", err)
	}

	notify(ctx, progress, "Connecting to "+m.dest.URL)
	dest, err := r.trackerFactory(ctx, m.dest, m.engine, r.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("destination: %w", err)
	}

	opts := tasks.EngineOpts{
		Concurrency:  m.engine.Concurrency,
		RateLimit:    m.engine.RateLimit,
		LinkStrategy: m.engine.LinkStrategy,
		OnError:      m.engine.OnError,
		Logger:       r.logger,
	}

	var journal *repositories.RunJournal
	if r.config.Database.Enabled {
		if db, err := r.journal(); err != nil {
			r.logger.Warn("run journal unavailable, continuing without it", "error", err)
		} else {
			journal = repositories.NewRunJournal(db)
			opts.Recorder = journal
		}
	}

	r.logger.Info("starting migration",
		"source", m.source.URL, "source_project", m.source.Project,
		"dest", m.dest.URL, "dest_project", m.dest.Project,
		"strategy", opts.LinkStrategy, "concurrency", opts.Concurrency)

	result, err := tasks.NewMigrationEngine(source, dest, opts).Run(ctx, m.source.Project, m.dest.Project, progress)

	var run *models.MigrationRun
	if journal != nil {
		run = journal.Run()
	}
	return result, run, err
}

// notify sends a connection message, blocking until it is read or ctx ends like the engine's phase updates.
func notify(ctx context.Context, progress chan<- tasks.ProgressUpdate, msg string) {
	if progress == nil {
		return
	}
	select {
	case progress <- tasks.ProgressUpdate{Phase: tasks.FetchPhase, Message: msg}:
	case <-ctx.Done():
	}
}

// runWithProgress runs a migration, printing progress lines as they arrive.
//
// Phase lines are always printed. Per-record and per-relation lines are dropped when output falls behind.
func (r *Runner) runWithProgress(ctx context.Context, m migration) (*tasks.RunResult, *models.MigrationRun, error) {
	progress := make(chan tasks.ProgressUpdate, 256)
	printed := make(chan struct{})

	go func() {
		defer close(printed)
		for update := range progress {
			switch update.Data.(type) {
			case tasks.CopyOutcome, tasks.LinkOutcome:
				r.writePlain("   %s\n", update.Message)
			default:
				if update.Phase != tasks.DonePhase {
					r.writePlain("%s\n", update.Message)
				}
			}
		}
	}()

	result, run, err := r.migrate(ctx, m, progress)
	close(progress)
	<-printed
	return result, run, err
}

func (r *Runner) printSummary(result *tasks.RunResult, run *models.MigrationRun, err error) {
	r.writePlain("\n")
	r.writePlainHeader("Migration Summary")
	if result != nil {
		for _, line := range result.Summary() {
			r.writePlain("%s\n", line)
		}
	}
	if run != nil {
		r.writePlain("Journaled as run %d (%s)\n", run.Sequence(), run.Status())
	}

	if err != nil {
		r.writePlain("\nMigration finished with errors: %v\n", err)
		return
	}
	r.writePlain("\nLive long and prosper!\n")
}

// writeReport writes the report requested by --report, preferring the journaled copy of the run.
func (r *Runner) writeReport(cmd *cli.Command, result *tasks.RunResult, run *models.MigrationRun) error {
	path := cmd.String("report")
	if path == "" || result == nil {
		return nil
	}

	format, err := formatter.ParseFormat(cmd.String("format"), path)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	var report *models.RunReport
	if run != nil {
		if db, err := r.journal(); err == nil {
			report, err = repositories.LoadReport(db, run.ID())
			if err != nil {
				r.logger.Warn("failed to load journaled run, reporting from memory", "error", err)
			}
		}
	}
	if report == nil {
		report = result.Report(shared.GenerateID())
	}

	if err := formatter.WriteReport(report, format, path); err != nil {
		return err
	}
	r.logger.Info("report written", "path", path, "format", format)
	r.writePlain("Report written to %s\n", path)
	return nil
}

// MigrateRun runs a migration from flags and config without prompting.
func (r *Runner) MigrateRun(ctx context.Context, cmd *cli.Command) error {
	m := r.resolveMigration(cmd)
	if err := m.validate(); err != nil {
		return err
	}

	result, run, err := r.runWithProgress(ctx, m)
	r.printSummary(result, run, err)

	if reportErr := r.writeReport(cmd, result, run); reportErr != nil {
		r.logger.Error("failed to write report", "error", reportErr)
		err = errors.Join(err, reportErr)
	}
	return err
}

// MigrateInteractive prompts for the four endpoints in order, then runs a migration.
//
// A terminal gets the full-screen view; otherwise prompts are read line by line from input.
func (r *Runner) MigrateInteractive(ctx context.Context, cmd *cli.Command) error {
	m := r.resolveMigration(cmd)
	if r.isTerminal() {
		return r.interactiveTUI(ctx, cmd, m)
	}
	return r.interactiveLines(ctx, cmd, m)
}

func (r *Runner) interactiveLines(ctx context.Context, cmd *cli.Command, m migration) error {
	prompter := newLinePrompter(bufio.NewReader(r.input), r.output)

	answers, err := prompter.askAll(m.answers())
	if err != nil {
		return err
	}

	m = m.withAnswers(answers)
	if err := m.validate(); err != nil {
		return err
	}

	result, run, err := r.runWithProgress(ctx, m)
	r.printSummary(result, run, err)

	if reportErr := r.writeReport(cmd, result, run); reportErr != nil {
		r.logger.Error("failed to write report", "error", reportErr)
		err = errors.Join(err, reportErr)
	}

	r.writePlain("Press 'enter' to close\n")
	if waitErr := prompter.waitForEnter(); waitErr != nil {
		r.logger.Debug("no acknowledgement read", "error", waitErr)
	}
	return err
}

func (r *Runner) interactiveTUI(ctx context.Context, cmd *cli.Command, m migration) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(filepath.Join("tmp", "witx-tui.log"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var journaled *models.MigrationRun
	run := func(ctx context.Context, a ui.Answers, progress chan<- tasks.ProgressUpdate) (*tasks.RunResult, error) {
		mm := m.withAnswers(a)
		if err := mm.validate(); err != nil {
			return nil, err
		}
		result, jr, err := r.migrate(ctx, mm, progress)
		journaled = jr
		return result, err
	}

	final, err := tea.NewProgram(ui.NewModel(ctx, m.answers(), run), tea.WithContext(ctx)).Run()
	if err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	model, ok := final.(*ui.Model)
	if !ok {
		return fmt.Errorf("unexpected TUI model %T", final)
	}
	if model.Aborted() {
		r.logger.Info("interactive migration cancelled")
		return nil
	}

	result, runErr := model.Result()
	if reportErr := r.writeReport(cmd, result, journaled); reportErr != nil {
		r.logger.Error("failed to write report", "error", reportErr)
		runErr = errors.Join(runErr, reportErr)
	}
	return runErr
}
