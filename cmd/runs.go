package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/witx/internal/formatter"
	"github.com/desertthunder/witx/internal/models"
	"github.com/desertthunder/witx/internal/repositories"
	"github.com/desertthunder/witx/internal/shared"
	"github.com/urfave/cli/v3"
)

// runSummary is the JSON shape of one journaled run in `runs list`.
type runSummary struct {
	ID            string     `json:"id"`
	Sequence      int        `json:"sequence"`
	Status        string     `json:"status"`
	SourceURL     string     `json:"source_url"`
	SourceProject string     `json:"source_project"`
	DestURL       string     `json:"dest_url"`
	DestProject   string     `json:"dest_project"`
	LinkStrategy  string     `json:"link_strategy"`
	RecordsTotal  int        `json:"records_total"`
	RecordsCopied int        `json:"records_copied"`
	RecordsFailed int        `json:"records_failed"`
	LinksTotal    int        `json:"links_total"`
	LinksCreated  int        `json:"links_created"`
	LinksFailed   int        `json:"links_failed"`
	Error         string     `json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func summarize(run *models.MigrationRun) runSummary {
	return runSummary{
		ID:            run.ID(),
		Sequence:      run.Sequence(),
		Status:        string(run.Status()),
		SourceURL:     run.Source().URL,
		SourceProject: run.Source().Project,
		DestURL:       run.Dest().URL,
		DestProject:   run.Dest().Project,
		LinkStrategy:  run.LinkStrategy(),
		RecordsTotal:  run.RecordsTotal(),
		RecordsCopied: run.RecordsCopied(),
		RecordsFailed: run.RecordsFailed(),
		LinksTotal:    run.LinksTotal(),
		LinksCreated:  run.LinksCreated(),
		LinksFailed:   run.LinksFailed(),
		Error:         run.ErrorMessage(),
		StartedAt:     run.StartedAt(),
		CompletedAt:   run.CompletedAt(),
	}
}

// RunsList prints journaled runs, newest first.
func (r *Runner) RunsList(ctx context.Context, cmd *cli.Command) error {
	db, err := r.journal()
	if err != nil {
		return err
	}

	criteria := map[string]any{"limit": int(cmd.Int("limit"))}
	if status := cmd.String("status"); status != "" {
		criteria["status"] = status
	}

	runs, err := repositories.NewRunRepository(db).List(criteria)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		summaries := make([]runSummary, 0, len(runs))
		for _, run := range runs {
			summaries = append(summaries, summarize(run))
		}
		return r.writeJSON(summaries, true)
	}

	if len(runs) == 0 {
		r.writePlain("No runs found\n")
		return nil
	}

	r.writePlainHeader("Migration runs")
	for _, run := range runs {
		r.writePlain("#%-4d %-10s %s -> %s  records %d/%d  relations %d/%d  %s\n",
			run.Sequence(), run.Status(),
			run.Source().Project, run.Dest().Project,
			run.RecordsCopied(), run.RecordsTotal(),
			run.LinksCreated(), run.LinksTotal(),
			run.StartedAt().Local().Format(time.DateTime))
	}
	return nil
}

func (r *Runner) loadReport(cmd *cli.Command) (*models.RunReport, error) {
	ref := cmd.StringArg("run")
	if ref == "" {
		return nil, fmt.Errorf("%w: run sequence number or ID", shared.ErrMissingArgument)
	}

	db, err := r.journal()
	if err != nil {
		return nil, err
	}
	return repositories.LoadReport(db, ref)
}

// RunsShow prints one run with its records and relations.
func (r *Runner) RunsShow(ctx context.Context, cmd *cli.Command) error {
	report, err := r.loadReport(cmd)
	if err != nil {
		return err
	}

	var data []byte
	if cmd.Bool("json") {
		data, err = formatter.ExportToJSON(report)
	} else {
		data, err = formatter.ExportToMarkdown(report)
	}
	if err != nil {
		return err
	}

	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// RunsExport writes one run as a report file.
func (r *Runner) RunsExport(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("output")
	if path == "" {
		return fmt.Errorf("%w: --output", shared.ErrMissingArgument)
	}

	format, err := formatter.ParseFormat(cmd.String("format"), path)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	report, err := r.loadReport(cmd)
	if err != nil {
		return err
	}

	if err := formatter.WriteReport(report, format, path); err != nil {
		return err
	}

	r.logger.Info("exported run", "run", report.Run.Sequence(), "path", path, "format", format)
	r.writePlain("Exported run %d to %s\n", report.Run.Sequence(), path)
	return nil
}
