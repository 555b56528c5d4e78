package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/witx/internal/shared"
	"github.com/desertthunder/witx/internal/tasks"
	"github.com/desertthunder/witx/internal/ui"
	"github.com/urfave/cli/v3"
)

// RecordsList fetches the source project and prints what a migration would copy.
func (r *Runner) RecordsList(ctx context.Context, cmd *cli.Command) error {
	endpoint := r.config.Source
	overlayEndpoint(cmd, "source", &endpoint)

	if err := ui.ValidateField(ui.SourceURLField, endpoint.URL); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrMissingArgument, err)
	}
	if err := ui.ValidateField(ui.SourceProjectField, endpoint.Project); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrMissingArgument, err)
	}

	tracker, err := r.trackerFactory(ctx, endpoint, r.config.Migration, r.logger)
	if err != nil {
		return err
	}

	engine := tasks.NewMigrationEngine(tracker, nil, tasks.EngineOpts{Logger: r.logger})
	records, err := engine.Fetch(ctx, endpoint.Project)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(records, true)
	}

	r.writePlainHeader(fmt.Sprintf("Work items in %s", endpoint.Project))
	for _, rec := range records {
		line := fmt.Sprintf("#%-6d %-12s %s", rec.ID, rec.Type, rec.Title())
		if n := len(rec.ForwardRelations()); n > 0 {
			line += fmt.Sprintf(" (%d children)", n)
		}
		r.writePlain("%s\n", line)
	}
	r.writePlain("\nTotal: %d work items\n", len(records))
	return nil
}
