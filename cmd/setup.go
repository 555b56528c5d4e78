package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/witx/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file when missing, then initializes the run journal and applies its migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else {
			r.logger.Info("config file created", "path", configPath)
			if err := r.loadConfig(configPath, true); err != nil {
				r.logger.Warn("failed to load created config, using defaults", "error", err)
			}
			r.writePlain("✓ Config written to %s\n", configPath)
		}
	}

	r.logger.Info("initializing run journal", "path", r.config.Database.Path)
	db, err := r.journal()
	if err != nil {
		return err
	}

	state, err := shared.GetMigrationState(db)
	if err != nil {
		return err
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	r.writePlain("✓ Run journal ready at %s (schema version %d)\n", r.config.Database.Path, state.Current)
	return nil
}

// SetupStatus prints the applied and pending journal migrations.
func (r *Runner) SetupStatus(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	state, err := shared.GetMigrationState(db)
	if err != nil {
		return err
	}

	r.writePlainHeader("Run journal")
	r.writePlain("Database: %s\n", r.config.Database.Path)
	r.writePlain("Current version: %d\n", state.Current)
	r.writePlain("Latest version: %d\n", state.Latest)
	if len(state.Pending) == 0 {
		r.writePlain("Pending: none\n")
	} else {
		r.writePlain("Pending: %v\n", state.Pending)
	}
	return nil
}

// SetupRollback reverts the most recently applied journal migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	before, err := shared.GetMigrationState(db)
	if err != nil {
		return err
	}
	if before.Current == 0 {
		r.writePlain("Nothing to roll back\n")
		return nil
	}

	if err := shared.RollbackMigration(db); err != nil {
		return fmt.Errorf("failed to roll back migration %d: %w", before.Current, err)
	}

	r.logger.Info("rolled back journal migration", "version", before.Current)
	r.writePlain("✓ Rolled back migration %d\n", before.Current)
	return nil
}
