package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/witx/internal/shared"
	"github.com/urfave/cli/v3"
)

const version = "0.1.0"

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(runner).Run(ctx, os.Args); err != nil {
		stop()
		logger.Fatalf("application error: %v", err)
	}
}

// newApp builds the root command. Running it without a subcommand starts the interactive migration, so it accepts
// the same migration flags as `migrate interactive`.
func newApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "witx",
		Usage:   "Copy work items and their hierarchy between Azure DevOps / TFS projects",
		Version: version,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
				Sources: cli.EnvVars("WITX_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		}, localFlags(migrationFlags())...),
		Before:   r.Before,
		After:    r.After,
		Action:   r.MigrateInteractive,
		Commands: r.register(),
	}
}
