// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// endpointFlags describes one side of a migration. prefix is "source" or "dest".
func endpointFlags(prefix, label, tokenEnv string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  prefix + "-url",
			Usage: label + " collection or organization URL",
		},
		&cli.StringFlag{
			Name:  prefix + "-project",
			Usage: label + " project name",
		},
		&cli.StringFlag{
			Name:    prefix + "-token",
			Usage:   label + " personal access token or bearer token",
			Sources: cli.EnvVars(tokenEnv),
		},
		&cli.StringFlag{
			Name:  prefix + "-auth",
			Usage: label + " auth scheme (pat, bearer or none)",
		},
	}
}

// engineFlags override the [migration] section of the config.
func engineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "concurrency",
			Usage: "Concurrent remote calls per phase (1-64)",
		},
		&cli.FloatFlag{
			Name:  "rate-limit",
			Usage: "Remote calls per second",
		},
		&cli.StringFlag{
			Name:  "link-strategy",
			Usage: "How relation endpoints are resolved in the destination (mapping or lookup)",
		},
		&cli.StringFlag{
			Name:  "on-error",
			Usage: "What happens after copy failures (abort or continue)",
		},
		&cli.IntFlag{
			Name:  "max-retries",
			Usage: "Retries for transient remote failures",
		},
	}
}

func reportFlags(name string, aliases ...string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    name,
			Aliases: aliases,
			Usage:   "Write a run report to this path",
		},
		&cli.StringFlag{
			Name:  "format",
			Usage: "Report format (json, csv, markdown or xlsx); defaults to the file extension",
		},
	}
}

func migrationFlags() []cli.Flag {
	flags := endpointFlags("source", "Source", "WITX_SOURCE_TOKEN")
	flags = append(flags, endpointFlags("dest", "Destination", "WITX_DEST_TOKEN")...)
	flags = append(flags, engineFlags()...)
	return append(flags, reportFlags("report")...)
}

// localFlags keeps flags from being inherited by subcommands.
func localFlags(flags []cli.Flag) []cli.Flag {
	for _, f := range flags {
		switch f := f.(type) {
		case *cli.StringFlag:
			f.Local = true
		case *cli.IntFlag:
			f.Local = true
		case *cli.FloatFlag:
			f.Local = true
		case *cli.BoolFlag:
			f.Local = true
		}
	}
	return flags
}

// migrateCommand handles work item migrations
func migrateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Copy work items and rebuild their hierarchy in another project",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run a migration non-interactively from flags and config",
				Flags:  migrationFlags(),
				Action: r.MigrateRun,
			},
			{
				Name:    "interactive",
				Aliases: []string{"ui", "tui"},
				Usage:   "Prompt for endpoints, then run a migration",
				Flags:   migrationFlags(),
				Action:  r.MigrateInteractive,
			},
		},
	}
}

// recordsCommand previews source records
func recordsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "records",
		Usage: "Inspect work items on a tracker",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the work items a migration would copy",
				Flags: append(endpointFlags("source", "Source", "WITX_SOURCE_TOKEN"),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				),
				Action: r.RecordsList,
			},
		},
	}
}

// runsCommand reads the run journal
func runsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Inspect journaled migration runs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List runs, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of runs to return",
						Value: 20,
					},
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only runs with this status (running, completed, partial, failed)",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.RunsList,
			},
			{
				Name:  "show",
				Usage: "Show one run with its records and relations",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "run"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.RunsShow,
			},
			{
				Name:  "export",
				Usage: "Export one run as a report",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "run"},
				},
				Flags:  reportFlags("output", "o"),
				Action: r.RunsExport,
			},
		},
	}
}

// setupCommand handles config and database setup.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create the config file and initialize the run journal",
		Action: r.Setup,
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show applied and pending journal migrations",
				Action: r.SetupStatus,
			},
			{
				Name:   "rollback",
				Usage:  "Revert the latest journal migration",
				Action: r.SetupRollback,
			},
		},
	}
}
