package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/witx/internal/services"
	"github.com/desertthunder/witx/internal/shared"
	"github.com/desertthunder/witx/internal/telemetry"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

// TrackerFactory builds a client for one tracker instance.
type TrackerFactory func(ctx context.Context, endpoint shared.EndpointConfig, migration shared.MigrationConfig, logger *log.Logger) (services.Tracker, error)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config         *shared.Config
	configPath     string
	logger         *log.Logger
	output         io.Writer
	input          io.Reader
	trackerFactory TrackerFactory
	db             *sql.DB
	ownsDB         bool
	isTerminal     func() bool
	shutdown       telemetry.Shutdown
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config         *shared.Config
	ConfigPath     string
	Logger         *log.Logger
	Output         io.Writer
	Input          io.Reader
	TrackerFactory TrackerFactory
	DB             *sql.DB     // Run journal; opened from Config.Database when nil
	IsTerminal     func() bool // Whether the interactive view may take over the terminal
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.TrackerFactory == nil {
		opts.TrackerFactory = newAzureDevOpsTracker
	}
	if opts.IsTerminal == nil {
		opts.IsTerminal = func() bool {
			return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
		}
	}

	return &Runner{
		config:         opts.Config,
		configPath:     opts.ConfigPath,
		logger:         opts.Logger,
		output:         opts.Output,
		input:          opts.Input,
		trackerFactory: opts.TrackerFactory,
		db:             opts.DB,
		isTerminal:     opts.IsTerminal,
	}
}

// newAzureDevOpsTracker is the default [TrackerFactory]. Trackers are instrumented when telemetry is enabled.
func newAzureDevOpsTracker(_ context.Context, endpoint shared.EndpointConfig, migration shared.MigrationConfig, logger *log.Logger) (services.Tracker, error) {
	svc, err := services.NewAzureDevOpsService(services.AzureDevOpsOpts{
		BaseURL:    endpoint.URL,
		Token:      endpoint.Token,
		Auth:       endpoint.Auth,
		Timeout:    time.Duration(migration.TimeoutSeconds) * time.Second,
		MaxRetries: migration.MaxRetries,
		Logger:     shared.WithLogger(logger, "instance", endpoint.URL),
	})
	if err != nil {
		return nil, err
	}
	return telemetry.WrapTracker(svc), nil
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, migrateCommand, recordsCommand, runsCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the configuration named by --config, applies the log level and starts telemetry.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if err := r.loadConfig(cmd.String("config"), cmd.IsSet("config")); err != nil {
		return ctx, err
	}

	level := shared.ParseLogLevel(r.config.Log.Level)
	if cmd.Bool("verbose") {
		level = log.DebugLevel
	}
	shared.SetLogLevel(r.logger, level)

	shutdown, err := telemetry.Init(ctx, r.config.Telemetry, cmd.Root().Version)
	if err != nil {
		return ctx, err
	}
	r.shutdown = shutdown
	return ctx, nil
}

// After flushes telemetry and closes the run journal.
func (r *Runner) After(ctx context.Context, _ *cli.Command) error {
	if r.shutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := r.shutdown(shutdownCtx); err != nil {
			r.logger.Warn("failed to flush telemetry", "error", err)
		}
		r.shutdown = nil
	}
	r.closeJournal()
	return nil
}

// loadConfig reads path when it exists. A missing file is an error only when the path was given explicitly.
func (r *Runner) loadConfig(path string, explicit bool) error {
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); err != nil {
		if explicit {
			return fmt.Errorf("%w: %s", shared.ErrMissingConfig, path)
		}
		r.logger.Debug("config file not found, using defaults", "path", path)
		return r.config.Validate()
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}

	r.config = config
	r.configPath = path
	r.logger.Debug("loaded config", "path", path)
	return nil
}

// journal returns the run journal database, opening it from the config on first use.
func (r *Runner) journal() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	db, err := shared.OpenJournal(r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open run journal: %w", err)
	}
	r.db = db
	r.ownsDB = true
	return db, nil
}

func (r *Runner) closeJournal() {
	if r.db != nil && r.ownsDB {
		if err := r.db.Close(); err != nil {
			r.logger.Warn("failed to close run journal", "error", err)
		}
		r.db = nil
		r.ownsDB = false
	}
}

// SetLogger replaces the logger, e.g. with a file logger while the interactive view owns the terminal.
func (r *Runner) SetLogger(logger *log.Logger) {
	shared.SetLogLevel(logger, r.logger.GetLevel())
	r.logger = logger
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
