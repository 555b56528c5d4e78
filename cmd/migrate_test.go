package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/witx/internal/models"
	"github.com/desertthunder/witx/internal/repositories"
	"github.com/desertthunder/witx/internal/services"
	"github.com/desertthunder/witx/internal/shared"
	tu "github.com/desertthunder/witx/internal/testing"
)

const (
	sourceURL = "https://source.example.test/tfs/Main"
	destURL   = "https://dest.example.test/org"
)

type fixture struct {
	runner *Runner
	output *bytes.Buffer
	source *tu.FakeTracker
	dest   *tu.FakeTracker
	db     *sql.DB
	tokens map[string]string
}

// newFixture builds a runner over two fake trackers and an in-memory journal, inside a temp working directory.
func newFixture(t *testing.T, input string) *fixture {
	t.Helper()
	t.Chdir(t.TempDir())

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	shared.ConfigureDatabase(db, 1, 1)
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	f := &fixture{
		output: &bytes.Buffer{},
		source: tu.NewFakeTracker("source", 0),
		dest:   tu.NewFakeTracker("dest", 100),
		db:     db,
		tokens: map[string]string{},
	}

	story := f.source.Add("Alpha", "Story", "Epic A", nil)
	task := f.source.Add("Alpha", "Task", "Do work", nil)
	f.source.Link(story.ID, task.ID)

	config := shared.DefaultConfig()
	config.Database.Enabled = true
	config.Migration.RateLimit = 1000

	trackers := map[string]services.Tracker{sourceURL: f.source, destURL: f.dest}
	f.runner = NewRunner(RunnerOpts{
		Config: config,
		Logger: shared.NewLogger(io.Discard),
		Output: f.output,
		Input:  strings.NewReader(input),
		DB:     db,
		TrackerFactory: func(_ context.Context, e shared.EndpointConfig, _ shared.MigrationConfig, _ *log.Logger) (services.Tracker, error) {
			if tracker, ok := trackers[e.URL]; ok {
				f.tokens[e.URL] = e.Token
				return tracker, nil
			}
			return nil, fmt.Errorf("%w: unknown instance %s", shared.ErrServiceUnavailable, e.URL)
		},
		IsTerminal: func() bool { return false },
	})
	return f
}

// slowWriter delays every write, like a terminal that cannot keep up.
type slowWriter struct {
	mu    sync.Mutex
	delay time.Duration
	buf   bytes.Buffer
}

func (w *slowWriter) Write(p []byte) (int, error) {
	time.Sleep(w.delay)
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *slowWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func (f *fixture) run(args ...string) error {
	return newApp(f.runner).Run(context.Background(), append([]string{"witx"}, args...))
}

func (f *fixture) migrate(extra ...string) error {
	args := []string{"migrate", "run",
		"--source-url", sourceURL, "--source-project", "Alpha",
		"--dest-url", destURL, "--dest-project", "Beta",
	}
	return f.run(append(args, extra...)...)
}

func assertContains(t *testing.T, output string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, output)
		}
	}
}

func TestMigrateRun(t *testing.T) {
	t.Run("copies and links the project", func(t *testing.T) {
		f := newFixture(t, "")

		if err := f.migrate("--report", "reports/run.json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		assertContains(t, f.output.String(),
			"Connecting to "+sourceURL,
			"Copied 2 of 2 work items (0 failed)",
			"Linked 1 of 1 relations (0 failed, 0 skipped)",
			"Journaled as run 1 (completed)",
			"Live long and prosper!",
			"Report written to reports/run.json",
		)

		if n := len(f.dest.Records()); n != 2 {
			t.Errorf("expected 2 destination records, got %d", n)
		}
		if n := len(f.dest.Relations()); n != 1 {
			t.Errorf("expected 1 destination relation, got %d", n)
		}

		var report struct {
			Records []map[string]any `json:"records"`
			Links   []map[string]any `json:"links"`
		}
		if err := json.Unmarshal([]byte(tu.MustReadFile(t, filepath.Join("reports", "run.json"))), &report); err != nil {
			t.Fatalf("invalid report: %v", err)
		}
		if len(report.Records) != 2 || len(report.Links) != 1 {
			t.Errorf("expected 2 records and 1 link in report, got %d and %d", len(report.Records), len(report.Links))
		}
	})

	t.Run("prints every phase line on slow output", func(t *testing.T) {
		f := newFixture(t, "")
		for i := range 400 {
			f.source.Add("Alpha", "Task", fmt.Sprintf("Task %d", i), nil)
		}
		out := &slowWriter{delay: 3 * time.Millisecond}
		f.runner.output = out

		if err := f.migrate(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		assertContains(t, out.String(),
			"Connecting to "+sourceURL,
			"Connecting to "+destURL,
			"Querying work items from source project",
			"Found 402 work items to copy",
			"Copying started",
			"Copying finished",
			"Linking started",
			"Linking finished",
			"Copied 402 of 402 work items (0 failed)",
		)
	})

	t.Run("journals failures as partial", func(t *testing.T) {
		f := newFixture(t, "")
		f.dest.FailCreate("Do work", errors.New("boom"))

		err := f.migrate("--on-error", "continue")
		if err == nil {
			t.Fatal("expected run error for failed copy")
		}

		assertContains(t, f.output.String(),
			"Copied 1 of 2 work items (1 failed)",
			"Linked 0 of 1 relations (1 failed, 1 skipped)",
			"Migration finished with errors",
		)

		run, err := repositories.NewRunRepository(f.db).GetBySequence(1)
		if err != nil {
			t.Fatalf("expected journaled run, got %v", err)
		}
		if run.Status() != models.RunPartial {
			t.Errorf("expected partial run, got %s", run.Status())
		}
	})

	t.Run("requires endpoints", func(t *testing.T) {
		f := newFixture(t, "")
		err := f.run("migrate", "run", "--source-url", sourceURL)
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if n := len(f.dest.Creates()); n != 0 {
			t.Errorf("expected no remote writes, got %d", n)
		}
	})

	t.Run("rejects invalid engine flags", func(t *testing.T) {
		f := newFixture(t, "")
		if err := f.migrate("--link-strategy", "guess"); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("rejects unknown report format", func(t *testing.T) {
		f := newFixture(t, "")
		err := f.migrate("--report", "run.txt")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("reports connection failures", func(t *testing.T) {
		f := newFixture(t, "")
		err := f.run("migrate", "run",
			"--source-url", "https://nowhere.example.test", "--source-project", "Alpha",
			"--dest-url", destURL, "--dest-project", "Beta")
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})
}

func TestMigrateInteractive(t *testing.T) {
	t.Run("prompts in order and waits for enter", func(t *testing.T) {
		input := strings.Join([]string{sourceURL, "Alpha", destURL, "Beta", ""}, "\n") + "\n"
		f := newFixture(t, input)

		if err := f.run("migrate", "interactive"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		out := f.output.String()
		order := []string{"Source URL: ", "Source project: ", "Destination URL: ", "Destination project: ",
			"Live long and prosper!", "Press 'enter' to close"}
		last := -1
		for _, want := range order {
			i := strings.Index(out, want)
			if i <= last {
				t.Fatalf("expected %q after position %d, got:\n%s", want, last, out)
			}
			last = i
		}
		if n := len(f.dest.Records()); n != 2 {
			t.Errorf("expected 2 destination records, got %d", n)
		}
	})

	t.Run("uses defaults from flags", func(t *testing.T) {
		f := newFixture(t, "\n\n\n\n\n")

		err := f.run("migrate", "interactive",
			"--source-url", sourceURL, "--source-project", "Alpha",
			"--dest-url", destURL, "--dest-project", "Beta")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		assertContains(t, f.output.String(), "Source URL ["+sourceURL+"]: ", "Destination project [Beta]: ")
	})

	t.Run("root command starts the interactive flow", func(t *testing.T) {
		input := strings.Join([]string{sourceURL, "Alpha", destURL, "Beta"}, "\n")
		f := newFixture(t, input)

		if err := f.run(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		assertContains(t, f.output.String(), "Copied 2 of 2 work items", "Press 'enter' to close")
	})

	t.Run("root command reads tokens from the environment", func(t *testing.T) {
		t.Setenv("WITX_SOURCE_TOKEN", "source-secret")
		t.Setenv("WITX_DEST_TOKEN", "dest-secret")
		input := strings.Join([]string{sourceURL, "Alpha", destURL, "Beta", ""}, "\n")
		f := newFixture(t, input)

		if err := f.run(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.tokens[sourceURL] != "source-secret" || f.tokens[destURL] != "dest-secret" {
			t.Errorf("unexpected tokens %v", f.tokens)
		}
	})

	t.Run("root command accepts migration flags", func(t *testing.T) {
		f := newFixture(t, "\n\n\n\n\n")

		err := f.run("--source-url", sourceURL, "--source-project", "Alpha",
			"--dest-url", destURL, "--dest-project", "Beta", "--source-token", "flag-secret")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		assertContains(t, f.output.String(), "Source URL ["+sourceURL+"]: ", "Copied 2 of 2 work items")
		if f.tokens[sourceURL] != "flag-secret" {
			t.Errorf("expected flag token, got %q", f.tokens[sourceURL])
		}
	})

	t.Run("reprompts invalid answers", func(t *testing.T) {
		input := strings.Join([]string{"not a url", sourceURL, "Alpha", destURL, "Beta", ""}, "\n")
		f := newFixture(t, input)

		if err := f.run("migrate", "interactive"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		assertContains(t, f.output.String(), "Source URL must be an http(s) URL")
	})

	t.Run("gives up when input ends", func(t *testing.T) {
		f := newFixture(t, sourceURL+"\n")

		err := f.run("migrate", "interactive")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if n := len(f.dest.Creates()); n != 0 {
			t.Errorf("expected no remote writes, got %d", n)
		}
	})
}

func TestRecordsList(t *testing.T) {
	t.Run("prints records", func(t *testing.T) {
		f := newFixture(t, "")
		if err := f.run("records", "list", "--source-url", sourceURL, "--source-project", "Alpha"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		assertContains(t, f.output.String(), "Work items in Alpha", "Epic A (1 children)", "Do work", "Total: 2 work items")
	})

	t.Run("prints JSON", func(t *testing.T) {
		f := newFixture(t, "")
		if err := f.run("records", "list", "--source-url", sourceURL, "--source-project", "Alpha", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var records []models.WorkRecord
		if err := json.Unmarshal(f.output.Bytes(), &records); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(records) != 2 {
			t.Errorf("expected 2 records, got %d", len(records))
		}
	})

	t.Run("requires a project", func(t *testing.T) {
		f := newFixture(t, "")
		err := f.run("records", "list", "--source-url", sourceURL)
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}

func TestRuns(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		f := newFixture(t, "")
		if err := f.run("runs", "list"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		assertContains(t, f.output.String(), "No runs found")

		if err := f.migrate(); err != nil {
			t.Fatalf("migration failed: %v", err)
		}
		f.output.Reset()

		if err := f.run("runs", "list", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		var runs []runSummary
		if err := json.Unmarshal(f.output.Bytes(), &runs); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(runs) != 1 || runs[0].Sequence != 1 || runs[0].RecordsCopied != 2 || runs[0].LinksCreated != 1 {
			t.Errorf("unexpected runs %+v", runs)
		}

		f.output.Reset()
		if err := f.run("runs", "list", "--status", "failed"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		assertContains(t, f.output.String(), "No runs found")
	})

	t.Run("show", func(t *testing.T) {
		f := newFixture(t, "")
		if err := f.migrate(); err != nil {
			t.Fatalf("migration failed: %v", err)
		}
		f.output.Reset()

		if err := f.run("runs", "show", "1"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		assertContains(t, f.output.String(), "# Migration run 1", "## Records", "## Relations", "Epic A")
	})

	t.Run("show unknown run", func(t *testing.T) {
		f := newFixture(t, "")
		if err := f.run("runs", "show", "7"); !errors.Is(err, shared.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})

	t.Run("show requires a run", func(t *testing.T) {
		f := newFixture(t, "")
		if err := f.run("runs", "show"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("export", func(t *testing.T) {
		f := newFixture(t, "")
		if err := f.migrate(); err != nil {
			t.Fatalf("migration failed: %v", err)
		}

		if err := f.run("runs", "export", "1", "-o", "run.csv"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		assertContains(t, f.output.String(), "Exported run 1 to run.csv")
		assertContains(t, tu.MustReadFile(t, "run.csv"), "Kind,Source ID", "relation")
	})

	t.Run("export requires output", func(t *testing.T) {
		f := newFixture(t, "")
		if err := f.run("runs", "export", "1"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}

func TestSetup(t *testing.T) {
	t.Chdir(t.TempDir())

	newSetupRunner := func() (*Runner, *bytes.Buffer) {
		output := &bytes.Buffer{}
		return NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: output}), output
	}

	runner, output := newSetupRunner()
	if err := newApp(runner).Run(context.Background(), []string{"witx", "setup"}); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	tu.AssertFileExists(t, "config.toml")
	tu.AssertFileExists(t, "witx.db")
	assertContains(t, output.String(), "Config written to config.toml", "Run journal ready at ./witx.db (schema version 2)")

	runner, output = newSetupRunner()
	if err := newApp(runner).Run(context.Background(), []string{"witx", "setup", "status"}); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	assertContains(t, output.String(), "Current version: 2", "Pending: none")

	runner, output = newSetupRunner()
	if err := newApp(runner).Run(context.Background(), []string{"witx", "setup", "rollback"}); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	assertContains(t, output.String(), "Rolled back migration 2")

	runner, output = newSetupRunner()
	if err := newApp(runner).Run(context.Background(), []string{"witx", "setup", "status"}); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	assertContains(t, output.String(), "Current version: 1", "Pending: [2]")
}
