package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/desertthunder/witx/internal/models"
	"github.com/desertthunder/witx/internal/shared"
	"github.com/desertthunder/witx/internal/tasks"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	shared.ConfigureDatabase(db, 1, 1)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

var (
	alpha = models.Endpoint{URL: "https://dev.azure.com/contoso", Project: "Alpha"}
	beta  = models.Endpoint{URL: "https://dev.azure.com/fabrikam", Project: "Beta"}
)

func createRun(t *testing.T, repo *RunRepository) *models.MigrationRun {
	t.Helper()
	run := models.NewMigrationRun(0, alpha, beta, tasks.StrategyMapping)
	if err := repo.Create(run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}
	return run
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)

	for want := 1; want <= 3; want++ {
		got, err := NextSequence(db, "migration_runs")
		if err != nil {
			t.Fatalf("NextSequence() error = %v", err)
		}
		if got != want {
			t.Errorf("expected sequence %d, got %d", want, got)
		}
	}
}

func TestRunRepository(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		first := createRun(t, repo)
		second := createRun(t, repo)

		if first.ID() == "" || first.ID() == second.ID() {
			t.Errorf("expected distinct ids, got %q and %q", first.ID(), second.ID())
		}
		if first.Sequence() != 1 || second.Sequence() != 2 {
			t.Errorf("expected sequences 1 and 2, got %d and %d", first.Sequence(), second.Sequence())
		}
	})

	t.Run("Get", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		run := createRun(t, repo)

		got, err := repo.Get(run.ID())
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if got.Source() != alpha || got.Dest() != beta {
			t.Errorf("unexpected endpoints %+v %+v", got.Source(), got.Dest())
		}
		if got.Status() != models.RunPending || got.LinkStrategy() != tasks.StrategyMapping {
			t.Errorf("unexpected status %s or strategy %s", got.Status(), got.LinkStrategy())
		}
		if got.CompletedAt() != nil {
			t.Error("expected no completion time")
		}
	})

	t.Run("Find", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		run := createRun(t, repo)

		for _, ref := range []string{"1", run.ID()} {
			got, err := repo.Find(ref)
			if err != nil {
				t.Fatalf("Find(%q) error = %v", ref, err)
			}
			if got.ID() != run.ID() {
				t.Errorf("Find(%q) returned %s", ref, got.ID())
			}
		}
	})

	t.Run("Update", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		run := createRun(t, repo)

		run.SetRecordsTotal(3)
		run.SetCopyCounts(2, 1)
		run.SetLinkCounts(1, 1, 0)
		run.Finish(errors.New("copy Task #2: rule error"))

		if err := repo.Update(run); err != nil {
			t.Fatalf("failed to update run: %v", err)
		}

		got, err := repo.Get(run.ID())
		if err != nil {
			t.Fatalf("failed to get run: %v", err)
		}
		if got.Status() != models.RunPartial {
			t.Errorf("expected partial, got %s", got.Status())
		}
		if got.RecordsTotal() != 3 || got.RecordsCopied() != 2 || got.RecordsFailed() != 1 || got.LinksCreated() != 1 {
			t.Errorf("unexpected counts on %+v", got)
		}
		if got.ErrorMessage() != "copy Task #2: rule error" {
			t.Errorf("unexpected error message %q", got.ErrorMessage())
		}
		if got.CompletedAt() == nil {
			t.Error("expected completion time")
		}
	})

	t.Run("List", func(t *testing.T) {
		repo := NewRunRepository(setupTestDB(t))
		createRun(t, repo)
		done := createRun(t, repo)
		done.Finish(nil)
		if err := repo.Update(done); err != nil {
			t.Fatalf("failed to update run: %v", err)
		}
		createRun(t, repo)

		all, err := repo.List(nil)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(all) != 3 || all[0].Sequence() != 3 {
			t.Errorf("expected 3 runs newest first, got %d", len(all))
		}

		completed, err := repo.List(map[string]any{"status": string(models.RunCompleted)})
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(completed) != 1 || completed[0].ID() != done.ID() {
			t.Errorf("expected only the completed run, got %d", len(completed))
		}

		limited, _ := repo.List(map[string]any{"limit": 2})
		if len(limited) != 2 {
			t.Errorf("expected 2 runs, got %d", len(limited))
		}
	})

	t.Run("Delete cascades", func(t *testing.T) {
		db := setupTestDB(t)
		repo := NewRunRepository(db)
		run := createRun(t, repo)

		mappings := NewRecordMappingRepository(db)
		if err := mappings.Create(models.NewRecordMapping(run.ID(), models.WorkRecord{ID: 1, Type: "Task"})); err != nil {
			t.Fatalf("failed to create mapping: %v", err)
		}

		if err := repo.Delete(run.ID()); err != nil {
			t.Fatalf("failed to delete run: %v", err)
		}
		if _, err := repo.Get(run.ID()); !errors.Is(err, shared.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}

		left, _ := mappings.List(map[string]any{"run_id": run.ID()})
		if len(left) != 0 {
			t.Errorf("expected mappings deleted with run, got %d", len(left))
		}
	})
}

func TestRecordMappingRepository(t *testing.T) {
	db := setupTestDB(t)
	run := createRun(t, NewRunRepository(db))
	repo := NewRecordMappingRepository(db)

	created := models.NewRecordMapping(run.ID(), models.WorkRecord{
		ID:     7,
		Type:   "Bug",
		Fields: map[string]any{models.FieldTitle: "Fix crash"},
	})
	created.Created(models.Handle{ID: 107, URL: "https://dev.azure.com/fabrikam/_apis/wit/workItems/107"})

	failed := models.NewRecordMapping(run.ID(), models.WorkRecord{ID: 3, Type: "Task"})
	failed.Error = "rule error"

	for _, m := range []*models.RecordMapping{created, failed} {
		if err := repo.Create(m); err != nil {
			t.Fatalf("failed to create mapping: %v", err)
		}
	}

	t.Run("Get", func(t *testing.T) {
		got, err := repo.Get(created.ID())
		if err != nil {
			t.Fatalf("failed to get mapping: %v", err)
		}
		if got.DestID != 107 || got.Title != "Fix crash" || got.Status != models.StatusCreated {
			t.Errorf("unexpected mapping %+v", got)
		}
	})

	t.Run("List", func(t *testing.T) {
		all, err := repo.List(map[string]any{"run_id": run.ID()})
		if err != nil {
			t.Fatalf("failed to list mappings: %v", err)
		}
		if len(all) != 2 || all[0].SourceID != 3 || all[0].Error != "rule error" || all[0].DestID != 0 {
			t.Errorf("unexpected mappings %+v", all)
		}

		onlyFailed, _ := repo.List(map[string]any{"run_id": run.ID(), "status": models.StatusFailed})
		if len(onlyFailed) != 1 {
			t.Errorf("expected 1 failed mapping, got %d", len(onlyFailed))
		}
	})

	t.Run("Update", func(t *testing.T) {
		failed.Created(models.Handle{ID: 103, URL: "u"})
		if err := repo.Update(failed); err != nil {
			t.Fatalf("failed to update mapping: %v", err)
		}
		got, _ := repo.Get(failed.ID())
		if got.Status != models.StatusCreated || got.DestID != 103 || got.Error != "" {
			t.Errorf("unexpected mapping %+v", got)
		}
	})

	t.Run("duplicate source in run", func(t *testing.T) {
		dup := models.NewRecordMapping(run.ID(), models.WorkRecord{ID: 7, Type: "Bug"})
		if err := repo.Create(dup); err == nil {
			t.Error("expected unique constraint violation")
		}
	})
}

func TestRelationLinkRepository(t *testing.T) {
	db := setupTestDB(t)
	run := createRun(t, NewRunRepository(db))
	repo := NewRelationLinkRepository(db)

	linked := models.NewRelationLink(run.ID(), 1, 2)
	linked.FromDest, linked.ToDest, linked.Status = 101, 102, models.StatusLinked

	skipped := models.NewRelationLink(run.ID(), 1, 3)
	skipped.Status, skipped.Error = models.StatusSkipped, "target #3 was not copied"

	for _, l := range []*models.RelationLink{skipped, linked} {
		if err := repo.Create(l); err != nil {
			t.Fatalf("failed to create link: %v", err)
		}
	}

	all, err := repo.List(map[string]any{"run_id": run.ID()})
	if err != nil {
		t.Fatalf("failed to list links: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 links, got %d", len(all))
	}
	if all[0].TargetID != 2 || all[0].FromDest != 101 || all[0].ToDest != 102 {
		t.Errorf("unexpected first link %+v", all[0])
	}
	if all[1].Status != models.StatusSkipped || all[1].ToDest != 0 {
		t.Errorf("unexpected second link %+v", all[1])
	}

	if err := repo.Delete(linked.ID()); err != nil {
		t.Fatalf("failed to delete link: %v", err)
	}
	if _, err := repo.Get(linked.ID()); err == nil {
		t.Error("expected deleted link to be gone")
	}
}

func TestRunJournal(t *testing.T) {
	t.Run("journals a run", func(t *testing.T) {
		db := setupTestDB(t)
		journal := NewRunJournal(db)
		ctx := context.Background()

		story := models.WorkRecord{ID: 1, Type: "Story", Fields: map[string]any{models.FieldTitle: "Epic A"}}
		task := models.WorkRecord{ID: 2, Type: "Task", Fields: map[string]any{models.FieldTitle: "Do work"}}

		if err := journal.Begin(ctx, alpha, beta, tasks.StrategyMapping); err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		if journal.Run().Status() != models.RunRunning {
			t.Errorf("expected running, got %s", journal.Run().Status())
		}

		copyReport := &tasks.CopyReport{
			Outcomes: []tasks.CopyOutcome{
				{Source: story, Dest: &models.Handle{ID: 11, URL: "u11"}},
				{Source: task, Err: errors.New("rule error")},
			},
			Created: 1,
			Failed:  1,
		}
		if err := journal.RecordCopy(ctx, 2, copyReport); err != nil {
			t.Fatalf("RecordCopy() error = %v", err)
		}

		linkReport := &tasks.LinkReport{
			Outcomes: []tasks.LinkOutcome{{SourceID: 1, TargetID: 2, Err: shared.ErrSkippedEndpoint}},
			Failed:   1,
			Skipped:  1,
		}
		if err := journal.RecordLink(ctx, linkReport); err != nil {
			t.Fatalf("RecordLink() error = %v", err)
		}

		if err := journal.Finish(ctx, errors.New("copy failed")); err != nil {
			t.Fatalf("Finish() error = %v", err)
		}

		report, err := LoadReport(db, "1")
		if err != nil {
			t.Fatalf("LoadReport() error = %v", err)
		}
		if report.Run.Status() != models.RunPartial || report.Run.RecordsCopied() != 1 || report.Run.LinksFailed() != 1 {
			t.Errorf("unexpected run %+v", report.Run)
		}
		if len(report.Records) != 2 || report.Records[0].DestID != 11 || report.Records[1].Status != models.StatusFailed {
			t.Errorf("unexpected records %+v", report.Records)
		}
		if len(report.Links) != 1 || report.Links[0].Status != models.StatusSkipped {
			t.Errorf("unexpected links %+v", report.Links)
		}
	})

	t.Run("finish without begin", func(t *testing.T) {
		journal := NewRunJournal(setupTestDB(t))
		if err := journal.Finish(context.Background(), nil); err != nil {
			t.Errorf("expected no-op, got %v", err)
		}
		if err := journal.RecordCopy(context.Background(), 0, &tasks.CopyReport{}); err == nil {
			t.Error("expected error recording before begin")
		}
	})

	t.Run("missing run", func(t *testing.T) {
		if _, err := LoadReport(setupTestDB(t), "42"); !errors.Is(err, shared.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})
}
