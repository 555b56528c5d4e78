package repositories

import (
	"errors"
	"testing"

	"github.com/desertthunder/witx/internal/models"
	"github.com/desertthunder/witx/internal/shared"
)

func TestRepositoryErrors(t *testing.T) {
	t.Run("Create", func(t *testing.T) {
		t.Run("ValidationError", func(t *testing.T) {
			db := setupTestDB(t)

			run := models.NewMigrationRun(0, models.Endpoint{URL: "https://dev.azure.com/contoso"}, beta, "mapping")
			if err := NewRunRepository(db).Create(run); err == nil {
				t.Fatal("expected validation error for missing source project")
			}

			mapping := models.NewRecordMapping("", models.WorkRecord{ID: 1})
			if err := NewRecordMappingRepository(db).Create(mapping); err == nil {
				t.Fatal("expected validation error for missing run id")
			}

			link := models.NewRelationLink("run", 0, 2)
			if err := NewRelationLinkRepository(db).Create(link); err == nil {
				t.Fatal("expected validation error for missing source id")
			}
		})

		t.Run("UnknownRun", func(t *testing.T) {
			db := setupTestDB(t)

			mapping := models.NewRecordMapping("no-such-run", models.WorkRecord{ID: 1, Type: "Task"})
			if err := NewRecordMappingRepository(db).Create(mapping); err == nil {
				t.Fatal("expected foreign key violation")
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)

			if _, err := NewRunRepository(db).Get("nonexistent-id"); !errors.Is(err, shared.ErrRunNotFound) {
				t.Fatalf("expected ErrRunNotFound, got %v", err)
			}
			if _, err := NewRunRepository(db).Find("7"); !errors.Is(err, shared.ErrRunNotFound) {
				t.Fatalf("expected ErrRunNotFound, got %v", err)
			}
			if _, err := NewRecordMappingRepository(db).Get("nonexistent-id"); err == nil {
				t.Fatal("expected error when getting nonexistent mapping")
			}
		})
	})

	t.Run("Update", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)

			run := models.NewMigrationRun(0, alpha, beta, "mapping")
			run.SetID("nonexistent-id")
			if err := NewRunRepository(db).Update(run); err == nil {
				t.Fatal("expected error when updating nonexistent run")
			}
		})
	})

	t.Run("Delete", func(t *testing.T) {
		t.Run("NotFound", func(t *testing.T) {
			db := setupTestDB(t)

			if err := NewRunRepository(db).Delete("nonexistent-id"); err == nil {
				t.Fatal("expected error when deleting nonexistent run")
			}
			if err := NewRelationLinkRepository(db).Delete("nonexistent-id"); err == nil {
				t.Fatal("expected error when deleting nonexistent link")
			}
		})
	})

	t.Run("ClosedDatabase", func(t *testing.T) {
		db := setupTestDB(t)
		db.Close()

		if _, err := NextSequence(db, "migration_runs"); err == nil {
			t.Error("expected error on closed database")
		}
		if _, err := NewRunRepository(db).List(nil); err == nil {
			t.Error("expected error on closed database")
		}
	})
}
