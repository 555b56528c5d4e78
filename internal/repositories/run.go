package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/desertthunder/witx/internal/models"
	"github.com/desertthunder/witx/internal/shared"
)

var _ models.Repository[*models.MigrationRun] = (*RunRepository)(nil)

const runColumns = `
	id, sequence, source_url, source_project, dest_url, dest_project,
	link_strategy, status, records_total, records_copied, records_failed,
	links_total, links_created, links_failed, error_message, started_at,
	completed_at, created_at, updated_at
`

// RunRepository implements models.Repository[*models.MigrationRun] for the run journal.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run with a generated ID and the next sequence number
func (r *RunRepository) Create(run *models.MigrationRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "migration_runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	run.SetID(id)
	run.SetSequence(sequence)

	query := `INSERT INTO migration_runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.Exec(query,
		id,
		sequence,
		run.Source().URL,
		run.Source().Project,
		run.Dest().URL,
		run.Dest().Project,
		run.LinkStrategy(),
		string(run.Status()),
		run.RecordsTotal(),
		run.RecordsCopied(),
		run.RecordsFailed(),
		run.LinksTotal(),
		run.LinksCreated(),
		run.LinksFailed(),
		nullString(run.ErrorMessage()),
		run.StartedAt(),
		run.CompletedAt(),
		run.CreatedAt(),
		run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// Get retrieves a run by ID
func (r *RunRepository) Get(id string) (*models.MigrationRun, error) {
	query := `SELECT ` + runColumns + ` FROM migration_runs WHERE id = ?`
	return r.scan(r.db.QueryRow(query, id))
}

// GetBySequence retrieves a run by its sequence number
func (r *RunRepository) GetBySequence(sequence int) (*models.MigrationRun, error) {
	query := `SELECT ` + runColumns + ` FROM migration_runs WHERE sequence = ?`
	return r.scan(r.db.QueryRow(query, sequence))
}

// Find resolves a run reference, either a sequence number or an ID
func (r *RunRepository) Find(ref string) (*models.MigrationRun, error) {
	if seq, err := strconv.Atoi(ref); err == nil {
		return r.GetBySequence(seq)
	}
	return r.Get(ref)
}

// Update persists the status, counts and timestamps of a run
func (r *RunRepository) Update(run *models.MigrationRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	run.SetUpdatedAt(now)

	query := `
		UPDATE migration_runs
		SET status = ?, records_total = ?, records_copied = ?, records_failed = ?,
			links_total = ?, links_created = ?, links_failed = ?, error_message = ?,
			completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		string(run.Status()),
		run.RecordsTotal(),
		run.RecordsCopied(),
		run.RecordsFailed(),
		run.LinksTotal(),
		run.LinksCreated(),
		run.LinksFailed(),
		nullString(run.ErrorMessage()),
		run.CompletedAt(),
		now,
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	return expectAffected(result, run.ID())
}

// Delete removes a run and, by cascade, its record and relation entries
func (r *RunRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM migration_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return expectAffected(result, id)
}

// List retrieves runs matching the given criteria, newest first.
//
// Supported criteria: status, source_project, dest_project (strings) and limit (int).
func (r *RunRepository) List(criteria map[string]any) ([]*models.MigrationRun, error) {
	query, args := filterBy(`SELECT `+runColumns+` FROM migration_runs WHERE 1 = 1`, criteria,
		"status", "source_project", "dest_project")

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.MigrationRun
	for rows.Next() {
		run, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// scan reads one run from a [sql.Row] or [sql.Rows]
func (r *RunRepository) scan(row scanner) (*models.MigrationRun, error) {
	var (
		id           string
		sequence     int
		source, dest models.Endpoint
		strategy     string
		status       string
		counts       [6]int
		errorMessage sql.NullString
		startedAt    time.Time
		completedAt  sql.NullTime
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := row.Scan(
		&id, &sequence, &source.URL, &source.Project, &dest.URL, &dest.Project,
		&strategy, &status, &counts[0], &counts[1], &counts[2],
		&counts[3], &counts[4], &counts[5], &errorMessage, &startedAt,
		&completedAt, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	var completed *time.Time
	if completedAt.Valid {
		completed = &completedAt.Time
	}

	return models.RestoreMigrationRun(
		id, sequence, source, dest, strategy, models.RunStatus(status),
		counts, errorMessage.String, startedAt, completed, createdAt, updatedAt,
	), nil
}
