package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/witx/internal/models"
	"github.com/desertthunder/witx/internal/shared"
)

var (
	_ models.Repository[*models.RecordMapping] = (*RecordMappingRepository)(nil)
	_ models.Repository[*models.RelationLink]  = (*RelationLinkRepository)(nil)
)

// RecordMappingRepository implements models.Repository[*models.RecordMapping] for per-record copy outcomes.
type RecordMappingRepository struct {
	db *sql.DB
}

func NewRecordMappingRepository(db *sql.DB) *RecordMappingRepository {
	return &RecordMappingRepository{db: db}
}

// Create inserts a mapping with a generated ID
func (r *RecordMappingRepository) Create(m *models.RecordMapping) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	id := shared.GenerateID()

	query := `
		INSERT INTO record_mappings (
			id, run_id, source_id, source_type, title, dest_id, dest_url,
			status, error_message, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		id, m.RunID, m.SourceID, m.SourceType, m.Title, nullInt(m.DestID), nullString(m.DestURL),
		m.Status, nullString(m.Error), m.CreatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert record mapping: %w", err)
	}

	m.SetID(id)
	return nil
}

func (r *RecordMappingRepository) Get(id string) (*models.RecordMapping, error) {
	query := `
		SELECT id, run_id, source_id, source_type, title, dest_id, dest_url, status, error_message, created_at
		FROM record_mappings
		WHERE id = ?
	`
	return r.scan(r.db.QueryRow(query, id))
}

// Update persists the destination and status of a mapping
func (r *RecordMappingRepository) Update(m *models.RecordMapping) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	result, err := r.db.Exec(
		`UPDATE record_mappings SET dest_id = ?, dest_url = ?, status = ?, error_message = ? WHERE id = ?`,
		nullInt(m.DestID), nullString(m.DestURL), m.Status, nullString(m.Error), m.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update record mapping: %w", err)
	}
	return expectAffected(result, m.ID())
}

func (r *RecordMappingRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM record_mappings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete record mapping: %w", err)
	}
	return expectAffected(result, id)
}

// List retrieves mappings ordered by source id. Supported criteria: run_id and status.
func (r *RecordMappingRepository) List(criteria map[string]any) ([]*models.RecordMapping, error) {
	query := `
		SELECT id, run_id, source_id, source_type, title, dest_id, dest_url, status, error_message, created_at
		FROM record_mappings
		WHERE 1 = 1
	`
	query, args := filterBy(query, criteria, "run_id", "status")
	query += " ORDER BY source_id"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query record mappings: %w", err)
	}
	defer rows.Close()

	var out []*models.RecordMapping
	for rows.Next() {
		m, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

func (r *RecordMappingRepository) scan(row scanner) (*models.RecordMapping, error) {
	var (
		m         models.RecordMapping
		id        string
		destID    sql.NullInt64
		destURL   sql.NullString
		errMsg    sql.NullString
		createdAt time.Time
	)

	err := row.Scan(&id, &m.RunID, &m.SourceID, &m.SourceType, &m.Title, &destID, &destURL, &m.Status, &errMsg, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record mapping not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan record mapping: %w", err)
	}

	m.SetID(id)
	m.SetCreatedAt(createdAt)
	m.DestID = int(destID.Int64)
	m.DestURL = destURL.String
	m.Error = errMsg.String
	return &m, nil
}

// RelationLinkRepository implements models.Repository[*models.RelationLink] for per-relation link outcomes.
type RelationLinkRepository struct {
	db *sql.DB
}

func NewRelationLinkRepository(db *sql.DB) *RelationLinkRepository {
	return &RelationLinkRepository{db: db}
}

// Create inserts a link entry with a generated ID
func (r *RelationLinkRepository) Create(l *models.RelationLink) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	id := shared.GenerateID()

	query := `
		INSERT INTO relation_links (
			id, run_id, source_id, target_id, from_dest_id, to_dest_id, status, error_message, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		id, l.RunID, l.SourceID, l.TargetID, nullInt(l.FromDest), nullInt(l.ToDest),
		l.Status, nullString(l.Error), l.CreatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert relation link: %w", err)
	}

	l.SetID(id)
	return nil
}

func (r *RelationLinkRepository) Get(id string) (*models.RelationLink, error) {
	query := `
		SELECT id, run_id, source_id, target_id, from_dest_id, to_dest_id, status, error_message, created_at
		FROM relation_links
		WHERE id = ?
	`
	return r.scan(r.db.QueryRow(query, id))
}

func (r *RelationLinkRepository) Update(l *models.RelationLink) error {
	if err := l.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	result, err := r.db.Exec(
		`UPDATE relation_links SET from_dest_id = ?, to_dest_id = ?, status = ?, error_message = ? WHERE id = ?`,
		nullInt(l.FromDest), nullInt(l.ToDest), l.Status, nullString(l.Error), l.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update relation link: %w", err)
	}
	return expectAffected(result, l.ID())
}

func (r *RelationLinkRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM relation_links WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete relation link: %w", err)
	}
	return expectAffected(result, id)
}

// List retrieves link entries ordered by source then target id. Supported criteria: run_id and status.
func (r *RelationLinkRepository) List(criteria map[string]any) ([]*models.RelationLink, error) {
	query := `
		SELECT id, run_id, source_id, target_id, from_dest_id, to_dest_id, status, error_message, created_at
		FROM relation_links
		WHERE 1 = 1
	`
	query, args := filterBy(query, criteria, "run_id", "status")
	query += " ORDER BY source_id, target_id"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query relation links: %w", err)
	}
	defer rows.Close()

	var out []*models.RelationLink
	for rows.Next() {
		l, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

func (r *RelationLinkRepository) scan(row scanner) (*models.RelationLink, error) {
	var (
		l         models.RelationLink
		id        string
		fromDest  sql.NullInt64
		toDest    sql.NullInt64
		errMsg    sql.NullString
		createdAt time.Time
	)

	err := row.Scan(&id, &l.RunID, &l.SourceID, &l.TargetID, &fromDest, &toDest, &l.Status, &errMsg, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("relation link not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan relation link: %w", err)
	}

	l.SetID(id)
	l.SetCreatedAt(createdAt)
	l.FromDest = int(fromDest.Int64)
	l.ToDest = int(toDest.Int64)
	l.Error = errMsg.String
	return &l, nil
}

func filterBy(query string, criteria map[string]any, columns ...string) (string, []any) {
	var args []any
	for _, col := range columns {
		if v, ok := criteria[col].(string); ok && v != "" {
			query += " AND " + col + " = ?"
			args = append(args, v)
		}
	}
	return query, args
}
