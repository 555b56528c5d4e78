package models

import (
	"fmt"
	"time"
)

// RecordMapping journals the copy outcome of one source record.
type RecordMapping struct {
	id         string
	RunID      string
	SourceID   int
	SourceType string
	Title      string
	DestID     int
	DestURL    string
	Status     string
	Error      string
	createdAt  time.Time
}

// NewRecordMapping creates a mapping for a source record within a run.
func NewRecordMapping(runID string, source WorkRecord) *RecordMapping {
	return &RecordMapping{
		RunID:      runID,
		SourceID:   source.ID,
		SourceType: source.Type,
		Title:      source.Title(),
		Status:     StatusFailed,
		createdAt:  time.Now(),
	}
}

func (r *RecordMapping) ID() string           { return r.id }
func (r *RecordMapping) SetID(id string)      { r.id = id }
func (r *RecordMapping) CreatedAt() time.Time { return r.createdAt }
func (r *RecordMapping) UpdatedAt() time.Time { return r.createdAt }

// Created records the destination handle and marks the mapping as created.
func (r *RecordMapping) Created(h Handle) {
	r.DestID = h.ID
	r.DestURL = h.URL
	r.Status = StatusCreated
	r.Error = ""
}

func (r *RecordMapping) Validate() error {
	if r.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if r.SourceID <= 0 {
		return fmt.Errorf("source id must be positive")
	}
	if r.Status == StatusCreated && r.DestID <= 0 {
		return fmt.Errorf("created mapping requires a destination id")
	}
	return nil
}

// RelationLink journals the link outcome of one forward relation.
type RelationLink struct {
	id        string
	RunID     string
	SourceID  int
	TargetID  int
	FromDest  int
	ToDest    int
	Status    string
	Error     string
	createdAt time.Time
}

// NewRelationLink creates a link entry for a source relation within a run.
func NewRelationLink(runID string, sourceID, targetID int) *RelationLink {
	return &RelationLink{
		RunID:     runID,
		SourceID:  sourceID,
		TargetID:  targetID,
		Status:    StatusFailed,
		createdAt: time.Now(),
	}
}

func (l *RelationLink) ID() string           { return l.id }
func (l *RelationLink) SetID(id string)      { l.id = id }
func (l *RelationLink) CreatedAt() time.Time { return l.createdAt }
func (l *RelationLink) UpdatedAt() time.Time { return l.createdAt }

func (l *RelationLink) Validate() error {
	if l.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if l.SourceID <= 0 {
		return fmt.Errorf("source id must be positive")
	}
	return nil
}

// RunReport groups a run with its journaled records and relations.
type RunReport struct {
	Run     *MigrationRun
	Records []*RecordMapping
	Links   []*RelationLink
}

// SetCreatedAt restores the creation time of a scanned row.
func (r *RecordMapping) SetCreatedAt(t time.Time) { r.createdAt = t }
func (l *RelationLink) SetCreatedAt(t time.Time)  { l.createdAt = t }
