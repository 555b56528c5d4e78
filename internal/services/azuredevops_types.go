package services

import (
	"time"

	"github.com/desertthunder/witx/internal/models"
)

// Azure DevOps API constants
const (
	APIVersion       = "7.0"
	MaxBatchSize     = 200
	DefaultTimeout   = 30 * time.Second
	JSONPatchContent = "application/json-patch+json"
)

// Authentication schemes
const (
	AuthPAT    = "pat"
	AuthBearer = "bearer"
	AuthNone   = "none"
)

// WorkItem is the wire representation of a work item.
type WorkItem struct {
	ID        int                `json:"id"`
	Rev       int                `json:"rev"`
	URL       string             `json:"url"`
	Fields    map[string]any     `json:"fields"`
	Relations []WorkItemRelation `json:"relations,omitempty"`
}

// WorkItemRelation is the wire representation of a link between work items.
type WorkItemRelation struct {
	Rel        string         `json:"rel"`
	URL        string         `json:"url"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// WIQLQueryRequest is the request body for WIQL queries.
type WIQLQueryRequest struct {
	Query string `json:"query"`
}

// WIQLQueryResponse is the response from a flat WIQL query.
type WIQLQueryResponse struct {
	QueryType       string        `json:"queryType"`
	QueryResultType string        `json:"queryResultType"`
	WorkItems       []WorkItemRef `json:"workItems"`
}

// WorkItemRef is a reference to a work item in WIQL results.
type WorkItemRef struct {
	ID  int    `json:"id"`
	URL string `json:"url"`
}

// WorkItemBatchResponse is the response from a batch get.
type WorkItemBatchResponse struct {
	Count int        `json:"count"`
	Value []WorkItem `json:"value"`
}

// PatchOperation is one JSON-patch operation against a work item.
type PatchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// RelationValue is the value of an add /relations/- operation.
type RelationValue struct {
	Rel string `json:"rel"`
	URL string `json:"url"`
}

// apiError is the error body returned by the service.
type apiError struct {
	Message string `json:"message"`
	TypeKey string `json:"typeKey"`
}

// toRecord converts a wire work item to a [models.WorkRecord].
func (w WorkItem) toRecord() models.WorkRecord {
	rec := models.WorkRecord{
		ID:     w.ID,
		URL:    w.URL,
		Fields: w.Fields,
	}
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	if t, ok := rec.FieldString(models.FieldType); ok {
		rec.Type = t
	}
	for _, r := range w.Relations {
		rec.Relations = append(rec.Relations, models.Relation{Kind: r.Rel, URL: r.URL, Attributes: r.Attributes})
	}
	return rec
}

// toHandle converts a wire work item to a [models.Handle].
func (w WorkItem) toHandle(project string) *models.Handle {
	rec := w.toRecord()
	if p, ok := rec.FieldString(models.FieldTeamProject); ok {
		project = p
	}
	return &models.Handle{ID: w.ID, URL: w.URL, Project: project, Type: rec.Type, Title: rec.Title()}
}
