// package services defines interface Tracker for interacting with work item tracking backends
//
// Azure DevOps Services and Team Foundation Server (REST API 7.0)
package services

import (
	"context"

	"github.com/desertthunder/witx/internal/models"
)

// Tracker defines the operations the transfer engine needs from one backend instance.
//
// Implementations must be safe for concurrent use.
type Tracker interface {
	// Name returns a display name for the instance (typically its URL).
	Name() string

	// Query executes a filter expression and returns the full matching records with all fields and relations.
	// Failures wrap [shared.ErrRemoteQuery].
	Query(ctx context.Context, query string) ([]models.WorkRecord, error)

	// Create creates one record of recordType in project with the given initial field values.
	// Failures wrap [shared.ErrRemoteWrite].
	Create(ctx context.Context, fields map[string]any, recordType, project string) (*models.Handle, error)

	// AddRelation appends one relation of kind from source to target.
	// Failures wrap [shared.ErrRemoteWrite].
	AddRelation(ctx context.Context, source, target models.Handle, kind string) error
}
