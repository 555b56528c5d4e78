package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Field reference names read or written during a migration.
const (
	FieldID            = "System.Id"
	FieldTitle         = "System.Title"
	FieldType          = "System.WorkItemType"
	FieldTeamProject   = "System.TeamProject"
	FieldDescription   = "System.Description"
	FieldRemainingWork = "Microsoft.VSTS.Scheduling.RemainingWork"
	FieldAssignedTo    = "System.AssignedTo"
	FieldIterationPath = "System.IterationPath"
	FieldTags          = "System.Tags"
)

// Relation kinds. Only [RelationForward] is migrated.
const (
	RelationForward = "System.LinkTypes.Hierarchy-Forward"
	RelationReverse = "System.LinkTypes.Hierarchy-Reverse"
)

// WorkRecord is one work item as returned by a tracking backend.
//
// ID is only meaningful within the instance that issued it.
type WorkRecord struct {
	ID        int            `json:"id"`
	Type      string         `json:"type"`
	URL       string         `json:"url"`
	Fields    map[string]any `json:"fields"`
	Relations []Relation     `json:"relations,omitempty"`
}

// Title returns the System.Title field or an empty string.
func (w WorkRecord) Title() string {
	s, _ := w.FieldString(FieldTitle)
	return s
}

// FieldString returns the string form of a field and whether the field is present.
//
// Identity fields (objects with displayName/uniqueName) resolve to the display name.
func (w WorkRecord) FieldString(name string) (string, bool) {
	v, ok := w.Fields[name]
	if !ok || v == nil {
		return "", false
	}
	return stringify(v)
}

// ForwardRelations returns the relations of kind [RelationForward], in order.
func (w WorkRecord) ForwardRelations() []Relation {
	var out []Relation
	for _, rel := range w.Relations {
		if rel.Kind == RelationForward {
			out = append(out, rel)
		}
	}
	return out
}

// Relation is a directed link from a record to a target referenced by URL.
type Relation struct {
	Kind       string         `json:"rel"`
	URL        string         `json:"url"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// TargetID extracts the target identifier from the trailing path segment of the relation URL.
func (r Relation) TargetID() (int, error) {
	trimmed := strings.TrimRight(r.URL, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx == -1 || idx == len(trimmed)-1 {
		return 0, fmt.Errorf("relation url %q has no trailing identifier", r.URL)
	}
	id, err := strconv.Atoi(trimmed[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("relation url %q has no trailing identifier: %w", r.URL, err)
	}
	return id, nil
}

// Handle references a record within one backend instance.
type Handle struct {
	ID      int    `json:"id"`
	URL     string `json:"url"`
	Project string `json:"project,omitempty"`
	Type    string `json:"type,omitempty"`
	Title   string `json:"title,omitempty"`
}

func (h Handle) String() string {
	return fmt.Sprintf("#%d", h.ID)
}

func stringify(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case map[string]any:
		for _, key := range []string{"displayName", "uniqueName", "name"} {
			if s, ok := val[key].(string); ok && s != "" {
				return s, true
			}
		}
		return "", false
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	default:
		return fmt.Sprint(val), true
	}
}
