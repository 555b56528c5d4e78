// package wiql builds and parses the work item query expressions used by witx.
//
// Only flat queries are supported:
//
//	SELECT [Field], ... FROM WorkItems WHERE [Field] = 'literal' AND ...
package wiql

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/desertthunder/witx/internal/models"
)

var ErrMalformed = errors.New("malformed query")

var (
	queryPattern     = regexp.MustCompile(`(?is)^\s*SELECT\s+(.+?)\s+FROM\s+WorkItems(?:\s+WHERE\s+(.+?))?\s*$`)
	fieldPattern     = regexp.MustCompile(`^\[([A-Za-z0-9_.\-]+)\]$`)
	predicatePattern = regexp.MustCompile(`^\(?\s*\[([A-Za-z0-9_.\-]+)\]\s*=\s*'((?:[^']|'')*)'\s*\)?$`)
	andPattern       = regexp.MustCompile(`(?i)\s+AND\s+`)
)

// Query is a parsed flat query.
type Query struct {
	Fields     []string
	Predicates []Predicate
}

// Predicate is an exact equality between a field and a literal.
type Predicate struct {
	Field string
	Value string
}

// Quote renders s as a literal, doubling embedded apostrophes.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Build renders a query projecting fields and filtering on the predicates, in order.
func Build(fields []string, predicates ...Predicate) string {
	if len(fields) == 0 {
		fields = []string{models.FieldID}
	}

	projected := make([]string, len(fields))
	for i, f := range fields {
		projected[i] = "[" + f + "]"
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(projected, ", "))
	sb.WriteString(" FROM WorkItems")

	for i, p := range predicates {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		fmt.Fprintf(&sb, "[%s] = %s", p.Field, Quote(p.Value))
	}
	return sb.String()
}

// ProjectQuery selects every record of a project.
func ProjectQuery(project string) string {
	return Build(nil, Predicate{Field: models.FieldTeamProject, Value: project})
}

// TitleTypeQuery selects records with an exact title and type.
func TitleTypeQuery(title, recordType string) string {
	return Build(nil,
		Predicate{Field: models.FieldTitle, Value: title},
		Predicate{Field: models.FieldType, Value: recordType},
	)
}

// Parse validates a flat query and extracts its projection and equality predicates.
func Parse(query string) (*Query, error) {
	m := queryPattern.FindStringSubmatch(query)
	if m == nil {
		return nil, fmt.Errorf("%w: expected SELECT ... FROM WorkItems", ErrMalformed)
	}

	q := &Query{}
	for _, raw := range strings.Split(m[1], ",") {
		fm := fieldPattern.FindStringSubmatch(strings.TrimSpace(raw))
		if fm == nil {
			return nil, fmt.Errorf("%w: invalid field %q", ErrMalformed, strings.TrimSpace(raw))
		}
		q.Fields = append(q.Fields, fm[1])
	}

	if m[2] == "" {
		return q, nil
	}

	for _, raw := range splitConjunction(m[2]) {
		pm := predicatePattern.FindStringSubmatch(strings.TrimSpace(raw))
		if pm == nil {
			return nil, fmt.Errorf("%w: unsupported predicate %q", ErrMalformed, strings.TrimSpace(raw))
		}
		q.Predicates = append(q.Predicates, Predicate{
			Field: pm[1],
			Value: strings.ReplaceAll(pm[2], "''", "'"),
		})
	}
	return q, nil
}

// Matches reports whether a record satisfies every predicate of q.
func (q *Query) Matches(rec models.WorkRecord) bool {
	for _, p := range q.Predicates {
		var got string
		switch p.Field {
		case models.FieldID:
			got = fmt.Sprint(rec.ID)
		case models.FieldType:
			got = rec.Type
		default:
			got, _ = rec.FieldString(p.Field)
		}
		if got != p.Value {
			return false
		}
	}
	return true
}

// splitConjunction splits on AND outside of quoted literals.
func splitConjunction(where string) []string {
	var (
		parts   []string
		start   int
		inQuote bool
	)
	for i := 0; i < len(where); i++ {
		if where[i] == '\'' {
			inQuote = !inQuote
			continue
		}
		if inQuote {
			continue
		}
		if loc := andPattern.FindStringIndex(where[i:]); loc != nil && loc[0] == 0 {
			parts = append(parts, where[start:i])
			start = i + loc[1]
			i = start - 1
		}
	}
	return append(parts, where[start:])
}
