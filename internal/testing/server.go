package testing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/witx/internal/models"
)

// RecordedRequest is one request received by an [ADOServer].
type RecordedRequest struct {
	Method        string
	Path          string
	APIVersion    string
	Authorization string
	ContentType   string
}

// ADOServer serves the subset of the work item tracking REST API used by witx, backed by a [FakeTracker].
type ADOServer struct {
	*httptest.Server
	Tracker *FakeTracker

	mu       sync.Mutex
	requests []RecordedRequest
	failures []int
}

type adoWorkItem struct {
	ID        int               `json:"id"`
	Rev       int               `json:"rev"`
	URL       string            `json:"url"`
	Fields    map[string]any    `json:"fields"`
	Relations []models.Relation `json:"relations,omitempty"`
}

type adoPatch struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// NewADOServer starts a server for tracker and closes it when the test ends.
func NewADOServer(t *testing.T, tracker *FakeTracker) *ADOServer {
	t.Helper()

	s := &ADOServer{Tracker: tracker}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /_apis/wit/wiql", s.handleWIQL)
	mux.HandleFunc("GET /_apis/wit/workitems", s.handleBatch)
	mux.HandleFunc("POST /{project}/_apis/wit/workitems/{type}", s.handleCreate)
	mux.HandleFunc("PATCH /_apis/wit/workitems/{id}", s.handleUpdate)

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			APIVersion:    r.URL.Query().Get("api-version"),
			Authorization: r.Header.Get("Authorization"),
			ContentType:   r.Header.Get("Content-Type"),
		})
		var status int
		if len(s.failures) > 0 {
			status, s.failures = s.failures[0], s.failures[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			writeError(w, status, http.StatusText(status))
			return
		}
		mux.ServeHTTP(w, r)
	}))
	tracker.SetBaseURL(s.URL)
	t.Cleanup(s.Close)
	return s
}

// FailNext makes the next len(statuses) requests fail with the given statuses, in order.
func (s *ADOServer) FailNext(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, statuses...)
}

// Requests returns every request received so far.
func (s *ADOServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

func (s *ADOServer) handleWIQL(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.Tracker.Query(r.Context(), body.Query)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	refs := make([]map[string]any, len(records))
	for i, rec := range records {
		refs[i] = map[string]any{"id": rec.ID, "url": rec.URL}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queryType":       "flat",
		"queryResultType": "workItem",
		"workItems":       refs,
	})
}

func (s *ADOServer) handleBatch(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}

	var items []adoWorkItem
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.Atoi(part)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid id "+part)
			return
		}
		if rec, ok := s.Tracker.Record(id); ok {
			items = append(items, toWire(rec))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(items), "value": items})
}

func (s *ADOServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	recordType, ok := strings.CutPrefix(r.PathValue("type"), "$")
	if !ok {
		writeError(w, http.StatusNotFound, "unknown route")
		return
	}

	var ops []adoPatch
	if err := json.NewDecoder(r.Body).Decode(&ops); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fields := map[string]any{}
	for _, op := range ops {
		name, ok := strings.CutPrefix(op.Path, "/fields/")
		if op.Op != "add" || !ok {
			writeError(w, http.StatusBadRequest, "unsupported operation "+op.Op+" "+op.Path)
			return
		}
		var v any
		if err := json.Unmarshal(op.Value, &v); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		fields[name] = v
	}

	h, err := s.Tracker.Create(r.Context(), fields, recordType, r.PathValue("project"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, _ := s.Tracker.Record(h.ID)
	writeJSON(w, http.StatusOK, toWire(rec))
}

func (s *ADOServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	source, ok := s.Tracker.Handle(id)
	if !ok {
		writeError(w, http.StatusNotFound, "work item does not exist")
		return
	}

	var ops []adoPatch
	if err := json.NewDecoder(r.Body).Decode(&ops); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	for _, op := range ops {
		if op.Op != "add" || op.Path != "/relations/-" {
			writeError(w, http.StatusBadRequest, "unsupported operation "+op.Op+" "+op.Path)
			return
		}
		var rel models.Relation
		if err := json.Unmarshal(op.Value, &rel); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		targetID, err := rel.TargetID()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		target, ok := s.Tracker.Handle(targetID)
		if !ok {
			writeError(w, http.StatusBadRequest, "relation target does not exist")
			return
		}
		if err := s.Tracker.AddRelation(context.WithoutCancel(r.Context()), source, target, rel.Kind); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	rec, _ := s.Tracker.Record(id)
	writeJSON(w, http.StatusOK, toWire(rec))
}

func toWire(rec models.WorkRecord) adoWorkItem {
	return adoWorkItem{ID: rec.ID, Rev: 1, URL: rec.URL, Fields: rec.Fields, Relations: rec.Relations}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg, "typeKey": "WorkItemTrackingException"})
}
