package testing

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/desertthunder/witx/internal/models"
	"github.com/desertthunder/witx/internal/shared"
	"github.com/desertthunder/witx/internal/wiql"
)

// CreateCall records one call to [FakeTracker.Create].
type CreateCall struct {
	Type    string
	Project string
	Fields  map[string]any
}

// RelationCall records one call to [FakeTracker.AddRelation].
type RelationCall struct {
	SourceID int
	TargetID int
	Kind     string
}

// FakeTracker is an in-memory work item tracker.
//
// Queries are evaluated with [wiql.Query.Matches], created records receive sequential ids and forward relations are
// mirrored as reverse relations on the target, the way the real service maintains hierarchy links.
type FakeTracker struct {
	mu          sync.Mutex
	name        string
	baseURL     string
	nextID      int
	records     map[int]*models.WorkRecord
	creates     []CreateCall
	relations   []RelationCall
	failCreate  map[string]error
	failLink    map[int]error
	queryErr    error
	delay       time.Duration
	inFlight    int
	maxInFlight int
}

// NewFakeTracker creates an empty tracker whose ids start after firstID.
func NewFakeTracker(name string, firstID int) *FakeTracker {
	return &FakeTracker{
		name:       name,
		baseURL:    "https://" + name + ".example.test",
		nextID:     firstID,
		records:    map[int]*models.WorkRecord{},
		failCreate: map[string]error{},
		failLink:   map[int]error{},
	}
}

func (f *FakeTracker) Name() string { return f.name }

// SetBaseURL changes the prefix used for record URLs.
func (f *FakeTracker) SetBaseURL(u string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.baseURL = u
}

// SetDelay makes every Create sleep for d, which widens the window for observing concurrency.
func (f *FakeTracker) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// FailQuery makes every Query return err.
func (f *FakeTracker) FailQuery(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryErr = err
}

// FailCreate makes Create return err for records with the given title.
func (f *FakeTracker) FailCreate(title string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCreate[title] = err
}

// FailRelation makes AddRelation return err when sourceID owns the relation.
func (f *FakeTracker) FailRelation(sourceID int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failLink[sourceID] = err
}

// Seed stores rec, assigning an id and url when missing, and returns the stored copy.
func (f *FakeTracker) Seed(rec models.WorkRecord) models.WorkRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	if rec.ID == 0 {
		f.nextID++
		rec.ID = f.nextID
	} else if rec.ID > f.nextID {
		f.nextID = rec.ID
	}
	if rec.URL == "" {
		rec.URL = f.recordURL(rec.ID)
	}
	rec.Fields = maps.Clone(rec.Fields)
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	rec.Fields[models.FieldID] = rec.ID
	if rec.Type != "" {
		rec.Fields[models.FieldType] = rec.Type
	}

	stored := cloneRecord(rec)
	f.records[rec.ID] = &stored
	return cloneRecord(stored)
}

// Add seeds a record of recordType in project.
func (f *FakeTracker) Add(project, recordType, title string, fields map[string]any) models.WorkRecord {
	all := maps.Clone(fields)
	if all == nil {
		all = map[string]any{}
	}
	all[models.FieldTitle] = title
	all[models.FieldTeamProject] = project
	return f.Seed(models.WorkRecord{Type: recordType, Fields: all})
}

// Link adds a forward relation between two seeded records, mirrored on the target.
func (f *FakeTracker) Link(sourceID, targetID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.link(sourceID, targetID, models.RelationForward)
}

// URL returns the url a record with id would have.
func (f *FakeTracker) URL(id int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recordURL(id)
}

func (f *FakeTracker) Query(ctx context.Context, query string) ([]models.WorkRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q, err := wiql.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRemoteQuery, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.queryErr != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRemoteQuery, f.queryErr)
	}

	ids := make([]int, 0, len(f.records))
	for id, rec := range f.records {
		if q.Matches(*rec) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	out := make([]models.WorkRecord, len(ids))
	for i, id := range ids {
		out[i] = cloneRecord(*f.records[id])
	}
	return out, nil
}

func (f *FakeTracker) Create(ctx context.Context, fields map[string]any, recordType, project string) (*models.Handle, error) {
	f.mu.Lock()
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	delay := f.delay
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", shared.ErrRemoteWrite, ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.creates = append(f.creates, CreateCall{Type: recordType, Project: project, Fields: maps.Clone(fields)})

	title, _ := fields[models.FieldTitle].(string)
	if err, ok := f.failCreate[title]; ok {
		return nil, fmt.Errorf("%w: %v", shared.ErrRemoteWrite, err)
	}
	if recordType == "" || project == "" {
		return nil, fmt.Errorf("%w: record type and project are required", shared.ErrRemoteWrite)
	}

	f.nextID++
	rec := models.WorkRecord{
		ID:     f.nextID,
		Type:   recordType,
		URL:    f.recordURL(f.nextID),
		Fields: maps.Clone(fields),
	}
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	rec.Fields[models.FieldID] = rec.ID
	rec.Fields[models.FieldType] = recordType
	rec.Fields[models.FieldTeamProject] = project
	f.records[rec.ID] = &rec

	return &models.Handle{ID: rec.ID, URL: rec.URL, Project: project, Type: recordType, Title: title}, nil
}

func (f *FakeTracker) AddRelation(ctx context.Context, source, target models.Handle, kind string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrRemoteWrite, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.relations = append(f.relations, RelationCall{SourceID: source.ID, TargetID: target.ID, Kind: kind})

	if err, ok := f.failLink[source.ID]; ok {
		return fmt.Errorf("%w: %v", shared.ErrRemoteWrite, err)
	}
	if _, ok := f.records[source.ID]; !ok {
		return fmt.Errorf("%w: work item %d does not exist", shared.ErrRemoteWrite, source.ID)
	}
	if _, ok := f.records[target.ID]; !ok {
		return fmt.Errorf("%w: work item %d does not exist", shared.ErrRemoteWrite, target.ID)
	}

	f.link(source.ID, target.ID, kind)
	return nil
}

// Record returns a copy of the record with id.
func (f *FakeTracker) Record(id int) (models.WorkRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return models.WorkRecord{}, false
	}
	return cloneRecord(*rec), true
}

// Handle returns the handle of the record with id.
func (f *FakeTracker) Handle(id int) (models.Handle, bool) {
	rec, ok := f.Record(id)
	if !ok {
		return models.Handle{}, false
	}
	project, _ := rec.FieldString(models.FieldTeamProject)
	return models.Handle{ID: rec.ID, URL: rec.URL, Project: project, Type: rec.Type, Title: rec.Title()}, true
}

// Records returns copies of every record ordered by id.
func (f *FakeTracker) Records() []models.WorkRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]int, 0, len(f.records))
	for id := range f.records {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]models.WorkRecord, len(ids))
	for i, id := range ids {
		out[i] = cloneRecord(*f.records[id])
	}
	return out
}

func (f *FakeTracker) Creates() []CreateCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CreateCall(nil), f.creates...)
}

func (f *FakeTracker) Relations() []RelationCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RelationCall(nil), f.relations...)
}

// MaxInFlight reports the highest number of concurrent Create calls observed.
func (f *FakeTracker) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

func (f *FakeTracker) link(sourceID, targetID int, kind string) {
	src, ok := f.records[sourceID]
	if !ok {
		return
	}
	src.Relations = append(src.Relations, models.Relation{Kind: kind, URL: f.recordURL(targetID)})

	if kind != models.RelationForward {
		return
	}
	if tgt, ok := f.records[targetID]; ok {
		tgt.Relations = append(tgt.Relations, models.Relation{Kind: models.RelationReverse, URL: src.URL})
	}
}

func (f *FakeTracker) recordURL(id int) string {
	return fmt.Sprintf("%s/_apis/wit/workItems/%d", f.baseURL, id)
}

func cloneRecord(rec models.WorkRecord) models.WorkRecord {
	rec.Fields = maps.Clone(rec.Fields)
	rec.Relations = append([]models.Relation(nil), rec.Relations...)
	return rec
}
