package tasks

import (
	"sync"

	"github.com/desertthunder/witx/internal/models"
)

// IDMap maps source record ids to the handles of their destination copies.
//
// It is written by concurrent copy units and read by link units.
type IDMap struct {
	mu      sync.RWMutex
	handles map[int]models.Handle
}

func NewIDMap() *IDMap {
	return &IDMap{handles: map[int]models.Handle{}}
}

func (m *IDMap) Put(sourceID int, h models.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handles[sourceID] = h
}

func (m *IDMap) Get(sourceID int) (models.Handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handles[sourceID]
	return h, ok
}

func (m *IDMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handles)
}
