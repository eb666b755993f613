package registry

import (
	"context"
	"sync"
)

// Memory is an in-process Registry for tests and single-node deployments.
// Ids start at 1 and increase by one per record. The zero value is ready to
// use.
type Memory struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]*Record
}

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{nextID: 1, records: make(map[int64]*Record)}
}

// Register stores a copy of rec and returns its id.
func (m *Memory) Register(_ context.Context, rec *Record) (int64, error) {
	cp := *rec
	cp.Services = append([]string(nil), rec.Services...)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.records == nil {
		m.records = make(map[int64]*Record)
		m.nextID = 1
	}
	id := m.nextID
	m.nextID++
	m.records[id] = &cp
	return id, nil
}

// Get returns the record stored under id, or nil. Intended for tests.
func (m *Memory) Get(id int64) *Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id]
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Ensure Memory implements Registry
var _ Registry = (*Memory)(nil)
