package snooze

import (
	"context"
	"sync"
)

// MemoryStore keeps the record in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	until int64
	set   bool
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Get(context.Context) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.until, m.set, nil
}

func (m *MemoryStore) Set(_ context.Context, until int64) error {
	m.mu.Lock()
	m.until, m.set = until, true
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	m.until, m.set = 0, false
	m.mu.Unlock()
	return nil
}
