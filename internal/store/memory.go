// ABOUTME: In-memory Store implementation for tests.
// ABOUTME: Mirrors SQLiteStore semantics including ErrNotFound and copy-on-read.

package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a thread-safe in-memory Store used by tests and by
// deployments that accept losing outbox state on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	outbox  map[string]*OutboxRecord
	pending map[string]*PendingInteraction
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		outbox:  make(map[string]*OutboxRecord),
		pending: make(map[string]*PendingInteraction),
	}
}

func (m *MemoryStore) PutOutboxRecord(_ context.Context, rec *OutboxRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.outbox[rec.RecordID] = &cp
	return nil
}

func (m *MemoryStore) GetOutboxRecord(_ context.Context, recordID string) (*OutboxRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.outbox[recordID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) DeleteOutboxRecord(_ context.Context, recordID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.outbox, recordID)
	return nil
}

func (m *MemoryStore) ListOutboxRecords(_ context.Context) ([]*OutboxRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]*OutboxRecord, 0, len(m.outbox))
	for _, rec := range m.outbox {
		cp := *rec
		records = append(records, &cp)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].RecordID < records[j].RecordID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (m *MemoryStore) PutPendingInteraction(_ context.Context, rec *PendingInteraction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	cp.Selected = append([]int(nil), rec.Selected...)
	m.pending[rec.RequestID] = &cp
	return nil
}

func (m *MemoryStore) GetPendingInteraction(_ context.Context, requestID string) (*PendingInteraction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.pending[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	cp.Selected = append([]int(nil), rec.Selected...)
	return &cp, nil
}

func (m *MemoryStore) DeletePendingInteraction(_ context.Context, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, requestID)
	return nil
}

func (m *MemoryStore) ListPendingInteractions(_ context.Context) ([]*PendingInteraction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]*PendingInteraction, 0, len(m.pending))
	for _, rec := range m.pending {
		cp := *rec
		cp.Selected = append([]int(nil), rec.Selected...)
		records = append(records, &cp)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].RequestID < records[j].RequestID
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (m *MemoryStore) Close() error { return nil }
