// Package syncstore – MemoryStore
//
// An in-process RemoteStore used in tests and single-node deployments where
// no cloud target is configured.
package syncstore

import (
	"context"
	"sort"
	"sync"

	"github.com/strideapp/go-habit-backend/internal/domain"
)

// MemoryStore is a RemoteStore backed by process memory. Safe for concurrent
// use.
type MemoryStore struct {
	mu sync.RWMutex
	// partitions[userID][yearMonth] -> events
	partitions map[string]map[string][]domain.ProgressEvent
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{partitions: make(map[string]map[string][]domain.ProgressEvent)}
}

// Months implements RemoteStore.
func (m *MemoryStore) Months(_ context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	months := make([]string, 0, len(m.partitions[userID]))
	for ym := range m.partitions[userID] {
		months = append(months, ym)
	}
	sort.Strings(months)
	return months, nil
}

// Events implements RemoteStore.
func (m *MemoryStore) Events(_ context.Context, userID, yearMonth string) ([]domain.ProgressEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.partitions[userID][yearMonth]
	out := make([]domain.ProgressEvent, len(src))
	copy(out, src)
	return out, nil
}

// PutEvents implements RemoteStore.
func (m *MemoryStore) PutEvents(_ context.Context, userID, yearMonth string, events []domain.ProgressEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.partitions[userID] == nil {
		m.partitions[userID] = make(map[string][]domain.ProgressEvent)
	}
	cp := make([]domain.ProgressEvent, len(events))
	copy(cp, events)
	m.partitions[userID][yearMonth] = cp
	return nil
}
