package cache

import (
	"context"
	"sync"

	"github.com/jonathan/research-agent/internal/types"
)

// MemoryStore is an in-process Store for dry runs and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	runs        map[string]CompletedRun
	extractions map[string]types.CachedExtraction
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:        make(map[string]CompletedRun),
		extractions: make(map[string]types.CachedExtraction),
	}
}

// RecordCompletedRun registers a completed run under a prompt hash.
func (m *MemoryStore) RecordCompletedRun(promptHash string, run CompletedRun) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.runs[promptHash]; ok && prev.CompletedAt.After(run.CompletedAt) {
		return
	}
	m.runs[promptHash] = run
}

// LatestCompletedRunByHash implements Store.
func (m *MemoryStore) LatestCompletedRunByHash(_ context.Context, promptHash string) (*CompletedRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[promptHash]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

// GetCachedExtractions implements Store.
func (m *MemoryStore) GetCachedExtractions(_ context.Context, urls []string) (map[string]types.CachedExtraction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]types.CachedExtraction)
	for _, u := range urls {
		if e, ok := m.extractions[u]; ok {
			out[u] = e
		}
	}
	return out, nil
}

// UpsertCachedExtraction implements Store. An older entry never replaces a newer one.
func (m *MemoryStore) UpsertCachedExtraction(_ context.Context, entry types.CachedExtraction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.extractions[entry.URL]; ok && prev.ExtractedAt.After(entry.ExtractedAt) {
		return nil
	}
	m.extractions[entry.URL] = entry
	return nil
}

var _ Store = (*MemoryStore)(nil)

