package step

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps checkpoints in memory.
type MemoryStore struct {
	mu          sync.Mutex
	checkpoints map[string]Checkpoint
	saved       []string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checkpoints: make(map[string]Checkpoint)}
}

func key(runID uuid.UUID, step string) string {
	return runID.String() + "/" + step
}

// GetCheckpoint implements CheckpointStore.
func (s *MemoryStore) GetCheckpoint(_ context.Context, runID uuid.UUID, step string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.checkpoints[key(runID, step)]
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

// SaveCheckpoint implements CheckpointStore. The first write wins.
func (s *MemoryStore) SaveCheckpoint(_ context.Context, runID uuid.UUID, step string, output []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(runID, step)
	if _, ok := s.checkpoints[k]; ok {
		return nil
	}
	s.checkpoints[k] = Checkpoint{
		RunID:       runID,
		Step:        step,
		Output:      append([]byte(nil), output...),
		CompletedAt: time.Now(),
	}
	s.saved = append(s.saved, step)
	return nil
}

// Steps returns completed step names in completion order.
func (s *MemoryStore) Steps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.saved...)
}

// NewMemoryExecutor returns an executor over a fresh MemoryStore with no
// retries and no real sleeping. Used for dry runs and tests.
func NewMemoryExecutor() *CheckpointExecutor {
	e := NewCheckpointExecutor(NewMemoryStore(), uuid.Nil, 0)
	e.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return e
}

// Store returns the executor's checkpoint store.
func (e *CheckpointExecutor) Store() CheckpointStore {
	return e.store
}
