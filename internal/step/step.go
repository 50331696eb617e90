// Package step provides a durable, checkpointed step executor.
//
// A step is identified by its name within a run. The first successful
// execution stores the step output as JSON; later executions of the same
// step, for example after a crash and re-delivery of the run event, decode
// the stored output instead of running the function again.
package step

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/research-agent/internal/logging"
)

// DefaultRetries is the number of extra attempts after a failed step.
const DefaultRetries = 2

// Executor runs memoized steps.
type Executor interface {
	// Run executes fn once per name and decodes its result into out.
	// out may be nil when the step produces nothing.
	Run(ctx context.Context, name string, out any, fn func(ctx context.Context) (any, error)) error
	// Sleep pauses for d unless the named sleep already completed.
	Sleep(ctx context.Context, name string, d time.Duration) error
}

// Checkpoint is the stored output of a completed step
type Checkpoint struct {
	RunID       uuid.UUID
	Step        string
	Output      json.RawMessage
	CompletedAt time.Time
}

// CheckpointStore persists step outputs. GetCheckpoint returns nil, nil when
// the step has not completed.
type CheckpointStore interface {
	GetCheckpoint(ctx context.Context, runID uuid.UUID, step string) (*Checkpoint, error)
	SaveCheckpoint(ctx context.Context, runID uuid.UUID, step string, output []byte) error
}

// permanentError marks a failure that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the executor does not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// CheckpointExecutor is an Executor backed by a CheckpointStore.
type CheckpointExecutor struct {
	store   CheckpointStore
	runID   uuid.UUID
	retries int
	// RetryDelay is the pause before each retry, doubled per attempt
	RetryDelay time.Duration
	Logger     *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewCheckpointExecutor returns an executor for one run.
func NewCheckpointExecutor(store CheckpointStore, runID uuid.UUID, retries int) *CheckpointExecutor {
	if retries < 0 {
		retries = 0
	}
	return &CheckpointExecutor{
		store:      store,
		runID:      runID,
		retries:    retries,
		RetryDelay: time.Second,
	}
}

// Run implements Executor.
func (e *CheckpointExecutor) Run(ctx context.Context, name string, out any, fn func(ctx context.Context) (any, error)) error {
	logger := logging.OrNop(e.Logger).With(zap.String("run_id", e.runID.String()), zap.String("stage", name))

	cp, err := e.store.GetCheckpoint(ctx, e.runID, name)
	if err != nil {
		return fmt.Errorf("failed to read checkpoint %s: %w", name, err)
	}
	if cp != nil {
		logger.Debug("replaying checkpointed step")
		return decode(cp.Output, out, name)
	}

	var result any
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err = fn(ctx)
		if err == nil {
			break
		}
		if IsPermanent(err) || attempt >= e.retries {
			return err
		}
		backoff := e.RetryDelay << attempt
		logger.Warn("step failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		if err := e.pause(ctx, backoff); err != nil {
			return err
		}
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode output of %s: %w", name, err)
	}
	if err := e.store.SaveCheckpoint(ctx, e.runID, name, data); err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", name, err)
	}
	return decode(data, out, name)
}

// Sleep implements Executor.
func (e *CheckpointExecutor) Sleep(ctx context.Context, name string, d time.Duration) error {
	cp, err := e.store.GetCheckpoint(ctx, e.runID, name)
	if err != nil {
		return fmt.Errorf("failed to read checkpoint %s: %w", name, err)
	}
	if cp != nil {
		return nil
	}
	if err := e.pause(ctx, d); err != nil {
		return err
	}
	return e.store.SaveCheckpoint(ctx, e.runID, name, []byte("null"))
}

func (e *CheckpointExecutor) pause(ctx context.Context, d time.Duration) error {
	if e.sleep != nil {
		return e.sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func decode(data []byte, out any, name string) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode output of %s: %w", name, err)
	}
	return nil
}
