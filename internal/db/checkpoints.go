package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/research-agent/internal/step"
)

var _ step.CheckpointStore = (*DB)(nil)

// GetCheckpoint implements step.CheckpointStore.
func (db *DB) GetCheckpoint(ctx context.Context, runID uuid.UUID, stepName string) (*step.Checkpoint, error) {
	cp := step.Checkpoint{RunID: runID, Step: stepName}
	var output []byte
	err := db.pool.QueryRow(ctx,
		`SELECT output, completed_at FROM run_checkpoints WHERE run_id = $1 AND step = $2`,
		runID, stepName,
	).Scan(&output, &cp.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	cp.Output = output
	return &cp, nil
}

// SaveCheckpoint implements step.CheckpointStore. The first write wins.
func (db *DB) SaveCheckpoint(ctx context.Context, runID uuid.UUID, stepName string, output []byte) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO run_checkpoints (run_id, step, output) VALUES ($1, $2, $3)
		 ON CONFLICT (run_id, step) DO NOTHING`,
		runID, stepName, output,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// ClearCheckpoints removes checkpoints whose step name starts with prefix,
// or all of a run's checkpoints when prefix is empty.
func (db *DB) ClearCheckpoints(ctx context.Context, runID uuid.UUID, prefix string) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM run_checkpoints WHERE run_id = $1 AND starts_with(step, $2)`,
		runID, prefix,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	return tag.RowsAffected(), nil
}
