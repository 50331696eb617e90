package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/research-agent/internal/cache"
	"github.com/jonathan/research-agent/internal/types"
)

// ErrRunNotFound is returned when a run does not exist.
var ErrRunNotFound = errors.New("research run not found")

// notTerminal guards updates that must not leave a terminal state
const notTerminal = `status NOT IN ('completed', 'failed', 'cancelled')`

const runColumns = `id, user_id, prompt, COALESCE(refined_prompt, ''), COALESCE(prompt_hash, ''), status,
	progress, search_method, scope, analysis_result, error_message, created_at, updated_at, completed_at`

// CreateRunInput is the data needed to create a run
type CreateRunInput struct {
	UserID       uuid.UUID
	Prompt       string
	SearchMethod types.SearchMethod
	Scope        types.Scope
}

// CreateRun inserts a pending run and returns its ID.
func (db *DB) CreateRun(ctx context.Context, in CreateRunInput) (uuid.UUID, error) {
	in.SearchMethod = in.SearchMethod.OrDefault()
	in.Scope = in.Scope.OrDefault()
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`INSERT INTO research_runs (user_id, prompt, search_method, scope)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		in.UserID, in.Prompt, string(in.SearchMethod), string(in.Scope),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// GetRun retrieves a run by ID.
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*types.ResearchRun, error) {
	var (
		run            types.ResearchRun
		status, method string
		scope          string
		resultJSON     []byte
	)
	err := db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM research_runs WHERE id = $1`, runID,
	).Scan(&run.ID, &run.UserID, &run.Prompt, &run.RefinedPrompt, &run.PromptHash, &status,
		&run.Progress, &method, &scope, &resultJSON, &run.ErrorMessage,
		&run.CreatedAt, &run.UpdatedAt, &run.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	run.Status = types.RunStatus(status)
	run.SearchMethod = types.SearchMethod(method)
	run.Scope = types.Scope(scope)
	if resultJSON != nil {
		var res types.AnalysisResult
		if err := json.Unmarshal(resultJSON, &res); err != nil {
			return nil, fmt.Errorf("failed to decode analysis result: %w", err)
		}
		run.AnalysisResult = &res
	}
	return &run, nil
}

// GetRunStatus reads only the status, for cancellation checks.
func (db *DB) GetRunStatus(ctx context.Context, runID uuid.UUID) (types.RunStatus, error) {
	var status string
	err := db.pool.QueryRow(ctx, `SELECT status FROM research_runs WHERE id = $1`, runID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrRunNotFound
		}
		return "", fmt.Errorf("failed to get run status: %w", err)
	}
	return types.RunStatus(status), nil
}

// StartRun moves a non-terminal run to in_progress and clears any previous error.
func (db *DB) StartRun(ctx context.Context, runID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE research_runs SET status = 'in_progress', error_message = NULL, updated_at = NOW()
		 WHERE id = $1 AND `+notTerminal,
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// ResetRunForRetry reopens a failed run so it can be started again.
func (db *DB) ResetRunForRetry(ctx context.Context, runID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE research_runs SET status = 'pending', error_message = NULL, updated_at = NOW()
		 WHERE id = $1 AND status = 'failed'`,
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to reset run: %w", err)
	}
	return nil
}

// UpdateProgress raises progress; it never lowers it.
func (db *DB) UpdateProgress(ctx context.Context, runID uuid.UUID, progress int) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE research_runs SET progress = GREATEST(progress, $2), updated_at = NOW() WHERE id = $1`,
		runID, progress,
	)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

// SetRefinedPrompt stores the refined prompt and the query cache hash.
func (db *DB) SetRefinedPrompt(ctx context.Context, runID uuid.UUID, refined, hash string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE research_runs SET refined_prompt = $2, prompt_hash = $3, updated_at = NOW() WHERE id = $1`,
		runID, refined, hash,
	)
	if err != nil {
		return fmt.Errorf("failed to set refined prompt: %w", err)
	}
	return nil
}

// SaveAnalysisResult stores the analysis result of a run.
func (db *DB) SaveAnalysisResult(ctx context.Context, runID uuid.UUID, result *types.AnalysisResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis result: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`UPDATE research_runs SET analysis_result = $2, updated_at = NOW() WHERE id = $1`,
		runID, data,
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis result: %w", err)
	}
	return nil
}

// CompleteRun marks a run completed with progress 100.
func (db *DB) CompleteRun(ctx context.Context, runID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE research_runs
		 SET status = 'completed', progress = 100, completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND `+notTerminal,
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// FailRun marks a run failed. A cancelled or completed run is left as is.
func (db *DB) FailRun(ctx context.Context, runID uuid.UUID, message string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE research_runs SET status = 'failed', error_message = $2, updated_at = NOW()
		 WHERE id = $1 AND `+notTerminal,
		runID, message,
	)
	if err != nil {
		return fmt.Errorf("failed to mark run failed: %w", err)
	}
	return nil
}

// CancelRun requests cooperative cancellation.
func (db *DB) CancelRun(ctx context.Context, runID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE research_runs SET status = 'cancelled', updated_at = NOW() WHERE id = $1 AND `+notTerminal,
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel run: %w", err)
	}
	return nil
}

// LatestCompletedRunByHash implements cache.Store.
func (db *DB) LatestCompletedRunByHash(ctx context.Context, hash string) (*cache.CompletedRun, error) {
	var run cache.CompletedRun
	err := db.pool.QueryRow(ctx,
		`SELECT id, completed_at FROM research_runs
		 WHERE prompt_hash = $1 AND status = 'completed' AND completed_at IS NOT NULL
		 ORDER BY completed_at DESC LIMIT 1`,
		hash,
	).Scan(&run.RunID, &run.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up cached run: %w", err)
	}
	return &run, nil
}
