package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/research-agent/internal/credentials"
)

var _ credentials.Backend = (*DB)(nil)

// GetUserAPIKeys implements credentials.Backend.
func (db *DB) GetUserAPIKeys(ctx context.Context, userID uuid.UUID) (map[string][]byte, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT provider, ciphertext FROM user_api_keys WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get api keys: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var (
			provider   string
			ciphertext []byte
		)
		if err := rows.Scan(&provider, &ciphertext); err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		out[provider] = ciphertext
	}
	return out, rows.Err()
}

// UpsertUserAPIKey implements credentials.Backend.
func (db *DB) UpsertUserAPIKey(ctx context.Context, userID uuid.UUID, provider string, ciphertext []byte) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO user_api_keys (user_id, provider, ciphertext) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, provider) DO UPDATE SET ciphertext = EXCLUDED.ciphertext, updated_at = NOW()`,
		userID, provider, ciphertext,
	)
	if err != nil {
		return fmt.Errorf("failed to store api key: %w", err)
	}
	return nil
}

// GetModelPreference implements credentials.Backend. Users without settings get "".
func (db *DB) GetModelPreference(ctx context.Context, userID uuid.UUID) (string, error) {
	var pref string
	err := db.pool.QueryRow(ctx,
		`SELECT model_preference FROM user_settings WHERE user_id = $1`, userID,
	).Scan(&pref)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get model preference: %w", err)
	}
	return pref, nil
}

// SetModelPreference stores a user's preferred provider and model.
func (db *DB) SetModelPreference(ctx context.Context, userID uuid.UUID, pref string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO user_settings (user_id, model_preference) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET model_preference = EXCLUDED.model_preference, updated_at = NOW()`,
		userID, pref,
	)
	if err != nil {
		return fmt.Errorf("failed to set model preference: %w", err)
	}
	return nil
}
