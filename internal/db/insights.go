package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/research-agent/internal/types"
)

// execBatch runs a batch of n statements and returns the rows affected.
func (db *DB) execBatch(ctx context.Context, batch *pgx.Batch, what string) (int, error) {
	results := db.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	affected := 0
	for i := 0; i < batch.Len(); i++ {
		tag, err := results.Exec()
		if err != nil {
			return affected, fmt.Errorf("failed to insert %s: %w", what, err)
		}
		affected += int(tag.RowsAffected())
	}
	return affected, nil
}

// InsertInsights stores insights; duplicates by (category, title) are skipped.
func (db *DB) InsertInsights(ctx context.Context, runID uuid.UUID, insights []types.Insight) (int, error) {
	if len(insights) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for i, in := range insights {
		batch.Queue(
			`INSERT INTO research_insights (run_id, position, title, content, category, confidence)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (run_id, category, title) DO NOTHING`,
			runID, i, in.Title, in.Content, in.Category, in.Confidence,
		)
	}
	return db.execBatch(ctx, batch, "insight")
}

// ListInsights returns a run's insights in order.
func (db *DB) ListInsights(ctx context.Context, runID uuid.UUID) ([]types.Insight, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT title, content, category, confidence FROM research_insights
		 WHERE run_id = $1 ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}
	defer rows.Close()

	var out []types.Insight
	for rows.Next() {
		var in types.Insight
		if err := rows.Scan(&in.Title, &in.Content, &in.Category, &in.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan insight: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// InsertActionItems stores action items keyed by position.
func (db *DB) InsertActionItems(ctx context.Context, runID uuid.UUID, items []types.ActionItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for i, a := range items {
		batch.Queue(
			`INSERT INTO research_action_items (run_id, position, title, description, priority, category)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (run_id, position) DO NOTHING`,
			runID, i, a.Title, a.Description, string(a.Priority), a.Category,
		)
	}
	return db.execBatch(ctx, batch, "action item")
}

// ListActionItems returns a run's action items in order.
func (db *DB) ListActionItems(ctx context.Context, runID uuid.UUID) ([]types.ActionItem, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT title, description, priority, category FROM research_action_items
		 WHERE run_id = $1 ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list action items: %w", err)
	}
	defer rows.Close()

	var out []types.ActionItem
	for rows.Next() {
		var (
			a        types.ActionItem
			priority string
		)
		if err := rows.Scan(&a.Title, &a.Description, &priority, &a.Category); err != nil {
			return nil, fmt.Errorf("failed to scan action item: %w", err)
		}
		a.Priority = types.Priority(priority)
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertLeads stores leads; duplicates by (name, url) are skipped.
func (db *DB) InsertLeads(ctx context.Context, runID uuid.UUID, leads []types.Lead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, l := range leads {
		batch.Queue(
			`INSERT INTO research_leads (run_id, name, platform, url, context, intent_signal, score)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (run_id, name, url) DO NOTHING`,
			runID, l.Name, l.Platform, l.URL, l.Context, l.IntentSignal, l.Score,
		)
	}
	return db.execBatch(ctx, batch, "lead")
}

// ListLeads returns a run's leads, highest score first.
func (db *DB) ListLeads(ctx context.Context, runID uuid.UUID) ([]types.Lead, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT name, platform, url, context, intent_signal, score FROM research_leads
		 WHERE run_id = $1 ORDER BY score DESC, created_at`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	defer rows.Close()

	var out []types.Lead
	for rows.Next() {
		var l types.Lead
		if err := rows.Scan(&l.Name, &l.Platform, &l.URL, &l.Context, &l.IntentSignal, &l.Score); err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
