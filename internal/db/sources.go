package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/research-agent/internal/types"
)

// InsertSources appends sources to a run. Sources already stored for the
// run are skipped, so replays are harmless. It returns the number inserted.
func (db *DB) InsertSources(ctx context.Context, runID uuid.UUID, sources []types.SourceCandidate) (int, error) {
	if len(sources) == 0 {
		return 0, nil
	}

	var offset int
	if err := db.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM research_sources WHERE run_id = $1`, runID,
	).Scan(&offset); err != nil {
		return 0, fmt.Errorf("failed to read source position: %w", err)
	}

	batch := &pgx.Batch{}
	for i, s := range sources {
		metadata, err := json.Marshal(s.Metadata)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal metadata for %s: %w", s.URL, err)
		}
		excerpts := s.TopDiscussionExcerpts
		if excerpts == nil {
			excerpts = []types.DiscussionExcerpt{}
		}
		excerptsJSON, err := json.Marshal(excerpts)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal excerpts for %s: %w", s.URL, err)
		}
		batch.Queue(
			`INSERT INTO research_sources
			   (run_id, position, url, title, raw_content, source_type, provider, metadata, top_discussion_excerpts, rank_score)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (run_id, url) DO NOTHING`,
			runID, offset+i, s.URL, s.Title, s.RawContent, string(s.SourceType), s.Provider,
			metadata, excerptsJSON, s.RankScore,
		)
	}

	return db.execBatch(ctx, batch, "source")
}

// ListSources returns a run's sources in insertion order.
func (db *DB) ListSources(ctx context.Context, runID uuid.UUID) ([]types.SourceCandidate, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT url, title, raw_content, source_type, provider, metadata, top_discussion_excerpts, rank_score
		 FROM research_sources WHERE run_id = $1 ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []types.SourceCandidate
	for rows.Next() {
		var (
			s                      types.SourceCandidate
			sourceType             string
			metadata, excerptsJSON []byte
		)
		if err := rows.Scan(&s.URL, &s.Title, &s.RawContent, &sourceType, &s.Provider,
			&metadata, &excerptsJSON, &s.RankScore); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		s.SourceType = types.SourceType(sourceType)
		if err := json.Unmarshal(metadata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", s.URL, err)
		}
		if err := json.Unmarshal(excerptsJSON, &s.TopDiscussionExcerpts); err != nil {
			return nil, fmt.Errorf("failed to decode excerpts for %s: %w", s.URL, err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}
