package db

import (
	"context"
	"fmt"

	"github.com/jonathan/research-agent/internal/cache"
	"github.com/jonathan/research-agent/internal/types"
)

var _ cache.Store = (*DB)(nil)

// GetCachedExtractions implements cache.Store. Freshness is checked by the caller.
func (db *DB) GetCachedExtractions(ctx context.Context, urls []string) (map[string]types.CachedExtraction, error) {
	out := make(map[string]types.CachedExtraction, len(urls))
	if len(urls) == 0 {
		return out, nil
	}
	rows, err := db.pool.Query(ctx,
		`SELECT url, title, content, excerpt, extracted_at FROM url_extraction_cache WHERE url = ANY($1)`,
		urls,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read extraction cache: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e types.CachedExtraction
		if err := rows.Scan(&e.URL, &e.Title, &e.Content, &e.Excerpt, &e.ExtractedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cached extraction: %w", err)
		}
		out[e.URL] = e
	}
	return out, rows.Err()
}

// UpsertCachedExtraction implements cache.Store. An older entry never
// replaces a newer one.
func (db *DB) UpsertCachedExtraction(ctx context.Context, e types.CachedExtraction) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO url_extraction_cache (url, title, content, excerpt, extracted_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (url) DO UPDATE SET
		   title = EXCLUDED.title,
		   content = EXCLUDED.content,
		   excerpt = EXCLUDED.excerpt,
		   extracted_at = EXCLUDED.extracted_at
		 WHERE url_extraction_cache.extracted_at < EXCLUDED.extracted_at`,
		e.URL, e.Title, e.Content, e.Excerpt, e.ExtractedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cached extraction: %w", err)
	}
	return nil
}

// PruneExtractionCache deletes entries extracted before the cutoff age.
func (db *DB) PruneExtractionCache(ctx context.Context, olderThanHours int) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM url_extraction_cache WHERE extracted_at < NOW() - make_interval(hours => $1)`,
		olderThanHours,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune extraction cache: %w", err)
	}
	return tag.RowsAffected(), nil
}
