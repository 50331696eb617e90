// Package cache implements the two retrieval cache tiers.
//
// The query tier maps a normalized prompt to a prior completed run so the
// whole pipeline can be skipped. The URL tier maps a page URL to its last
// extraction so only stale or unseen pages are fetched again. Both tiers are
// advisory: lookup errors are reported as misses.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/research-agent/internal/logging"
	"github.com/jonathan/research-agent/internal/types"
)

// Default TTLs
const (
	DefaultQueryTTL = 24 * time.Hour
	DefaultURLTTL   = 7 * 24 * time.Hour
)

// CompletedRun is the newest completed run for a prompt hash.
type CompletedRun struct {
	RunID       uuid.UUID
	CompletedAt time.Time
}

// Store is the persistence behind both tiers.
type Store interface {
	// LatestCompletedRunByHash returns nil when no completed run has the hash.
	LatestCompletedRunByHash(ctx context.Context, promptHash string) (*CompletedRun, error)
	// GetCachedExtractions returns the newest entry for each known URL.
	GetCachedExtractions(ctx context.Context, urls []string) (map[string]types.CachedExtraction, error)
	UpsertCachedExtraction(ctx context.Context, entry types.CachedExtraction) error
}

// NormalizePrompt lowercases, strips punctuation and collapses whitespace.
func NormalizePrompt(prompt string) string {
	var b strings.Builder
	b.Grow(len(prompt))
	for _, r := range strings.ToLower(prompt) {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// GeneratePromptHash is the query tier key.
func GeneratePromptHash(userID uuid.UUID, prompt string) string {
	sum := sha256.Sum256([]byte(userID.String() + ":" + NormalizePrompt(prompt)))
	return hex.EncodeToString(sum[:])
}

// QueryCache is the query tier.
type QueryCache struct {
	Backend Store
	TTL     time.Duration
	Logger  *zap.Logger
}

// NewQueryCache returns a QueryCache with the default TTL when ttl is zero.
func NewQueryCache(store Store, ttl time.Duration, logger *zap.Logger) *QueryCache {
	if ttl <= 0 {
		ttl = DefaultQueryTTL
	}
	return &QueryCache{Backend: store, TTL: ttl, Logger: logger}
}

// Lookup returns the id of a completed run for the same user and prompt that
// finished less than TTL before now, or nil.
func (c *QueryCache) Lookup(ctx context.Context, userID uuid.UUID, prompt string, now time.Time) *uuid.UUID {
	if c == nil || c.Backend == nil {
		return nil
	}
	hash := GeneratePromptHash(userID, prompt)
	run, err := c.Backend.LatestCompletedRunByHash(ctx, hash)
	if err != nil {
		logging.OrNop(c.Logger).Warn("query cache lookup failed", zap.Error(err))
		return nil
	}
	if run == nil || now.Sub(run.CompletedAt) >= c.TTL {
		return nil
	}
	id := run.RunID
	return &id
}

// URLCache is the URL tier.
type URLCache struct {
	Backend Store
	TTL     time.Duration
	Logger  *zap.Logger
}

// NewURLCache returns a URLCache with the default TTL when ttl is zero.
func NewURLCache(store Store, ttl time.Duration, logger *zap.Logger) *URLCache {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	return &URLCache{Backend: store, TTL: ttl, Logger: logger}
}

// Partition splits urls into fresh cached extractions and URLs that still
// need fetching. toFetch keeps the input order and drops duplicates.
func (c *URLCache) Partition(ctx context.Context, urls []string, now time.Time) (cached map[string]types.CachedExtraction, toFetch []string) {
	cached = make(map[string]types.CachedExtraction)
	urls = dedupe(urls)
	if c == nil || c.Backend == nil || len(urls) == 0 {
		return cached, urls
	}

	found, err := c.Backend.GetCachedExtractions(ctx, urls)
	if err != nil {
		logging.OrNop(c.Logger).Warn("url cache lookup failed", zap.Int("urls", len(urls)), zap.Error(err))
		return cached, urls
	}

	for _, u := range urls {
		if entry, ok := found[u]; ok && entry.IsFresh(now, c.TTL) {
			cached[u] = entry
			continue
		}
		toFetch = append(toFetch, u)
	}
	return cached, toFetch
}

// Store records a successful extraction. The newest entry for a URL wins.
func (c *URLCache) Store(ctx context.Context, entry types.CachedExtraction) error {
	if c == nil || c.Backend == nil {
		return nil
	}
	return c.Backend.UpsertCachedExtraction(ctx, entry)
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	var out []string
	for _, u := range urls {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}
