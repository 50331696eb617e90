package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/research-agent/internal/types"
)

var (
	now    = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	userID = uuid.MustParse("3f1c2d6e-8d4b-4a5e-9a51-0c7e1f2a3b4c")
)

type failingStore struct{}

func (failingStore) LatestCompletedRunByHash(context.Context, string) (*CompletedRun, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) GetCachedExtractions(context.Context, []string) (map[string]types.CachedExtraction, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) UpsertCachedExtraction(context.Context, types.CachedExtraction) error {
	return errors.New("connection refused")
}

func TestNormalizePrompt(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "Invoice tools for freelancers", expected: "invoice tools for freelancers"},
		{input: "  Invoice   tools\tfor\nfreelancers!!  ", expected: "invoice tools for freelancers"},
		{input: "What's hard about invoicing?", expected: "whats hard about invoicing"},
		{input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePrompt(tt.input))
		})
	}
}

func TestGeneratePromptHash_EquivalentPrompts(t *testing.T) {
	variants := []string{
		"Pain points of freelance invoicing",
		"pain points of freelance invoicing",
		"  PAIN   points, of freelance invoicing?",
		"Pain points of freelance invoicing.",
	}
	want := GeneratePromptHash(userID, "pain points of freelance invoicing")
	for _, v := range variants {
		assert.Equal(t, want, GeneratePromptHash(userID, v), v)
	}
	assert.Len(t, want, 64)
}

func TestGeneratePromptHash_DiffersByUserAndPrompt(t *testing.T) {
	other := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	base := GeneratePromptHash(userID, "invoice tools")

	assert.NotEqual(t, base, GeneratePromptHash(other, "invoice tools"))
	assert.NotEqual(t, base, GeneratePromptHash(userID, "invoice apps"))
}

func TestQueryCache_TTLBoundary(t *testing.T) {
	prompt := "invoice tools for freelancers"
	runID := uuid.New()

	tests := []struct {
		name        string
		completedAt time.Time
		hit         bool
	}{
		{name: "just inside", completedAt: now.Add(-24*time.Hour + time.Second), hit: true},
		{name: "just outside", completedAt: now.Add(-24*time.Hour - time.Second), hit: false},
		{name: "recent", completedAt: now.Add(-time.Minute), hit: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			store.RecordCompletedRun(GeneratePromptHash(userID, prompt), CompletedRun{RunID: runID, CompletedAt: tt.completedAt})
			qc := NewQueryCache(store, 0, nil)

			got := qc.Lookup(context.Background(), userID, prompt, now)
			if tt.hit {
				require.NotNil(t, got)
				assert.Equal(t, runID, *got)
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

func TestQueryCache_MissesOnOtherUserOrError(t *testing.T) {
	store := NewMemoryStore()
	store.RecordCompletedRun(GeneratePromptHash(userID, "x"), CompletedRun{RunID: uuid.New(), CompletedAt: now})

	assert.Nil(t, NewQueryCache(store, 0, nil).Lookup(context.Background(), uuid.New(), "x", now))
	assert.Nil(t, NewQueryCache(failingStore{}, 0, nil).Lookup(context.Background(), userID, "x", now))

	var nilCache *QueryCache
	assert.Nil(t, nilCache.Lookup(context.Background(), userID, "x", now))
}

func TestURLCache_PartitionTTLBoundary(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.UpsertCachedExtraction(ctx, types.CachedExtraction{
		URL: "https://fresh.example.com", Content: "fresh", ExtractedAt: now.Add(-7*24*time.Hour + time.Second),
	}))
	require.NoError(t, store.UpsertCachedExtraction(ctx, types.CachedExtraction{
		URL: "https://stale.example.com", Content: "stale", ExtractedAt: now.Add(-7*24*time.Hour - time.Second),
	}))

	uc := NewURLCache(store, 0, nil)
	urls := []string{"https://stale.example.com", "https://fresh.example.com", "https://new.example.com", "https://new.example.com"}
	cached, toFetch := uc.Partition(ctx, urls, now)

	require.Len(t, cached, 1)
	assert.Equal(t, "fresh", cached["https://fresh.example.com"].Content)
	assert.Equal(t, []string{"https://stale.example.com", "https://new.example.com"}, toFetch)
}

func TestURLCache_PartitionErrorFetchesEverything(t *testing.T) {
	uc := NewURLCache(failingStore{}, 0, nil)
	cached, toFetch := uc.Partition(context.Background(), []string{"a", "b"}, now)

	assert.Empty(t, cached)
	assert.Equal(t, []string{"a", "b"}, toFetch)
}

func TestURLCache_StoreNewestWins(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	uc := NewURLCache(store, 0, nil)

	require.NoError(t, uc.Store(ctx, types.CachedExtraction{URL: "u", Content: "new", ExtractedAt: now}))
	require.NoError(t, uc.Store(ctx, types.CachedExtraction{URL: "u", Content: "old", ExtractedAt: now.Add(-time.Hour)}))

	got, err := store.GetCachedExtractions(ctx, []string{"u"})
	require.NoError(t, err)
	assert.Equal(t, "new", got["u"].Content)
}
