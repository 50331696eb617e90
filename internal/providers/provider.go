// Package providers adapts heterogeneous search backends to a common
// SourceCandidate stream.
//
// Adapters never return errors: a failed request is logged and yields an
// empty or partial result so one dead backend cannot abort a run.
package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/research-agent/internal/fetch"
	"github.com/jonathan/research-agent/internal/logging"
	"github.com/jonathan/research-agent/internal/types"
)

// Provider is one search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, opts SearchOptions) []types.SourceCandidate
}

// TimeRange values understood by the adapters.
const (
	TimeRangeDay   = "day"
	TimeRangeWeek  = "week"
	TimeRangeMonth = "month"
	TimeRangeYear  = "year"
	TimeRangeAll   = "all"
)

// SearchOptions shape a single search.
type SearchOptions struct {
	Limit int
	// MinScore drops items with lower engagement. Applied by the adapter.
	MinScore        int
	TimeRange       string
	FetchDiscussion bool
	// TopDiscussion caps the discussion excerpts fetched per item
	TopDiscussion int
}

// DefaultSearchOptions returns the options used by the standard pipeline.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		Limit:           10,
		MinScore:        10,
		TimeRange:       TimeRangeYear,
		FetchDiscussion: true,
		TopDiscussion:   5,
	}
}

func (o SearchOptions) withDefaults() SearchOptions {
	d := DefaultSearchOptions()
	if o.Limit <= 0 {
		o.Limit = d.Limit
	}
	if o.TimeRange == "" {
		o.TimeRange = d.TimeRange
	}
	if o.TopDiscussion <= 0 {
		o.TopDiscussion = d.TopDiscussion
	}
	return o
}

// since returns the cutoff for a time range, or zero for TimeRangeAll.
func since(timeRange string, now time.Time) time.Time {
	switch timeRange {
	case TimeRangeDay:
		return now.AddDate(0, 0, -1)
	case TimeRangeWeek:
		return now.AddDate(0, 0, -7)
	case TimeRangeMonth:
		return now.AddDate(0, -1, 0)
	case TimeRangeYear:
		return now.AddDate(-1, 0, 0)
	default:
		return time.Time{}
	}
}

const maxExcerptChars = 500

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Discover runs every adapter concurrently and merges the results. Duplicate
// URLs keep the first occurrence in adapter order.
func Discover(ctx context.Context, adapters []Provider, query string, opts SearchOptions, logger *zap.Logger) []types.SourceCandidate {
	logger = logging.OrNop(logger)
	results := make([][]types.SourceCandidate, len(adapters))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range adapters {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("provider panicked", zap.String("provider", p.Name()), zap.Any("panic", r))
				}
			}()
			start := time.Now()
			results[i] = p.Search(gctx, query, opts)
			logger.Debug("provider search finished",
				zap.String("provider", p.Name()),
				zap.Int("results", len(results[i])),
				zap.Duration("elapsed", time.Since(start)))
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool)
	var merged []types.SourceCandidate
	for _, batch := range results {
		for _, c := range batch {
			if c.URL == "" || seen[c.URL] {
				continue
			}
			seen[c.URL] = true
			merged = append(merged, c)
		}
	}
	return merged
}

// Config carries what ForMethod needs to build adapters.
type Config struct {
	GeminiKey       string
	GroundingModel  string
	GoogleSearchKey string
	GoogleSearchCX  string
	HTTP            *fetch.Options
	Logger          *zap.Logger
}

// ForMethod returns the adapters for a search method. deep_research uses an
// external delegate and has no adapters.
func ForMethod(ctx context.Context, method types.SearchMethod, cfg Config) ([]Provider, error) {
	logger := logging.OrNop(cfg.Logger)
	switch method {
	case types.SearchMethodStandard, "":
		adapters := []Provider{
			NewReddit(cfg.HTTP, logger),
			NewHackerNews(cfg.HTTP, logger),
			NewWebSearch(logger),
		}
		if cfg.GeminiKey != "" {
			grounded, err := NewGroundedSearch(ctx, cfg.GeminiKey, cfg.GroundingModel, logger)
			if err != nil {
				logger.Warn("grounded search unavailable", zap.Error(err))
			} else {
				adapters = append(adapters, grounded)
			}
		}
		return adapters, nil
	case types.SearchMethodPaidSearch:
		if cfg.GoogleSearchKey == "" || cfg.GoogleSearchCX == "" {
			return nil, fmt.Errorf("paid search requires a Google search key and engine id")
		}
		cs, err := NewCustomSearch(ctx, cfg.GoogleSearchKey, cfg.GoogleSearchCX, logger)
		if err != nil {
			return nil, err
		}
		return []Provider{cs}, nil
	case types.SearchMethodDeepResearch:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown search method: %s", method)
	}
}
