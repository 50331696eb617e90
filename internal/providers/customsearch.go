package providers

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/jonathan/research-agent/internal/logging"
	"github.com/jonathan/research-agent/internal/types"
)

// Programmable Search returns at most 10 results per page and 100 in total.
const (
	customSearchPageSize = 10
	customSearchMaxStart = 91
)

// CustomSearch queries Google Programmable Search.
type CustomSearch struct {
	svc    *customsearch.Service
	cx     string
	Logger *zap.Logger
}

// NewCustomSearch creates a CustomSearch adapter. Extra client options are
// appended after the API key.
func NewCustomSearch(ctx context.Context, apiKey, cx string, logger *zap.Logger, opts ...option.ClientOption) (*CustomSearch, error) {
	svc, err := customsearch.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create customsearch service: %w", err)
	}
	return &CustomSearch{svc: svc, cx: cx, Logger: logging.OrNop(logger)}, nil
}

// Name implements Provider.
func (c *CustomSearch) Name() string { return "customsearch" }

func dateRestrict(timeRange string) string {
	switch timeRange {
	case TimeRangeDay:
		return "d1"
	case TimeRangeWeek:
		return "w1"
	case TimeRangeMonth:
		return "m1"
	case TimeRangeYear:
		return "y1"
	default:
		return ""
	}
}

// Search implements Provider.
func (c *CustomSearch) Search(ctx context.Context, query string, opts SearchOptions) []types.SourceCandidate {
	opts = opts.withDefaults()
	logger := logging.OrNop(c.Logger)

	var out []types.SourceCandidate
	seen := make(map[string]bool)
	for start := int64(1); len(out) < opts.Limit && start <= customSearchMaxStart; start += customSearchPageSize {
		num := int64(opts.Limit - len(out))
		if num > customSearchPageSize {
			num = customSearchPageSize
		}
		call := c.svc.Cse.List().Cx(c.cx).Q(query).Num(num).Start(start).Context(ctx)
		if dr := dateRestrict(opts.TimeRange); dr != "" {
			call = call.DateRestrict(dr)
		}

		resp, err := call.Do()
		if err != nil {
			logger.Warn("custom search failed", zap.String("provider", c.Name()), zap.Int64("start", start), zap.Error(err))
			break
		}
		for _, item := range resp.Items {
			if item.Link == "" || seen[item.Link] {
				continue
			}
			seen[item.Link] = true
			out = append(out, types.SourceCandidate{
				URL:        item.Link,
				Title:      item.Title,
				RawContent: item.Snippet,
				SourceType: types.SourceTypeGenericWeb,
				Provider:   "customsearch",
				Metadata: types.SourceMetadata{
					ProviderSpecific: map[string]string{"displayLink": item.DisplayLink},
				},
			})
		}
		if int64(len(resp.Items)) < num {
			break
		}
	}
	if len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}
