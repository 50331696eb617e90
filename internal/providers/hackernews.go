package providers

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/jonathan/research-agent/internal/fetch"
	"github.com/jonathan/research-agent/internal/logging"
	"github.com/jonathan/research-agent/internal/types"
)

const (
	hnAlgoliaURL = "https://hn.algolia.com/api/v1"
	hnItemURL    = "https://news.ycombinator.com/item?id="
)

// HackerNews searches Hacker News through the Algolia API.
type HackerNews struct {
	BaseURL string
	HTTP    *fetch.Options
	Logger  *zap.Logger

	now    func() time.Time
	policy *bluemonday.Policy
}

// NewHackerNews returns a HackerNews adapter.
func NewHackerNews(httpOpts *fetch.Options, logger *zap.Logger) *HackerNews {
	return &HackerNews{
		BaseURL: hnAlgoliaURL,
		HTTP:    httpOpts,
		Logger:  logging.OrNop(logger),
		policy:  bluemonday.StrictPolicy(),
	}
}

// Name implements Provider.
func (h *HackerNews) Name() string { return "hackernews" }

type hnSearchResponse struct {
	Hits []hnHit `json:"hits"`
}

type hnHit struct {
	ObjectID    string `json:"objectID"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Author      string `json:"author"`
	Points      *int   `json:"points"`
	NumComments *int   `json:"num_comments"`
	CreatedAtI  int64  `json:"created_at_i"`
	StoryText   string `json:"story_text"`
}

type hnItem struct {
	ID       int      `json:"id"`
	Author   string   `json:"author"`
	Text     string   `json:"text"`
	Points   *int     `json:"points"`
	Children []hnItem `json:"children"`
}

func (h *HackerNews) base() string {
	if h.BaseURL == "" {
		return hnAlgoliaURL
	}
	return strings.TrimRight(h.BaseURL, "/")
}

func (h *HackerNews) sanitizer() *bluemonday.Policy {
	if h.policy == nil {
		return bluemonday.StrictPolicy()
	}
	return h.policy
}

// plainText strips comment HTML down to text.
func (h *HackerNews) plainText(s string) string {
	s = strings.NewReplacer("<p>", "\n", "<P>", "\n").Replace(s)
	return strings.TrimSpace(html.UnescapeString(h.sanitizer().Sanitize(s)))
}

// Search implements Provider.
func (h *HackerNews) Search(ctx context.Context, query string, opts SearchOptions) []types.SourceCandidate {
	opts = opts.withDefaults()
	logger := logging.OrNop(h.Logger)

	now := time.Now()
	if h.now != nil {
		now = h.now()
	}
	params := url.Values{
		"query":       {query},
		"tags":        {"story"},
		"hitsPerPage": {strconv.Itoa(opts.Limit)},
	}
	if cutoff := since(opts.TimeRange, now); !cutoff.IsZero() {
		params.Set("numericFilters", fmt.Sprintf("created_at_i>%d", cutoff.Unix()))
	}

	var resp hnSearchResponse
	if err := fetch.JSON(ctx, h.base()+"/search?"+params.Encode(), h.HTTP, &resp); err != nil {
		logger.Warn("hacker news search failed", zap.String("provider", h.Name()), zap.Error(err))
		return nil
	}

	var out []types.SourceCandidate
	for _, hit := range resp.Hits {
		if hit.ObjectID == "" || hit.Title == "" {
			continue
		}
		if deref(hit.Points) < opts.MinScore {
			continue
		}

		c := h.candidate(hit)
		if opts.FetchDiscussion && deref(hit.NumComments) > 0 {
			excerpts, err := h.topComments(ctx, hit.ObjectID, opts.TopDiscussion)
			if err != nil {
				logger.Debug("hacker news comments unavailable", zap.String("url", c.URL), zap.Error(err))
			} else {
				c.TopDiscussionExcerpts = excerpts
			}
		}
		out = append(out, c)
		if len(out) >= opts.Limit {
			break
		}
	}
	return out
}

func (h *HackerNews) candidate(hit hnHit) types.SourceCandidate {
	published := time.Unix(hit.CreatedAtI, 0).UTC()
	content := hit.Title
	if text := h.plainText(hit.StoryText); text != "" {
		content += "\n\n" + text
	}
	return types.SourceCandidate{
		URL:        hnItemURL + hit.ObjectID,
		Title:      hit.Title,
		RawContent: content,
		SourceType: types.SourceTypeLinkAggregator,
		Provider:   "hackernews",
		Metadata: types.SourceMetadata{
			Author:          hit.Author,
			PublishedAt:     &published,
			EngagementScore: deref(hit.Points),
			DiscussionCount: deref(hit.NumComments),
			ProviderSpecific: map[string]string{
				"id":   hit.ObjectID,
				"link": hit.URL,
			},
		},
	}
}

// topComments walks the thread depth first in ranked order.
func (h *HackerNews) topComments(ctx context.Context, id string, limit int) ([]types.DiscussionExcerpt, error) {
	var item hnItem
	if err := fetch.JSON(ctx, h.base()+"/items/"+url.PathEscape(id), h.HTTP, &item); err != nil {
		return nil, err
	}

	var out []types.DiscussionExcerpt
	var walk func(children []hnItem, depth int)
	walk = func(children []hnItem, depth int) {
		for _, c := range children {
			if len(out) >= limit {
				return
			}
			if text := h.plainText(c.Text); text != "" {
				out = append(out, types.DiscussionExcerpt{
					Author: c.Author,
					Text:   clip(text, maxExcerptChars),
					Score:  deref(c.Points),
					Depth:  depth,
				})
			}
			walk(c.Children, depth+1)
		}
	}
	walk(item.Children, 0)
	return out, nil
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
