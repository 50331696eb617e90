package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/research-agent/internal/fetch"
	"github.com/jonathan/research-agent/internal/logging"
	"github.com/jonathan/research-agent/internal/types"
)

const redditBaseURL = "https://www.reddit.com"

// Reddit searches reddit.com through its public JSON endpoints.
type Reddit struct {
	BaseURL string
	HTTP    *fetch.Options
	Logger  *zap.Logger
}

// NewReddit returns a Reddit adapter.
func NewReddit(httpOpts *fetch.Options, logger *zap.Logger) *Reddit {
	return &Reddit{BaseURL: redditBaseURL, HTTP: httpOpts, Logger: logging.OrNop(logger)}
}

// Name implements Provider.
func (r *Reddit) Name() string { return "reddit" }

type redditListing struct {
	Data struct {
		Children []struct {
			Kind string          `json:"kind"`
			Data json.RawMessage `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Permalink   string  `json:"permalink"`
	URL         string  `json:"url"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
}

type redditComment struct {
	Author  string          `json:"author"`
	Body    string          `json:"body"`
	Score   int             `json:"score"`
	Depth   int             `json:"depth"`
	Replies json.RawMessage `json:"replies"`
}

func (r *Reddit) base() string {
	if r.BaseURL == "" {
		return redditBaseURL
	}
	return strings.TrimRight(r.BaseURL, "/")
}

// Search implements Provider.
func (r *Reddit) Search(ctx context.Context, query string, opts SearchOptions) []types.SourceCandidate {
	opts = opts.withDefaults()
	logger := logging.OrNop(r.Logger)

	params := url.Values{
		"q":        {query},
		"limit":    {strconv.Itoa(opts.Limit)},
		"sort":     {"relevance"},
		"t":        {opts.TimeRange},
		"raw_json": {"1"},
	}
	var listing redditListing
	if err := fetch.JSON(ctx, r.base()+"/search.json?"+params.Encode(), r.HTTP, &listing); err != nil {
		logger.Warn("reddit search failed", zap.String("provider", r.Name()), zap.Error(err))
		return nil
	}

	var out []types.SourceCandidate
	for _, child := range listing.Data.Children {
		var post redditPost
		if err := json.Unmarshal(child.Data, &post); err != nil || post.Permalink == "" {
			continue
		}
		if post.Score < opts.MinScore {
			continue
		}

		c := redditCandidate(post)
		if opts.FetchDiscussion && post.NumComments > 0 {
			excerpts, err := r.topComments(ctx, post.ID, opts.TopDiscussion)
			if err != nil {
				logger.Debug("reddit comments unavailable", zap.String("url", c.URL), zap.Error(err))
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

func redditCandidate(p redditPost) types.SourceCandidate {
	published := time.Unix(int64(p.CreatedUTC), 0).UTC()
	return types.SourceCandidate{
		URL:        redditBaseURL + p.Permalink,
		Title:      p.Title,
		RawContent: p.Selftext,
		SourceType: types.SourceTypeDiscussionForum,
		Provider:   "reddit",
		Metadata: types.SourceMetadata{
			Author:          p.Author,
			PublishedAt:     &published,
			EngagementScore: p.Score,
			DiscussionCount: p.NumComments,
			ProviderSpecific: map[string]string{
				"id":        p.ID,
				"subreddit": p.Subreddit,
				"link":      p.URL,
			},
		},
	}
}

// topComments returns the highest scored comments of a thread at any depth.
func (r *Reddit) topComments(ctx context.Context, postID string, limit int) ([]types.DiscussionExcerpt, error) {
	u := fmt.Sprintf("%s/comments/%s.json?sort=top&limit=%d&raw_json=1", r.base(), url.PathEscape(postID), limit*2)
	var listings []redditListing
	if err := fetch.JSON(ctx, u, r.HTTP, &listings); err != nil {
		return nil, err
	}
	if len(listings) < 2 {
		return nil, nil
	}

	var all []types.DiscussionExcerpt
	collectRedditComments(listings[1], &all)
	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func collectRedditComments(listing redditListing, out *[]types.DiscussionExcerpt) {
	for _, child := range listing.Data.Children {
		if child.Kind != "t1" {
			continue
		}
		var c redditComment
		if err := json.Unmarshal(child.Data, &c); err != nil {
			continue
		}
		if body := strings.TrimSpace(c.Body); body != "" && body != "[deleted]" && body != "[removed]" {
			*out = append(*out, types.DiscussionExcerpt{
				Author: c.Author,
				Text:   clip(body, maxExcerptChars),
				Score:  c.Score,
				Depth:  c.Depth,
			})
		}
		// replies is "" when a comment has none
		if len(c.Replies) > 0 && c.Replies[0] == '{' {
			var nested redditListing
			if err := json.Unmarshal(c.Replies, &nested); err == nil {
				collectRedditComments(nested, out)
			}
		}
	}
}
