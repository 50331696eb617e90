package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/research-agent/internal/types"
)

const redditSearchBody = `{"data":{"children":[
 {"kind":"t3","data":{"id":"abc","title":"Invoicing is killing me","selftext":"Any tools?","permalink":"/r/freelance/comments/abc/invoicing/","url":"https://www.reddit.com/r/freelance/comments/abc/invoicing/","author":"sam","subreddit":"freelance","score":600,"num_comments":42,"created_utc":1735689600}},
 {"kind":"t3","data":{"id":"low","title":"meh","permalink":"/r/freelance/comments/low/meh/","score":3,"num_comments":0,"created_utc":1735689600}},
 {"kind":"t3","data":{"id":"quiet","title":"No comments here","permalink":"/r/freelance/comments/quiet/x/","score":50,"num_comments":0,"created_utc":1735689600}}
]}}`

const redditCommentsBody = `[
 {"data":{"children":[{"kind":"t3","data":{"id":"abc"}}]}},
 {"data":{"children":[
  {"kind":"t1","data":{"author":"a","body":"I'd pay for this","score":30,"depth":0,"replies":{"data":{"children":[
   {"kind":"t1","data":{"author":"b","body":"Same, $20/mo easily","score":45,"depth":1,"replies":""}}
  ]}}}},
  {"kind":"t1","data":{"author":"c","body":"[deleted]","score":99,"depth":0,"replies":""}},
  {"kind":"more","data":{}}
 ]}}
]`

func newRedditServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search.json":
			assert.Equal(t, "invoice tools", r.URL.Query().Get("q"))
			assert.Equal(t, "year", r.URL.Query().Get("t"))
			_, _ = w.Write([]byte(redditSearchBody))
		case "/comments/abc.json":
			_, _ = w.Write([]byte(redditCommentsBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestReddit_Search(t *testing.T) {
	srv := newRedditServer(t)
	r := NewReddit(nil, nil)
	r.BaseURL = srv.URL

	got := r.Search(context.Background(), "invoice tools", SearchOptions{MinScore: 10, FetchDiscussion: true, TopDiscussion: 5})
	require.Len(t, got, 2, "score 3 post is dropped by MinScore")

	top := got[0]
	assert.Equal(t, "https://www.reddit.com/r/freelance/comments/abc/invoicing/", top.URL)
	assert.Equal(t, types.SourceTypeDiscussionForum, top.SourceType)
	assert.Equal(t, 600, top.Metadata.EngagementScore)
	assert.Equal(t, 42, top.Metadata.DiscussionCount)
	assert.Equal(t, "freelance", top.Metadata.ProviderSpecific["subreddit"])
	require.NotNil(t, top.Metadata.PublishedAt)
	assert.Equal(t, int64(1735689600), top.Metadata.PublishedAt.Unix())

	require.Len(t, top.TopDiscussionExcerpts, 2)
	assert.Equal(t, "Same, $20/mo easily", top.TopDiscussionExcerpts[0].Text)
	assert.Equal(t, 1, top.TopDiscussionExcerpts[0].Depth)
	assert.Equal(t, "I'd pay for this", top.TopDiscussionExcerpts[1].Text)

	assert.Empty(t, got[1].TopDiscussionExcerpts)
}

func TestReddit_CommentsFailureKeepsPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/search.json" {
			_, _ = w.Write([]byte(redditSearchBody))
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	r := NewReddit(nil, nil)
	r.BaseURL = srv.URL
	got := r.Search(context.Background(), "invoice tools", SearchOptions{MinScore: 10, FetchDiscussion: true})
	require.Len(t, got, 2)
	assert.Empty(t, got[0].TopDiscussionExcerpts)
}

func TestReddit_SearchFailureReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewReddit(nil, nil)
	r.BaseURL = srv.URL
	assert.Empty(t, r.Search(context.Background(), "x", SearchOptions{}))
}
