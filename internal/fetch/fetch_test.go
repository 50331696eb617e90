package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURL(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    string
		wantStatus int
	}{
		{name: "ok", status: http.StatusOK, body: "<h1>Chasing invoices</h1>", wantStatus: http.StatusOK},
		{name: "not found keeps partial result", status: http.StatusNotFound, body: "gone", wantErr: "404", wantStatus: http.StatusNotFound},
		{name: "blocked", status: http.StatusForbidden, body: "denied", wantErr: "403", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
				w.Header().Set("Content-Type", "text/html")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			result, err := URL(context.Background(), server.URL, nil)
			require.NotNil(t, result)
			assert.Equal(t, tt.wantStatus, result.StatusCode)
			assert.Equal(t, tt.body, result.HTML)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var fetchErr *Error
			require.ErrorAs(t, err, &fetchErr)
			assert.Equal(t, tt.wantStatus, fetchErr.StatusCode)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestURL_RejectsRelativeURLs(t *testing.T) {
	for _, raw := range []string{"not-a-valid-url", "/r/freelance", "://missing-scheme"} {
		_, err := URL(context.Background(), raw, nil)
		var fetchErr *Error
		require.ErrorAs(t, err, &fetchErr, raw)
		assert.Equal(t, "invalid URL", fetchErr.Message)
	}
}

func TestURL_CustomUserAgent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "research-agent-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	_, err := URL(context.Background(), server.URL, &Options{UserAgent: "research-agent-test"})
	require.NoError(t, err)
}

func TestURL_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("late"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := URL(ctx, server.URL, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractMainText(t *testing.T) {
	tests := []struct {
		name      string
		html      string
		selectors []string
		want      []string
		notWant   []string
	}{
		{
			name: "main element wins over chrome",
			html: `<html><body>
				<nav>Pricing | Login</nav>
				<main><h1>Why freelancers hate invoicing</h1><p>Clients pay 45 days late.</p></main>
				<footer>Copyright</footer>
			</body></html>`,
			selectors: DefaultTextSelectors(),
			want:      []string{"Why freelancers hate invoicing", "Clients pay 45 days late."},
			notWant:   []string{"Pricing", "Copyright"},
		},
		{
			name:      "article element",
			html:      `<html><body><article><h1>Tool review</h1><p>Too expensive for solo work.</p></article></body></html>`,
			selectors: DefaultTextSelectors(),
			want:      []string{"Tool review", "Too expensive for solo work."},
		},
		{
			name:      "falls back to body",
			html:      `<html><body><div>Only a bare div here.</div><script>track()</script></body></html>`,
			selectors: DefaultTextSelectors(),
			want:      []string{"Only a bare div here."},
			notWant:   []string{"track()"},
		},
		{
			name: "reddit post body",
			html: `<html><body>
				<div class="sidebar">Sidebar junk</div>
				<div class="usertext-body"><p>Our invoicing tool keeps crashing when exporting PDFs</p></div>
			</body></html>`,
			selectors: PlatformContentSelectors(PlatformReddit),
			want:      []string{"invoicing tool keeps crashing"},
			notWant:   []string{"Sidebar junk"},
		},
		{
			name: "hacker news item",
			html: `<html><body><table id="hnmain"><tr><td>
				<table class="fatitem"><tr><td>Ask HN: How do you chase late payments?</td></tr></table>
				<div>unrelated thread list</div>
			</td></tr></table></body></html>`,
			selectors: PlatformContentSelectors(PlatformHackerNews),
			want:      []string{"Ask HN: How do you chase late payments?"},
			notWant:   []string{"unrelated thread list"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := ExtractMainText(tt.html, tt.selectors)
			require.NoError(t, err)
			for _, w := range tt.want {
				assert.Contains(t, text, w)
			}
			for _, nw := range tt.notWant {
				assert.NotContains(t, text, nw)
			}
		})
	}
}

func TestCleanWhitespace(t *testing.T) {
	assert.Equal(t, "a b\nc", CleanWhitespace("  a   b \n\n\t\n c  "))
}

func TestJSON_Decodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		_, _ = w.Write([]byte(`{"hits": 3}`))
	}))
	defer server.Close()

	var out struct {
		Hits int `json:"hits"`
	}
	opts := DefaultOptions()
	opts.Headers = map[string]string{"X-Test": "yes"}
	require.NoError(t, JSON(context.Background(), server.URL, opts, &out))
	assert.Equal(t, 3, out.Hits)
}

func TestJSON_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	var out map[string]any
	err := JSON(context.Background(), server.URL, nil, &out)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusTooManyRequests, fetchErr.StatusCode)
}

func TestJSON_BadBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer server.Close()

	var out map[string]any
	err := JSON(context.Background(), server.URL, nil, &out)
	assert.ErrorContains(t, err, "failed to decode JSON")
}

func TestHTTPFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<p>ok</p>"))
	}))
	defer server.Close()

	var f Fetcher = &HTTPFetcher{Options: DefaultOptions()}
	res, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Contains(t, res.HTML, "ok")
}
