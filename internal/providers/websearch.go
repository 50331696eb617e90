package providers

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly"
	"github.com/gocolly/colly/extensions"
	"go.uber.org/zap"

	"github.com/jonathan/research-agent/internal/logging"
	"github.com/jonathan/research-agent/internal/types"
)

const duckDuckGoHTMLURL = "https://html.duckduckgo.com/html/"

// WebSearch scrapes the DuckDuckGo HTML results page.
type WebSearch struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewWebSearch returns a WebSearch adapter.
func NewWebSearch(logger *zap.Logger) *WebSearch {
	return &WebSearch{BaseURL: duckDuckGoHTMLURL, Timeout: 20 * time.Second, Logger: logging.OrNop(logger)}
}

// Name implements Provider.
func (w *WebSearch) Name() string { return "websearch" }

// Search implements Provider.
func (w *WebSearch) Search(ctx context.Context, query string, opts SearchOptions) []types.SourceCandidate {
	opts = opts.withDefaults()
	logger := logging.OrNop(w.Logger)
	if ctx.Err() != nil {
		return nil
	}

	c := colly.NewCollector(colly.AllowURLRevisit())
	extensions.RandomUserAgent(c)
	if w.Timeout > 0 {
		c.SetRequestTimeout(w.Timeout)
	}

	var (
		mu   sync.Mutex
		out  []types.SourceCandidate
		seen = make(map[string]bool)
	)

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	c.OnHTML(".result", func(e *colly.HTMLElement) {
		link := resolveResultLink(e.ChildAttr("a.result__a", "href"))
		title := strings.TrimSpace(e.ChildText("a.result__a"))
		if link == "" || title == "" {
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if seen[link] || len(out) >= opts.Limit {
			return
		}
		seen[link] = true
		out = append(out, types.SourceCandidate{
			URL:        link,
			Title:      title,
			RawContent: strings.TrimSpace(e.ChildText(".result__snippet")),
			SourceType: types.SourceTypeGenericWeb,
			Provider:   "websearch",
			Metadata: types.SourceMetadata{
				ProviderSpecific: map[string]string{"engine": "duckduckgo"},
			},
		})
	})

	c.OnError(func(r *colly.Response, err error) {
		logger.Warn("web search request failed",
			zap.String("provider", w.Name()),
			zap.Int("status", r.StatusCode),
			zap.Error(err))
	})

	base := w.BaseURL
	if base == "" {
		base = duckDuckGoHTMLURL
	}
	if err := c.Visit(base + "?" + url.Values{"q": {query}}.Encode()); err != nil {
		logger.Warn("web search failed", zap.String("provider", w.Name()), zap.Error(err))
	}
	c.Wait()

	mu.Lock()
	defer mu.Unlock()
	return out
}

// resolveResultLink unwraps DuckDuckGo redirect links and drops anything
// that is not an absolute http(s) URL.
func resolveResultLink(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Hostname(), "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		target := u.Query().Get("uddg")
		if target == "" {
			return ""
		}
		return resolveResultLink(target)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
