// Package extract turns fetched pages into clean source text.
//
// The primary path is a readability heuristic. When it yields less than
// MinContentLength characters, known community platforms are read through
// their content selectors and any other page body is stripped of noise and
// converted to markdown. Known anti-bot interstitials are reported
// as failures rather than returned as content.
package extract

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/jonathan/research-agent/internal/fetch"
	"github.com/jonathan/research-agent/internal/types"
)

// MinContentLength is the shortest content accepted from the readability path.
const MinContentLength = fetch.MinContentLength

// excerptLength bounds Result.Excerpt.
const excerptLength = 300

// ErrBlocked is returned when a page is an anti-bot or consent interstitial.
var ErrBlocked = errors.New("blocked by anti-bot protection")

// ErrInsufficientContent is returned when neither extraction path yields enough text.
var ErrInsufficientContent = errors.New("insufficient content")

// Result is the outcome of extracting one URL.
type Result struct {
	URL         string
	Title       string
	Content     string
	Excerpt     string
	PublishedAt *time.Time
	Success     bool
	Error       string
	// Method is "readability", "selectors", "markdown" or "cache"
	Method string
}

// CacheWriter receives every successful extraction.
type CacheWriter interface {
	Store(ctx context.Context, entry types.CachedExtraction) error
}

// Extractor extracts page content one URL at a time.
type Extractor struct {
	Fetcher fetch.Fetcher
	// Browser is optional; used when the HTTP body yields too little text
	Browser fetch.Renderer
	// Cache is optional
	Cache CacheWriter
	// Delay is the pause between URLs in ExtractMultiple
	Delay   time.Duration
	Timeout time.Duration
	Logger  *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns an Extractor over an HTTP fetcher.
func New(fetcher fetch.Fetcher, delay time.Duration, logger *zap.Logger) *Extractor {
	if fetcher == nil {
		fetcher = &fetch.HTTPFetcher{Options: fetch.DefaultOptions()}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		Fetcher: fetcher,
		Delay:   delay,
		Timeout: fetch.DefaultTimeout,
		Logger:  logger,
	}
}

func (e *Extractor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Extractor) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

// Extract fetches and extracts one URL. Failures are reported in the Result,
// never as a panic or error, so a bad page cannot abort a batch.
func (e *Extractor) Extract(ctx context.Context, pageURL string) Result {
	timeout := e.Timeout
	if timeout == 0 {
		timeout = fetch.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := e.extract(ctx, pageURL)
	if err != nil {
		e.logger().Debug("extraction failed", zap.String("url", pageURL), zap.Error(err))
		return Result{URL: pageURL, Success: false, Error: err.Error()}
	}

	if e.Cache != nil {
		entry := types.CachedExtraction{
			URL:         res.URL,
			Title:       res.Title,
			Content:     res.Content,
			Excerpt:     res.Excerpt,
			ExtractedAt: e.clock(),
		}
		if err := e.Cache.Store(ctx, entry); err != nil {
			e.logger().Warn("failed to cache extraction", zap.String("url", pageURL), zap.Error(err))
		}
	}
	return res
}

func (e *Extractor) extract(ctx context.Context, pageURL string) (Result, error) {
	fetched, err := e.Fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return Result{}, err
	}

	res, err := FromHTML(pageURL, fetched.HTML)
	if errors.Is(err, ErrInsufficientContent) && e.Browser != nil {
		e.logger().Debug("falling back to headless browser", zap.String("url", pageURL))
		rendered, rerr := e.Browser.Render(ctx, pageURL)
		if rerr != nil {
			return Result{}, fmt.Errorf("%w; browser: %v", err, rerr)
		}
		res, err = FromHTML(pageURL, rendered)
	}
	return res, err
}

// FromHTML extracts title, content, excerpt and publish date from a page.
func FromHTML(pageURL, html string) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Result{}, fmt.Errorf("failed to parse HTML: %w", err)
	}

	pageTitle := strings.TrimSpace(doc.Find("title").First().Text())
	if IsBlocked(pageTitle, html) {
		return Result{}, ErrBlocked
	}
	published := publishedAt(doc)

	res := Result{URL: pageURL, PublishedAt: published, Success: true}

	parsedURL, _ := url.Parse(pageURL)
	if article, rerr := readability.FromReader(strings.NewReader(html), parsedURL); rerr == nil {
		text := htmlToText(article.Content)
		if len(text) >= MinContentLength {
			res.Title = firstNonEmpty(article.Title, pageTitle)
			res.Content = text
			res.Excerpt = excerpt(firstNonEmpty(article.Excerpt, text))
			res.Method = "readability"
			return res, nil
		}
	}

	if platform := fetch.DetectPlatform(pageURL); platform != fetch.PlatformWeb {
		text, serr := fetch.ExtractMainText(html, fetch.PlatformContentSelectors(platform))
		if serr == nil && len(text) >= MinContentLength {
			res.Title = pageTitle
			res.Content = text
			res.Excerpt = excerpt(text)
			res.Method = "selectors"
			return res, nil
		}
	}

	markdown, err := toMarkdown(doc, parsedURL)
	if err != nil {
		return Result{}, err
	}
	if fetch.ShouldUseBrowser(markdown) {
		return Result{}, ErrInsufficientContent
	}
	res.Title = pageTitle
	res.Content = markdown
	res.Excerpt = excerpt(markdown)
	res.Method = "markdown"
	return res, nil
}

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// toMarkdown strips noise from the document body and converts it to markdown.
func toMarkdown(doc *goquery.Document, pageURL *url.URL) (string, error) {
	fetch.StripNoise(doc)
	body, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("failed to render body: %w", err)
	}

	var opts []converter.ConvertOptionFunc
	if pageURL != nil && pageURL.Host != "" {
		opts = append(opts, converter.WithDomain(pageURL.Scheme+"://"+pageURL.Host))
	}
	md, err := mdConverter.ConvertString(body, opts...)
	if err != nil {
		return "", fmt.Errorf("markdown conversion failed: %w", err)
	}
	return strings.TrimSpace(md), nil
}

func htmlToText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	// Keep block boundaries as line breaks
	doc.Find("p, li, h1, h2, h3, h4, h5, h6, br, div, blockquote, pre, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	return fetch.CleanWhitespace(doc.Text())
}

// publishedAt reads common publish-date markers.
func publishedAt(doc *goquery.Document) *time.Time {
	candidates := []string{
		doc.Find(`meta[property="article:published_time"]`).AttrOr("content", ""),
		doc.Find(`meta[name="date"]`).AttrOr("content", ""),
		doc.Find(`meta[itemprop="datePublished"]`).AttrOr("content", ""),
		doc.Find("time[datetime]").First().AttrOr("datetime", ""),
	}
	layouts := []string{time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02T15:04:05", "2006-01-02"}
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		for _, layout := range layouts {
			if t, err := time.Parse(layout, c); err == nil {
				t = t.UTC()
				return &t
			}
		}
	}
	return nil
}

func excerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= excerptLength {
		return text
	}
	cut := strings.LastIndex(text[:excerptLength], " ")
	if cut <= 0 {
		cut = excerptLength
	}
	return text[:cut] + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
