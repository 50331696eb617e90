// Package types defines the data model shared by the research pipeline stages.
package types

import "time"

// SourceType classifies where a candidate came from
type SourceType string

const (
	// SourceTypeDiscussionForum is a community discussion site (Reddit-style)
	SourceTypeDiscussionForum SourceType = "discussion-forum"
	// SourceTypeLinkAggregator is a link aggregator with comment threads (HN-style)
	SourceTypeLinkAggregator SourceType = "link-aggregator"
	// SourceTypeGenericWeb is any other web page
	SourceTypeGenericWeb SourceType = "generic-web"
)

// IsCommunity reports whether the type carries organic user discussion.
func (t SourceType) IsCommunity() bool {
	return t == SourceTypeDiscussionForum || t == SourceTypeLinkAggregator
}

// DiscussionExcerpt is one top comment or reply attached to a source.
type DiscussionExcerpt struct {
	Author string `json:"author"`
	Text   string `json:"text"`
	Score  int    `json:"score"`
	Depth  int    `json:"depth"`
}

// SourceMetadata holds the normalized provider metadata
type SourceMetadata struct {
	Author           string            `json:"author,omitempty"`
	PublishedAt      *time.Time        `json:"published_at,omitempty"`
	EngagementScore  int               `json:"engagement_score"`
	DiscussionCount  int               `json:"discussion_count"`
	ProviderSpecific map[string]string `json:"provider_specific,omitempty"`
}

// SourceCandidate is one discovered item before and after extraction.
// URL is unique within a run.
type SourceCandidate struct {
	URL                   string              `json:"url"`
	Title                 string              `json:"title"`
	RawContent            string              `json:"raw_content"`
	SourceType            SourceType          `json:"source_type"`
	Provider              string              `json:"provider,omitempty"`
	Metadata              SourceMetadata      `json:"metadata"`
	TopDiscussionExcerpts []DiscussionExcerpt `json:"top_discussion_excerpts,omitempty"`
	RankScore             float64             `json:"rank_score"`
}

// HasContent reports whether the candidate carries extracted text.
func (s *SourceCandidate) HasContent() bool {
	return s.RawContent != ""
}

// CachedExtraction is a URL-level extraction cache entry
type CachedExtraction struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Excerpt     string    `json:"excerpt"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// IsFresh reports whether the entry is younger than ttl at now.
func (c *CachedExtraction) IsFresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.ExtractedAt) < ttl
}
