// Package fetch - platform.go provides platform detection and platform-specific selectors.
package fetch

import (
	"net/url"
	"strings"
)

// Platform represents a known source platform.
type Platform string

const (
	// PlatformReddit is reddit.com and its mirrors
	PlatformReddit Platform = "reddit"
	// PlatformHackerNews is news.ycombinator.com
	PlatformHackerNews Platform = "hackernews"
	// PlatformMedium is medium.com and its custom domains on *.medium.com
	PlatformMedium Platform = "medium"
	// PlatformSubstack is *.substack.com
	PlatformSubstack Platform = "substack"
	// PlatformWeb is any other site
	PlatformWeb Platform = "web"
)

// DetectPlatform identifies the platform from a URL.
func DetectPlatform(urlStr string) Platform {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return PlatformWeb
	}

	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")

	switch {
	case host == "reddit.com" || strings.HasSuffix(host, ".reddit.com") || host == "redd.it":
		return PlatformReddit
	case host == "news.ycombinator.com":
		return PlatformHackerNews
	case host == "medium.com" || strings.HasSuffix(host, ".medium.com"):
		return PlatformMedium
	case strings.HasSuffix(host, ".substack.com"):
		return PlatformSubstack
	}
	return PlatformWeb
}

// PlatformContentSelectors returns content selectors optimized for a platform.
func PlatformContentSelectors(platform Platform) []string {
	switch platform {
	case PlatformReddit:
		return []string{
			"shreddit-post",
			"[data-test-id='post-content']",
			".usertext-body",
			"main",
		}
	case PlatformHackerNews:
		return []string{
			".fatitem",
			"#hnmain",
		}
	case PlatformMedium:
		return []string{
			"article",
			"section",
		}
	case PlatformSubstack:
		return []string{
			".available-content",
			".post-content",
			"article",
		}
	default:
		return DefaultTextSelectors()
	}
}
