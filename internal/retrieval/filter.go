package retrieval

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/jonathan/research-agent/internal/types"
)

// lowValueDomains are platforms whose pages carry little extractable text.
var lowValueDomains = map[string]bool{
	"youtube.com":   true,
	"youtu.be":      true,
	"tiktok.com":    true,
	"instagram.com": true,
	"facebook.com":  true,
	"fb.com":        true,
	"twitter.com":   true,
	"x.com":         true,
	"pinterest.com": true,
	"linkedin.com":  true,
}

// registrableDomain returns the eTLD+1 of a URL, or "" when it has none.
func registrableDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// IsLowValue reports whether a URL belongs to a social or video platform.
func IsLowValue(rawURL string) bool {
	return lowValueDomains[registrableDomain(rawURL)]
}

// FilterLowValue drops candidates on low-value domains.
func FilterLowValue(sources []types.SourceCandidate) (kept []types.SourceCandidate, dropped int) {
	for _, s := range sources {
		if IsLowValue(s.URL) {
			dropped++
			continue
		}
		kept = append(kept, s)
	}
	return kept, dropped
}
