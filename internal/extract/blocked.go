package extract

import "strings"

// blockedTitles are page titles served by anti-bot interstitials.
var blockedTitles = []string{
	"just a moment...",
	"access denied",
	"attention required!",
	"are you a robot?",
	"security check",
	"verify you are human",
}

// blockedMarkers are body markers that only appear on challenge pages.
var blockedMarkers = []string{
	"cf-browser-verification",
	"px-captcha",
	"please enable javascript and cookies",
	"cf-challenge-running",
}

// captchaBodyLimit is the page size below which a bare "captcha" mention
// is treated as a challenge page. Longer pages may simply discuss captchas.
const captchaBodyLimit = 5000

// IsBlocked reports whether a page is an anti-bot or challenge interstitial.
func IsBlocked(title, html string) bool {
	t := strings.ToLower(strings.TrimSpace(title))
	for _, bt := range blockedTitles {
		if t == bt || strings.HasPrefix(t, bt) {
			return true
		}
	}

	body := strings.ToLower(html)
	for _, m := range blockedMarkers {
		if strings.Contains(body, m) {
			return true
		}
	}
	return len(body) < captchaBodyLimit && strings.Contains(body, "captcha")
}
