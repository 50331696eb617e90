package llm

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
)

var (
	// ErrNoParseableJSON is returned when a response contains no JSON object or array.
	// Callers treat it as retryable-with-fallback.
	ErrNoParseableJSON = errors.New("no parseable JSON in model response")
	// ErrRateLimited is returned when the retry budget for rate-limit errors is exhausted.
	ErrRateLimited = errors.New("rate limited")
)

// ErrorKind classifies backend failures
type ErrorKind string

const (
	KindRateLimit ErrorKind = "rate_limit"
	KindQuota     ErrorKind = "quota"
	KindNotFound  ErrorKind = "not_found"
	KindAuth      ErrorKind = "auth"
	KindOther     ErrorKind = "other"
)

// ProviderError is a classified error from an LLM backend
type ProviderError struct {
	Provider   Provider
	StatusCode int
	Kind       ErrorKind
	Message    string
	// RetryAfter is the server-suggested delay, zero when absent
	RetryAfter time.Duration
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// IsRateLimited reports whether err is a rate-limit class error.
func IsRateLimited(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind == KindRateLimit
	}
	return false
}

// IsFallbackEligible reports whether err should move a unit of work to the secondary backend.
func IsFallbackEligible(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		switch pe.Kind {
		case KindRateLimit, KindQuota, KindNotFound:
			return true
		}
	}
	return false
}

var (
	retryInPattern    = regexp.MustCompile(`(?i)retry in ([0-9.]+)s`)
	retryDelayPattern = regexp.MustCompile(`"retryDelay"\s*:\s*"([0-9.]+)s"`)
)

// hardQuotaMarkers identify exhausted credit or billing limits. Gemini's
// per-minute throttling also says "exceeded your current quota" and is a
// rate limit.
var hardQuotaMarkers = []string{"insufficient_quota", "billing_hard_limit", "credit balance is too low"}

func isHardQuota(lower string) bool {
	for _, m := range hardQuotaMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// classifyStatus maps an HTTP status and body to an ErrorKind. A 429 is a
// rate limit unless the body reports hard quota exhaustion.
func classifyStatus(status int, body string) ErrorKind {
	lower := strings.ToLower(body)
	switch {
	case status == http.StatusTooManyRequests:
		if isHardQuota(lower) {
			return KindQuota
		}
		return KindRateLimit
	case status == http.StatusPaymentRequired:
		return KindQuota
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == 529:
		// Anthropic overloaded
		return KindRateLimit
	}
	switch {
	case isHardQuota(lower):
		return KindQuota
	case strings.Contains(lower, "resource_exhausted"):
		return KindRateLimit
	case strings.Contains(lower, "quota"):
		return KindQuota
	}
	return KindOther
}

// parseRetryAfter reads a Retry-After header value or an embedded retry hint.
func parseRetryAfter(header http.Header, body string) time.Duration {
	if header != nil {
		if v := header.Get("Retry-After"); v != "" {
			if secs, err := strconv.ParseFloat(v, 64); err == nil {
				return time.Duration(secs * float64(time.Second))
			}
		}
	}
	for _, re := range []*regexp.Regexp{retryDelayPattern, retryInPattern} {
		if m := re.FindStringSubmatch(body); len(m) == 2 {
			if secs, err := strconv.ParseFloat(m[1], 64); err == nil {
				return time.Duration(secs * float64(time.Second))
			}
		}
	}
	return 0
}

// newHTTPError builds a ProviderError from a non-2xx HTTP response.
func newHTTPError(provider Provider, status int, header http.Header, body string) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: status,
		Kind:       classifyStatus(status, body),
		Message:    truncate(body, 500),
		RetryAfter: parseRetryAfter(header, body),
	}
}

// classifyGeminiError wraps an error from the Gemini SDK.
func classifyGeminiError(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		body := gerr.Message + " " + gerr.Body
		return &ProviderError{
			Provider:   ProviderGemini,
			StatusCode: gerr.Code,
			Kind:       classifyStatus(gerr.Code, body),
			Message:    truncate(gerr.Message, 500),
			RetryAfter: parseRetryAfter(gerr.Header, body),
			Cause:      err,
		}
	}

	// The SDK sometimes only surfaces the status in the message text
	msg := err.Error()
	lower := strings.ToLower(msg)
	kind := KindOther
	status := 0
	switch {
	case isHardQuota(lower):
		kind, status = KindQuota, http.StatusTooManyRequests
	case strings.Contains(msg, "429") || strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "exhausted") || strings.Contains(lower, "quota"):
		kind, status = KindRateLimit, http.StatusTooManyRequests
	case strings.Contains(msg, "404") || strings.Contains(lower, "not found"):
		kind, status = KindNotFound, http.StatusNotFound
	default:
		return fmt.Errorf("failed to generate content: %w", err)
	}
	return &ProviderError{
		Provider:   ProviderGemini,
		StatusCode: status,
		Kind:       kind,
		Message:    truncate(msg, 500),
		RetryAfter: parseRetryAfter(nil, msg),
		Cause:      err,
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
