// Package validation recomputes the confidence of analysis output from
// evidentiary signals instead of trusting the scores the model reported.
package validation

import (
	"context"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/jonathan/research-agent/internal/llm"
	"github.com/jonathan/research-agent/internal/logging"
	"github.com/jonathan/research-agent/internal/prompts"
)

// DefaultActionability is used when the scoring call fails.
const DefaultActionability = 5

// MinOpportunityScore is the recomputed score an opportunity needs to be validated.
const MinOpportunityScore = 7

// Red flags attached to opportunities
const (
	FlagNoCompetitors        = "no competitors mentioned"
	FlagInsufficientEvidence = "insufficient evidence"
	FlagRevenueWithoutNumber = "revenue estimate lacks numbers"
)

// Validator runs the validation passes. LLM is optional; without it the
// actionability score stays at DefaultActionability.
type Validator struct {
	LLM    llm.Client
	Delay  time.Duration
	Logger *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Validator.
func New(client llm.Client, delay time.Duration, logger *zap.Logger) *Validator {
	return &Validator{LLM: client, Delay: delay, Logger: logger}
}

func (v *Validator) logger() *zap.Logger {
	return logging.OrNop(v.Logger)
}

type actionability struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// scoreActionability never fails; errors yield DefaultActionability.
func (v *Validator) scoreActionability(ctx context.Context, pain, severity, wtp string, solutions []string) int {
	if v.LLM == nil {
		return DefaultActionability
	}
	p, err := prompts.Render(prompts.Analysis, "score-actionability", map[string]string{
		"Pain":             pain,
		"Severity":         severity,
		"WillingnessToPay": wtp,
		"CurrentSolutions": strings.Join(solutions, ", "),
	})
	if err != nil {
		return DefaultActionability
	}
	res, err := llm.GenerateJSON[actionability](ctx, v.LLM, p, llm.GenerateOptions{Tier: llm.TierLite, MaxTokens: 256})
	if err != nil {
		v.logger().Debug("actionability scoring failed, using default", zap.Error(err))
		return DefaultActionability
	}
	score := int(res.Score + 0.5)
	switch {
	case score < 0:
		score = 0
	case score > 10:
		score = 10
	}
	return score
}

func (v *Validator) pause(ctx context.Context) error {
	if v.Delay <= 0 {
		return ctx.Err()
	}
	if v.sleep != nil {
		return v.sleep(ctx, v.Delay)
	}
	t := time.NewTimer(v.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func distinct(values []string) int {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			seen[v] = true
		}
	}
	return len(seen)
}

func nonEmpty(values []string) int {
	n := 0
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}
