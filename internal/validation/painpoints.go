package validation

import (
	"context"

	"go.uber.org/zap"

	"github.com/jonathan/research-agent/internal/types"
)

const (
	minQuotes  = 2
	minSources = 2
)

// ValidatePainPoints marks a point validated when it has at least two quotes
// from at least two distinct sources, and downgrades severity to low
// otherwise. Placeholders stay unvalidated and get DefaultActionability
// without an LLM call. Points are scored one at a time, pausing Delay
// between LLM calls. The input slice is not modified.
func (v *Validator) ValidatePainPoints(ctx context.Context, points []types.PainPoint) ([]types.PainPoint, error) {
	out := make([]types.PainPoint, len(points))
	for i, p := range points {
		if i > 0 && v.LLM != nil {
			if err := v.pause(ctx); err != nil {
				return nil, err
			}
		}

		p.Validated = !p.Placeholder && nonEmpty(p.Quotes) >= minQuotes && distinct(p.Sources) >= minSources
		if !p.Validated {
			p.Severity = types.SeverityLow
		}
		if p.Placeholder {
			p.ActionabilityScore = DefaultActionability
		} else {
			p.ActionabilityScore = v.scoreActionability(ctx, p.Pain, string(p.Severity), p.WillingnessToPay, p.CurrentSolutions)
		}
		out[i] = p
	}

	v.logger().Debug("pain points validated", zap.Int("count", len(out)), zap.Int("validated", countValidated(out)))
	return out, nil
}

func countValidated(points []types.PainPoint) int {
	n := 0
	for _, p := range points {
		if p.Validated {
			n++
		}
	}
	return n
}
