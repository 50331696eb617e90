package validation

import (
	"context"

	"github.com/jonathan/research-agent/internal/analysis"
)

// ValidateReport runs every validation pass and returns a new report.
func (v *Validator) ValidateReport(ctx context.Context, r *analysis.Report) (*analysis.Report, error) {
	if r == nil {
		return &analysis.Report{}, nil
	}
	points, err := v.ValidatePainPoints(ctx, r.PainPoints)
	if err != nil {
		return nil, err
	}
	return &analysis.Report{
		PainPoints:       points,
		Opportunities:    ValidateOpportunities(r.Opportunities),
		MarketInsights:   ValidateMarketInsights(r.MarketInsights),
		Competitors:      ValidateCompetitors(r.Competitors),
		ExecutiveSummary: r.ExecutiveSummary,
	}, nil
}
