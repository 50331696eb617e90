package analysis

import (
	"strings"

	"github.com/jonathan/research-agent/internal/types"
)

// Insight categories in the persisted analysis result
const (
	CategoryPainPoint   = "pain_point"
	CategoryOpportunity = "opportunity"
	CategoryCompetitor  = "competitor"
	categoryMarket      = "market_"
)

var severityConfidence = map[types.Severity]float64{
	types.SeverityHigh:   0.8,
	types.SeverityMedium: 0.6,
	types.SeverityLow:    0.4,
}

// ToAnalysisResult flattens a validated report into the persisted result.
// Unvalidated items keep a reduced confidence.
func ToAnalysisResult(report *Report) *types.AnalysisResult {
	res := &types.AnalysisResult{Insights: []types.Insight{}, Trends: []string{}}
	if report == nil {
		return res
	}
	res.Summary = report.ExecutiveSummary

	for _, p := range report.PainPoints {
		conf := severityConfidence[p.Severity]
		if p.Validated {
			conf += 0.15
		}
		res.Insights = append(res.Insights, types.Insight{
			Title:      clipTitle(p.Pain),
			Content:    painContent(p),
			Category:   CategoryPainPoint,
			Confidence: clamp(conf),
		})
	}
	for _, o := range report.Opportunities {
		res.Insights = append(res.Insights, types.Insight{
			Title:      o.Title,
			Content:    o.Description,
			Category:   CategoryOpportunity,
			Confidence: clamp(o.ValidationScore / 10),
		})
	}
	for _, m := range report.MarketInsights {
		conf := 0.4
		if m.Validated {
			conf = 0.7
		}
		res.Insights = append(res.Insights, types.Insight{
			Title:      clipTitle(m.Insight),
			Content:    m.Insight,
			Category:   categoryMarket + string(m.Type),
			Confidence: conf,
		})
		if m.Type == types.InsightTrend {
			res.Trends = append(res.Trends, m.Insight)
		}
	}
	for _, c := range report.Competitors {
		conf := 0.3
		if c.Validated {
			conf = 0.6
		}
		res.Insights = append(res.Insights, types.Insight{
			Title:      c.Name,
			Content:    competitorContent(c),
			Category:   CategoryCompetitor,
			Confidence: conf,
		})
	}
	return res
}

func painContent(p types.PainPoint) string {
	var b strings.Builder
	b.WriteString(p.Pain)
	for _, q := range p.Quotes {
		b.WriteString("\n> ")
		b.WriteString(q)
	}
	return b.String()
}

func competitorContent(c types.CompetitorProfile) string {
	parts := []string{"Sentiment: " + c.Sentiment}
	if len(c.Strengths) > 0 {
		parts = append(parts, "Strengths: "+strings.Join(c.Strengths, "; "))
	}
	if len(c.Weaknesses) > 0 {
		parts = append(parts, "Weaknesses: "+strings.Join(c.Weaknesses, "; "))
	}
	if c.Pricing != "" {
		parts = append(parts, "Pricing: "+c.Pricing)
	}
	return strings.Join(parts, "\n")
}

const maxTitleRunes = 120

func clipTitle(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= maxTitleRunes {
		return string(r)
	}
	return string(r[:maxTitleRunes-3]) + "..."
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
