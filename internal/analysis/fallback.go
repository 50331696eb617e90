package analysis

import (
	"strings"

	"github.com/jonathan/research-agent/internal/types"
)

// SummaryFailed replaces the executive summary when synthesis fails.
const SummaryFailed = "Executive summary generation failed. The pain points, opportunities and market insights below were extracted successfully and can be reviewed directly."

const fallbackSourceCount = 3

func titlesAndURLs(sources []types.SourceCandidate) (titles, urls []string) {
	for _, s := range topByEngagement(sources, fallbackSourceCount) {
		if s.Title != "" {
			titles = append(titles, s.Title)
		}
		urls = append(urls, s.URL)
	}
	return titles, urls
}

func fallbackPainPoints(community []types.SourceCandidate) []types.PainPoint {
	if len(community) == 0 {
		return []types.PainPoint{{
			Pain:             "No community discussions were found for this topic, so no pain points could be extracted.",
			Severity:         types.SeverityLow,
			Frequency:        "unknown",
			WillingnessToPay: "unknown",
			Placeholder:      true,
		}}
	}
	titles, urls := titlesAndURLs(community)
	pain := "Automatic pain point extraction was inconclusive. The most engaged discussions are listed for manual review."
	if len(titles) > 0 {
		pain += " Discussions: " + strings.Join(titles, "; ")
	}
	// Titles are not quotes, so Quotes stays empty
	return []types.PainPoint{{
		Pain:             pain,
		Severity:         types.SeverityLow,
		Frequency:        "unknown",
		WillingnessToPay: "unknown",
		Sources:          urls,
		Placeholder:      true,
	}}
}

func fallbackOpportunities(sources []types.SourceCandidate) []types.Opportunity {
	titles, _ := titlesAndURLs(sources)
	return []types.Opportunity{{
		Title:              "Manual review required",
		Description:        "No opportunity met the validation threshold. Review the highest-engagement sources listed as evidence.",
		ValidationEvidence: titles,
	}}
}

func fallbackMarketInsights(sources []types.SourceCandidate) []types.MarketInsight {
	titles, _ := titlesAndURLs(sources)
	return []types.MarketInsight{{
		Type:      types.InsightGap,
		Insight:   "The sources did not yield structured market insights.",
		Evidence:  titles,
		Impact:    "unknown",
		Timeframe: "unknown",
	}}
}
