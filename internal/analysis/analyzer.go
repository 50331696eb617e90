// Package analysis runs the structured LLM extraction passes over research sources.
//
// Each pass asks for JSON, validates every returned item against its schema
// and keeps the ones that pass. A pass that ends up with nothing usable falls
// back to a deterministic placeholder built from the sources, so callers
// always get a definite answer. Scores the model reports are candidates only;
// the validation package owns the final values.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/research-agent/internal/llm"
	"github.com/jonathan/research-agent/internal/logging"
	"github.com/jonathan/research-agent/internal/prompts"
	"github.com/jonathan/research-agent/internal/sanitize"
	"github.com/jonathan/research-agent/internal/schemas"
	"github.com/jonathan/research-agent/internal/types"
)

// DefaultDelay is the pause between passes.
const DefaultDelay = 2 * time.Second

// MinOpportunityScore is the exclusive lower bound on a model-reported validationScore.
const MinOpportunityScore = 6

// Report is the combined output of all passes.
type Report struct {
	PainPoints       []types.PainPoint         `json:"painPoints"`
	Opportunities    []types.Opportunity       `json:"opportunities"`
	MarketInsights   []types.MarketInsight     `json:"marketInsights"`
	Competitors      []types.CompetitorProfile `json:"competitors"`
	ExecutiveSummary string                    `json:"executiveSummary"`
}

// Analyzer runs the extraction passes against one LLM client.
type Analyzer struct {
	LLM    llm.Client
	Delay  time.Duration
	Caps   Caps
	Logger *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New returns an Analyzer with the default caps.
func New(client llm.Client, delay time.Duration, logger *zap.Logger) *Analyzer {
	return &Analyzer{LLM: client, Delay: delay, Caps: DefaultCaps, Logger: logger}
}

func (a *Analyzer) logger() *zap.Logger {
	return logging.OrNop(a.Logger)
}

// Analyze runs the four extraction passes and the summary sequentially,
// pausing Delay between them. It only fails when ctx is cancelled.
func (a *Analyzer) Analyze(ctx context.Context, goal string, sources []types.SourceCandidate) (*Report, error) {
	report := &Report{}
	passes := []struct {
		name string
		run  func()
	}{
		{"pain-points", func() { report.PainPoints = a.ExtractPainPoints(ctx, goal, sources) }},
		{"opportunities", func() { report.Opportunities = a.IdentifyOpportunities(ctx, goal, sources) }},
		{"market-insights", func() { report.MarketInsights = a.ExtractMarketInsights(ctx, goal, sources) }},
		{"competitors", func() { report.Competitors = a.AnalyzeCompetitors(ctx, goal, sources) }},
		{"summary", func() { report.ExecutiveSummary = a.Synthesize(ctx, goal, report) }},
	}

	for i, p := range passes {
		if i > 0 && a.Delay > 0 {
			if err := a.pause(ctx, a.Delay); err != nil {
				return nil, err
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		p.run()
		a.logger().Debug("analysis pass finished", zap.String("pass", p.name), zap.Duration("took", time.Since(start)))
	}
	return report, nil
}

// ExtractPainPoints extracts complaints from community sources. It always
// returns at least one item.
func (a *Analyzer) ExtractPainPoints(ctx context.Context, goal string, sources []types.SourceCandidate) []types.PainPoint {
	community := communitySources(sources)
	if len(community) == 0 {
		a.logger().Info("no community sources for pain point extraction")
		return fallbackPainPoints(nil)
	}

	items, err := a.generateItems(ctx, "extract-pain-points", goal, Consolidate(community, a.Caps), schemas.PainPoint)
	if err != nil {
		a.logger().Warn("pain point extraction failed, using fallback", zap.Error(err))
		return fallbackPainPoints(community)
	}
	points, rejected := schemas.DecodeValid[types.PainPoint](schemas.PainPoint, items)
	a.logRejected("pain-points", rejected)
	if len(points) == 0 {
		return fallbackPainPoints(community)
	}
	for i := range points {
		if points[i].Severity == "" {
			points[i].Severity = types.SeverityMedium
		}
		points[i].Validated = false
	}
	return points
}

// IdentifyOpportunities extracts opportunities scored above MinOpportunityScore.
func (a *Analyzer) IdentifyOpportunities(ctx context.Context, goal string, sources []types.SourceCandidate) []types.Opportunity {
	items, err := a.generateItems(ctx, "identify-opportunities", goal, Consolidate(sources, a.Caps), schemas.Opportunity)
	if err != nil {
		a.logger().Warn("opportunity extraction failed, using fallback", zap.Error(err))
		return fallbackOpportunities(sources)
	}
	decoded, rejected := schemas.DecodeValid[types.Opportunity](schemas.Opportunity, items)
	a.logRejected("opportunities", rejected)

	var kept []types.Opportunity
	for _, o := range decoded {
		if o.ValidationScore > MinOpportunityScore {
			o.Validated = false
			kept = append(kept, o)
		}
	}
	if len(kept) == 0 {
		a.logger().Info("no opportunity above threshold", zap.Int("returned", len(decoded)))
		return fallbackOpportunities(sources)
	}
	return kept
}

// ExtractMarketInsights extracts trends, patterns, shifts and gaps.
func (a *Analyzer) ExtractMarketInsights(ctx context.Context, goal string, sources []types.SourceCandidate) []types.MarketInsight {
	items, err := a.generateItems(ctx, "extract-market-insights", goal, Consolidate(sources, a.Caps), schemas.MarketInsight)
	if err != nil {
		a.logger().Warn("market insight extraction failed, using fallback", zap.Error(err))
		return fallbackMarketInsights(sources)
	}
	insights, rejected := schemas.DecodeValid[types.MarketInsight](schemas.MarketInsight, items)
	a.logRejected("market-insights", rejected)
	if len(insights) == 0 {
		return fallbackMarketInsights(sources)
	}
	return insights
}

// AnalyzeCompetitors extracts named competitors. It returns an empty list
// when the output cannot be parsed.
func (a *Analyzer) AnalyzeCompetitors(ctx context.Context, goal string, sources []types.SourceCandidate) []types.CompetitorProfile {
	p, err := a.render("analyze-competitors", goal, Consolidate(sources, a.Caps))
	if err != nil {
		a.logger().Warn("competitor prompt failed", zap.Error(err))
		return []types.CompetitorProfile{}
	}
	text, err := a.LLM.GenerateText(ctx, p, llm.GenerateOptions{Tier: llm.TierStandard, JSON: true})
	if err != nil {
		a.logger().Warn("competitor analysis failed", zap.Error(err))
		return []types.CompetitorProfile{}
	}

	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		a.logger().Warn("competitor analysis returned no JSON object")
		return []types.CompetitorProfile{}
	}
	var wrapper struct {
		Competitors []json.RawMessage `json:"competitors"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &wrapper); err != nil {
		a.logger().Warn("competitor analysis returned invalid JSON", zap.Error(err))
		return []types.CompetitorProfile{}
	}
	competitors, rejected := schemas.DecodeValid[types.CompetitorProfile](schemas.Competitor, wrapper.Competitors)
	a.logRejected("competitors", rejected)
	if competitors == nil {
		return []types.CompetitorProfile{}
	}
	return competitors
}

// Synthesize writes the executive summary from the other passes. On failure
// it returns SummaryFailed.
func (a *Analyzer) Synthesize(ctx context.Context, goal string, report *Report) string {
	p, err := prompts.Render(prompts.Analysis, "synthesize-summary", map[string]string{
		"Goal":     goal,
		"Findings": Findings(report),
	})
	if err != nil {
		a.logger().Warn("summary prompt failed", zap.Error(err))
		return SummaryFailed
	}
	text, err := a.LLM.GenerateText(ctx, p, llm.GenerateOptions{Tier: llm.TierAdvanced})
	if err != nil || strings.TrimSpace(text) == "" {
		a.logger().Warn("summary generation failed", zap.Error(err))
		return SummaryFailed
	}
	return strings.TrimSpace(text)
}

// Findings renders a compact text view of a report for follow-up prompts.
func Findings(report *Report) string {
	if report == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Pain points:\n")
	for _, p := range report.PainPoints {
		fmt.Fprintf(&b, "- [%s] %s\n", p.Severity, p.Pain)
	}
	b.WriteString("\nOpportunities:\n")
	for _, o := range report.Opportunities {
		fmt.Fprintf(&b, "- %s (score %.1f): %s\n", o.Title, o.ValidationScore, o.Description)
	}
	b.WriteString("\nMarket insights:\n")
	for _, m := range report.MarketInsights {
		fmt.Fprintf(&b, "- [%s] %s\n", m.Type, m.Insight)
	}
	b.WriteString("\nCompetitors:\n")
	for _, c := range report.Competitors {
		fmt.Fprintf(&b, "- %s (%s)\n", c.Name, c.Sentiment)
	}
	return b.String()
}

func (a *Analyzer) render(key, goal, content string) (string, error) {
	return prompts.Render(prompts.Analysis, key, map[string]string{
		"Goal":    goal,
		"Content": sanitize.Prepare(a.logger(), content, "research sources", key),
	})
}

// generateItems runs a prompt that returns a JSON array and hands back the
// raw elements for schema checks.
func (a *Analyzer) generateItems(ctx context.Context, key, goal, content, schema string) ([]json.RawMessage, error) {
	p, err := a.render(key, goal, content)
	if err != nil {
		return nil, err
	}
	items, err := llm.GenerateJSON[[]json.RawMessage](ctx, a.LLM, p, llm.GenerateOptions{Tier: llm.TierStandard})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", schema, err)
	}
	return items, nil
}

func (a *Analyzer) logRejected(pass string, rejected []error) {
	for _, err := range rejected {
		a.logger().Debug("dropped invalid item", zap.String("pass", pass), zap.Error(err))
	}
}

func (a *Analyzer) pause(ctx context.Context, d time.Duration) error {
	if a.sleep != nil {
		return a.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
