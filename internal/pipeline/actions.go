package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/research-agent/internal/analysis"
	"github.com/jonathan/research-agent/internal/llm"
	"github.com/jonathan/research-agent/internal/logging"
	"github.com/jonathan/research-agent/internal/prompts"
	"github.com/jonathan/research-agent/internal/sanitize"
	"github.com/jonathan/research-agent/internal/schemas"
	"github.com/jonathan/research-agent/internal/types"
)

// ActionItemCount is the number of action items every run produces.
const ActionItemCount = 5

const defaultActionCategory = "research"

// genericActions pad the list when the model returns too few usable items.
var genericActions = []types.ActionItem{
	{Title: "Interview five people who have this problem", Description: "Recruit from the communities in the sources and ask how they solve it today and what it costs them.", Priority: types.PriorityHigh, Category: "validation"},
	{Title: "Catalog existing solutions and their pricing", Description: "List every competitor mentioned, their price points and the complaints users have about them.", Priority: types.PriorityMedium, Category: "research"},
	{Title: "Publish a landing page to test demand", Description: "Describe the solution in one paragraph, add a signup form and measure conversion from community traffic.", Priority: types.PriorityMedium, Category: "marketing"},
	{Title: "Join the communities where the problem is discussed", Description: "Answer questions there for two weeks to learn the vocabulary and find early users.", Priority: types.PriorityLow, Category: "marketing"},
	{Title: "Write down the riskiest assumption and a test for it", Description: "Pick the belief that would sink the idea if wrong and design the cheapest experiment that checks it.", Priority: types.PriorityHigh, Category: "validation"},
}

// GenerateActionItems asks for the next steps implied by a report. It always
// returns exactly ActionItemCount items: invalid or missing items are
// replaced with ones derived from the report.
func GenerateActionItems(ctx context.Context, client llm.Client, goal string, report *analysis.Report, logger *zap.Logger) []types.ActionItem {
	logger = logging.OrNop(logger)

	var generated []types.ActionItem
	p, err := prompts.Render(prompts.Analysis, "generate-actions", map[string]string{
		"Goal":     goal,
		"Findings": analysis.Findings(report),
	})
	if err == nil {
		var raw []json.RawMessage
		raw, err = llm.GenerateJSON[[]json.RawMessage](ctx, client, p, llm.GenerateOptions{Tier: llm.TierStandard})
		if err == nil {
			var rejected []error
			generated, rejected = schemas.DecodeValid[types.ActionItem](schemas.ActionItem, raw)
			for _, rerr := range rejected {
				logger.Debug("dropped invalid action item", zap.Error(rerr))
			}
		}
	}
	if err != nil {
		logger.Warn("action item generation failed, using fallback", zap.Error(err))
	}
	return completeActionItems(generated, report)
}

// completeActionItems dedupes items by title, keeps the first
// ActionItemCount and pads with fallback items.
func completeActionItems(items []types.ActionItem, report *analysis.Report) []types.ActionItem {
	out := make([]types.ActionItem, 0, ActionItemCount)
	seen := make(map[string]bool)
	add := func(item types.ActionItem) {
		key := strings.ToLower(strings.TrimSpace(item.Title))
		if key == "" || seen[key] || len(out) == ActionItemCount {
			return
		}
		seen[key] = true
		item.Title = strings.TrimSpace(item.Title)
		if item.Category == "" {
			item.Category = defaultActionCategory
		}
		out = append(out, item)
	}

	for _, item := range items {
		add(item)
	}
	for _, item := range fallbackActionItems(report) {
		add(item)
	}
	return out
}

// fallbackActionItems derives items from the strongest opportunity and the
// most severe pain point, followed by the generic list.
func fallbackActionItems(report *analysis.Report) []types.ActionItem {
	var items []types.ActionItem
	if report != nil {
		opportunities := append([]types.Opportunity(nil), report.Opportunities...)
		sort.SliceStable(opportunities, func(i, j int) bool {
			return opportunities[i].ValidationScore > opportunities[j].ValidationScore
		})
		for _, o := range opportunities {
			if o.Validated {
				items = append(items, types.ActionItem{
					Title:       "Validate demand for " + o.Title,
					Description: fmt.Sprintf("Test the entry strategy with a small group from %s before building anything.", nonEmptyOr(o.TargetMarket, "the target market")),
					Priority:    types.PriorityHigh,
					Category:    "validation",
				})
				break
			}
		}
		for _, severity := range []types.Severity{types.SeverityHigh, types.SeverityMedium} {
			if p, ok := firstPain(report.PainPoints, severity); ok {
				items = append(items, types.ActionItem{
					Title:       "Quantify the cost of: " + truncateTitle(p.Pain),
					Description: "Ask affected users how much time or money this costs them each month.",
					Priority:    types.PriorityHigh,
					Category:    "research",
				})
				break
			}
		}
	}
	return append(items, genericActions...)
}

func firstPain(points []types.PainPoint, severity types.Severity) (types.PainPoint, bool) {
	for _, p := range points {
		if p.Severity == severity && p.Validated {
			return p, true
		}
	}
	return types.PainPoint{}, false
}

func truncateTitle(s string) string {
	const maxLen = 80
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= maxLen {
		return s
	}
	cut := strings.LastIndex(s[:maxLen], " ")
	if cut <= 0 {
		cut = maxLen
	}
	return s[:cut] + "..."
}

func nonEmptyOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// MaxLeadScore is the top of the lead score scale.
const MaxLeadScore = 10

// GenerateLeads finds community authors showing buying intent. Leads must
// point at one of the given sources; anything else is dropped. The result is
// sorted by score, highest first.
func GenerateLeads(ctx context.Context, client llm.Client, goal string, sources []types.SourceCandidate, logger *zap.Logger) []types.Lead {
	logger = logging.OrNop(logger)

	byURL := make(map[string]types.SourceCandidate)
	var community []types.SourceCandidate
	for _, s := range sources {
		if s.SourceType.IsCommunity() {
			community = append(community, s)
			byURL[s.URL] = s
		}
	}
	if len(community) == 0 {
		logger.Info("no community sources for lead generation")
		return []types.Lead{}
	}

	p, err := prompts.Render(prompts.Analysis, "generate-leads", map[string]string{
		"Goal":    goal,
		"Content": sanitize.Prepare(logger, analysis.Consolidate(community, analysis.DefaultCaps), "community posts", "generate-leads"),
	})
	if err != nil {
		logger.Warn("lead prompt failed", zap.Error(err))
		return []types.Lead{}
	}
	raw, err := llm.GenerateJSON[[]json.RawMessage](ctx, client, p, llm.GenerateOptions{Tier: llm.TierStandard})
	if err != nil {
		logger.Warn("lead generation failed", zap.Error(err))
		return []types.Lead{}
	}
	decoded, rejected := schemas.DecodeValid[types.Lead](schemas.Lead, raw)
	for _, rerr := range rejected {
		logger.Debug("dropped invalid lead", zap.Error(rerr))
	}

	leads := make([]types.Lead, 0, len(decoded))
	seen := make(map[string]bool)
	for _, l := range decoded {
		l.Name = strings.TrimSpace(l.Name)
		src, ok := byURL[strings.TrimSpace(l.URL)]
		if l.Name == "" || !ok {
			continue
		}
		l.URL = src.URL
		key := l.Name + "|" + l.URL
		if seen[key] {
			continue
		}
		seen[key] = true
		if l.Platform == "" {
			l.Platform = src.Provider
		}
		switch {
		case l.Score < 0:
			l.Score = 0
		case l.Score > MaxLeadScore:
			l.Score = MaxLeadScore
		}
		leads = append(leads, l)
	}
	sort.SliceStable(leads, func(i, j int) bool { return leads[i].Score > leads[j].Score })
	return leads
}
