package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/research-agent/internal/prompts"
	"github.com/jonathan/research-agent/internal/sanitize"
)

// DefaultContextBudget caps the accumulated content sent with a single prompt, in characters.
const DefaultContextBudget = 30000

// GapAnalysis is the result of asking what the research still lacks
type GapAnalysis struct {
	HasGaps          bool     `json:"hasGaps"`
	Gaps             []string `json:"gaps"`
	SuggestedQueries []string `json:"suggestedQueries"`
}

// Assistant exposes the research-level operations on top of a Client.
type Assistant struct {
	client Client
	// ContextBudget caps accumulated content per prompt, in characters
	ContextBudget int
	// Logger receives injection warnings; nil is silent
	Logger *zap.Logger
}

// NewAssistant wraps a client.
func NewAssistant(c Client) *Assistant {
	return &Assistant{client: c, ContextBudget: DefaultContextBudget}
}

// Client returns the underlying client.
func (a *Assistant) Client() Client {
	return a.client
}

// RefinePrompt rewrites a raw research request into a search-oriented goal.
// It doubles as the canary call for provider fallback.
func (a *Assistant) RefinePrompt(ctx context.Context, prompt string) (string, error) {
	p, err := prompts.Render(prompts.Research, "refine-prompt", map[string]string{"Prompt": prompt})
	if err != nil {
		return "", err
	}
	text, err := a.client.GenerateText(ctx, p, GenerateOptions{Tier: TierLite, MaxTokens: 512})
	if err != nil {
		return "", err
	}
	refined := strings.Trim(strings.TrimSpace(text), `"`)
	if refined == "" {
		return prompt, nil
	}
	return refined, nil
}

// AnalyzeContent summarizes what a body of content says about the goal.
func (a *Assistant) AnalyzeContent(ctx context.Context, goal, content string) (string, error) {
	p, err := prompts.Render(prompts.Research, "analyze-content", map[string]string{
		"Goal":    goal,
		"Content": sanitize.Prepare(a.Logger, TruncateContent(content, a.budget()), "research material", "analyze-content"),
	})
	if err != nil {
		return "", err
	}
	return a.client.GenerateText(ctx, p, GenerateOptions{Tier: TierStandard})
}

// IdentifyGaps asks what is missing relative to the original goal.
func (a *Assistant) IdentifyGaps(ctx context.Context, goal, accumulated string) (*GapAnalysis, error) {
	p, err := prompts.Render(prompts.Research, "identify-gaps", map[string]string{
		"Goal":    goal,
		"Content": sanitize.Prepare(a.Logger, TruncateContent(accumulated, a.budget()), "accumulated research", "identify-gaps"),
	})
	if err != nil {
		return nil, err
	}
	gaps, err := GenerateJSON[GapAnalysis](ctx, a.client, p, GenerateOptions{Tier: TierLite, MaxTokens: 1024})
	if err != nil {
		return nil, fmt.Errorf("gap analysis failed: %w", err)
	}
	return &gaps, nil
}

// SynthesizeFinalReport writes one consolidated report from all accumulated content.
func (a *Assistant) SynthesizeFinalReport(ctx context.Context, goal, accumulated string) (string, error) {
	p, err := prompts.Render(prompts.Research, "synthesize-report", map[string]string{
		"Goal":    goal,
		"Content": sanitize.Prepare(a.Logger, TruncateContent(accumulated, a.budget()), "accumulated research", "synthesize-report"),
	})
	if err != nil {
		return "", err
	}
	return a.client.GenerateText(ctx, p, GenerateOptions{Tier: TierAdvanced})
}

// GenerateText is a pass-through for free-form prompts.
func (a *Assistant) GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	return a.client.GenerateText(ctx, prompt, opts)
}

func (a *Assistant) budget() int {
	if a.ContextBudget <= 0 {
		return DefaultContextBudget
	}
	return a.ContextBudget
}

const truncationMarker = "\n[truncated]"

// TruncateContent cuts s on a rune boundary so the result, marker included,
// is at most max bytes.
func TruncateContent(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= len(truncationMarker) {
		return s[:runeFloor(s, max)]
	}
	return s[:runeFloor(s, max-len(truncationMarker))] + truncationMarker
}

// runeFloor is the largest rune start at or below i.
func runeFloor(s string, i int) int {
	for i > 0 && !isRuneStart(s[i]) {
		i--
	}
	return i
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
