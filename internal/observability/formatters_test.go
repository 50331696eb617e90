package observability

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jonathan/research-agent/internal/pipeline/steps"
	"github.com/jonathan/research-agent/internal/types"
)

func TestPrintRun(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	msg := "no sources found for this research goal"
	run := &types.ResearchRun{
		ID:             uuid.MustParse("6f1c7c52-3d36-4a57-9f8e-7d3c6c0f7b11"),
		Prompt:         "freelance invoicing",
		RefinedPrompt:  "pain points of freelancers sending invoices",
		Status:         types.RunStatusFailed,
		Progress:       30,
		SearchMethod:   types.SearchMethodStandard,
		Scope:          types.ScopeLeads,
		ErrorMessage:   &msg,
		AnalysisResult: &types.AnalysisResult{Summary: "Late payments dominate."},
	}

	p.PrintRun(run)
	output := buf.String()

	assert.Contains(t, output, "RESEARCH RUN")
	assert.Contains(t, output, "6f1c7c52")
	assert.Contains(t, output, "failed (30%)")
	assert.Contains(t, output, "leads")
	assert.Contains(t, output, "no sources found")
	assert.Contains(t, output, "Late payments dominate.")
}

func TestPrintRun_Nil(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintRun(nil)

	assert.Empty(t, buf.String())
}

func TestPrintSources(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	sources := []types.SourceCandidate{
		{URL: "https://reddit.com/r/a/1", Title: "Invoicing is killing me", SourceType: types.SourceTypeDiscussionForum, Provider: "reddit", Metadata: types.SourceMetadata{EngagementScore: 120}},
		{URL: "https://blog.example.com/post", SourceType: types.SourceTypeGenericWeb},
	}
	for i := 0; i < 5; i++ {
		sources = append(sources, types.SourceCandidate{URL: fmt.Sprintf("https://example.com/%d", i), SourceType: types.SourceTypeGenericWeb})
	}

	p.PrintSources(sources)
	output := buf.String()

	assert.Contains(t, output, "SOURCES")
	assert.Contains(t, output, "Total sources: 7 (1 community)")
	assert.Contains(t, output, "discussion-forum via reddit, score 120")
	assert.Contains(t, output, "https://blog.example.com/post", "URL stands in for a missing title")
	assert.Contains(t, output, "... and 2 more sources")
}

func TestPrintInsights(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintInsights([]types.Insight{
		{Title: "Chasing late invoices", Category: "pain_point", Confidence: 0.85},
		{Title: "Invoice autopilot", Category: "opportunity", Confidence: 0.8},
		{Title: "Manual reminders", Category: "pain_point", Confidence: 0.55},
	})
	output := buf.String()

	assert.Contains(t, output, "INSIGHTS")
	assert.Contains(t, output, "pain_point (2)")
	assert.Contains(t, output, "opportunity (1)")
	assert.Contains(t, output, "Chasing late invoices [0.85]")
	assert.Less(t, strings.Index(output, "pain_point"), strings.Index(output, "opportunity"), "categories keep first-seen order")
}

func TestPrintActionItems(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintActionItems([]types.ActionItem{
		{Title: "Interview five designers", Priority: types.PriorityHigh, Category: "validation"},
		{Title: "Price competitors", Priority: types.PriorityMedium},
	})
	output := buf.String()

	assert.Contains(t, output, "ACTION ITEMS")
	assert.Contains(t, output, "1. [high] Interview five designers")
	assert.Contains(t, output, "2. [medium] Price competitors")
	assert.Contains(t, output, "validation")
}

func TestPrintLeads(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintLeads([]types.Lead{
		{Name: "sam", Platform: "reddit", Score: 9.5, IntentSignal: "asked for a paid tool"},
	})
	output := buf.String()

	assert.Contains(t, output, "LEADS")
	assert.Contains(t, output, "sam on reddit (9.5)")
	assert.Contains(t, output, "asked for a paid tool")
}

func TestPrintLeads_Empty(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintLeads(nil)

	assert.Contains(t, buf.String(), "NO LEADS FOUND")
}

func TestPrintStages(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintStages([]steps.StageStatus{
		{Name: steps.FetchRun, Category: steps.CategorySetup, Completed: true},
		{Name: steps.Analyze, Category: steps.CategoryAnalysis, Blocked: true},
		{Name: steps.Finalize, Category: steps.CategoryOutput},
	})
	output := buf.String()

	assert.Contains(t, output, "STAGES")
	assert.Contains(t, output, "✓ fetch-run")
	assert.Contains(t, output, "✗ analyze")
	assert.Contains(t, output, "· finalize")
}

func TestPrintBox_TruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.printBox("TITLE", strings.Repeat("x", 100))

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.LessOrEqual(t, len([]rune(line)), boxWidth)
	}
	assert.Contains(t, buf.String(), "...")
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short", 10))
	assert.Equal(t, "abcdefg...", clip("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", clip("abcdef", 2))
}
