package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/research-agent/internal/analysis"
	"github.com/jonathan/research-agent/internal/llm"
	"github.com/jonathan/research-agent/internal/providers"
	"github.com/jonathan/research-agent/internal/types"
)

func TestCompleteActionItems(t *testing.T) {
	report := &analysis.Report{
		Opportunities: []types.Opportunity{
			{Title: "Weak idea", ValidationScore: 9},
			{Title: "Invoice autopilot", ValidationScore: 8, Validated: true, TargetMarket: "designers"},
		},
		PainPoints: []types.PainPoint{
			{Pain: "Unvalidated", Severity: types.SeverityHigh},
			{Pain: "Chasing   late\ninvoices", Severity: types.SeverityMedium, Validated: true},
		},
	}

	tests := []struct {
		name       string
		items      []types.ActionItem
		report     *analysis.Report
		wantTitles []string
	}{
		{
			name: "dedupes and pads from the report",
			items: []types.ActionItem{
				{Title: "Talk to users", Priority: types.PriorityHigh},
				{Title: " talk to USERS ", Priority: types.PriorityLow},
				{Title: "  ", Priority: types.PriorityLow},
			},
			report: report,
			wantTitles: []string{
				"Talk to users",
				"Validate demand for Invoice autopilot",
				"Quantify the cost of: Chasing late invoices",
				genericActions[0].Title,
				genericActions[1].Title,
			},
		},
		{
			name: "keeps the first five",
			items: []types.ActionItem{
				{Title: "a"}, {Title: "b"}, {Title: "c"}, {Title: "d"}, {Title: "e"}, {Title: "f"},
			},
			wantTitles: []string{"a", "b", "c", "d", "e"},
		},
		{
			name:   "nothing generated and no report",
			report: nil,
			wantTitles: []string{
				genericActions[0].Title,
				genericActions[1].Title,
				genericActions[2].Title,
				genericActions[3].Title,
				genericActions[4].Title,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := completeActionItems(tt.items, tt.report)
			require.Len(t, got, ActionItemCount)
			titles := make([]string, len(got))
			for i, item := range got {
				titles[i] = item.Title
				assert.NotEmpty(t, item.Category)
			}
			assert.Equal(t, tt.wantTitles, titles)
		})
	}
}

func TestGenerateActionItems_FallsBackWhenModelFails(t *testing.T) {
	client := &routedClient{provider: llm.ProviderGemini, err: errors.New("unavailable")}

	items := GenerateActionItems(context.Background(), client, "goal", nil, nil)
	require.Len(t, items, ActionItemCount)
	assert.Equal(t, genericActions[0].Title, items[0].Title)
}

func TestGenerateActionItems_DropsInvalidItems(t *testing.T) {
	client := &routedClient{provider: llm.ProviderGemini, routes: defaultRoutes}

	items := GenerateActionItems(context.Background(), client, "goal", &analysis.Report{}, nil)
	require.Len(t, items, ActionItemCount)
	assert.Equal(t, "Interview ten designers", items[0].Title)
	assert.Equal(t, "Price competitors", items[1].Title)
	assert.Equal(t, genericActions[0].Title, items[2].Title)
}

func TestTruncateTitle(t *testing.T) {
	assert.Equal(t, "short", truncateTitle("  short "))
	got := truncateTitle(strings.Repeat("word ", 24))
	assert.LessOrEqual(t, len(got), 83)
	assert.Contains(t, got, "...")
}

func TestGenerateLeads(t *testing.T) {
	sources := (&staticProvider{}).Search(context.Background(), "", providers.SearchOptions{})

	t.Run("keeps leads on community sources", func(t *testing.T) {
		client := &routedClient{provider: llm.ProviderGemini, routes: defaultRoutes}
		leads := GenerateLeads(context.Background(), client, "goal", sources, nil)
		require.Len(t, leads, 1)
		assert.Equal(t, "sam", leads[0].Name)
	})

	t.Run("dedupes and sorts by score", func(t *testing.T) {
		client := &routedClient{provider: llm.ProviderGemini, routes: map[string]string{
			"sales researcher": `[
				{"name":"kim","url":"` + hnURL + `","score":4},
				{"name":"sam","url":"` + redditURL + `","score":8},
				{"name":"sam","url":"` + redditURL + `","score":2},
				{"name":"blogger","url":"` + blogURL + `","score":9},
				{"name":"","url":"` + redditURL + `","score":9}
			]`,
		}}
		leads := GenerateLeads(context.Background(), client, "goal", sources, nil)
		require.Len(t, leads, 2)
		assert.Equal(t, "sam", leads[0].Name)
		assert.Equal(t, 8.0, leads[0].Score)
		assert.Equal(t, "kim", leads[1].Name)
		assert.Equal(t, "hackernews", leads[1].Platform, "platform defaults to the source provider")
	})

	t.Run("no community sources skips the model", func(t *testing.T) {
		client := &routedClient{provider: llm.ProviderGemini, err: errors.New("must not be called")}
		leads := GenerateLeads(context.Background(), client, "goal", sources[2:], nil)
		assert.NotNil(t, leads)
		assert.Empty(t, leads)
	})

	t.Run("model failure yields no leads", func(t *testing.T) {
		client := &routedClient{provider: llm.ProviderGemini, err: errors.New("unavailable")}
		leads := GenerateLeads(context.Background(), client, "goal", sources, nil)
		assert.Empty(t, leads)
	})
}
