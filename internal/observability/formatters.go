// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/research-agent/internal/pipeline/steps"
	"github.com/jonathan/research-agent/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len([]rune(line)) > boxWidth-4 {
			line = clip(line, boxWidth-4)
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// clip shortens s to at most n runes, ending in "...".
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// PrintRun outputs the status line of a research run.
func (p *Printer) PrintRun(run *types.ResearchRun) {
	if run == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:      %s\n", run.ID))
	sb.WriteString(fmt.Sprintf("Status:   %s (%d%%)\n", run.Status, run.Progress))
	sb.WriteString(fmt.Sprintf("Method:   %s\n", run.SearchMethod))
	sb.WriteString(fmt.Sprintf("Scope:    %s\n", run.Scope))
	sb.WriteString(fmt.Sprintf("Prompt:   %s\n", run.Prompt))
	if run.RefinedPrompt != "" {
		sb.WriteString(fmt.Sprintf("Goal:     %s\n", run.RefinedPrompt))
	}
	if run.ErrorMessage != nil {
		sb.WriteString(fmt.Sprintf("Error:    %s\n", *run.ErrorMessage))
	}
	if run.AnalysisResult != nil && run.AnalysisResult.Summary != "" {
		sb.WriteString("\n")
		sb.WriteString(run.AnalysisResult.Summary)
	}

	p.printBox("RESEARCH RUN", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintSources outputs the top sources with their type and engagement.
func (p *Printer) PrintSources(sources []types.SourceCandidate) {
	if len(sources) == 0 {
		return
	}

	var sb strings.Builder
	community := 0
	for _, s := range sources {
		if s.SourceType.IsCommunity() {
			community++
		}
	}
	sb.WriteString(fmt.Sprintf("Total sources: %d (%d community)\n\n", len(sources), community))

	count := min(len(sources), maxItemsToShow)
	for i := 0; i < count; i++ {
		s := sources[i]
		title := s.Title
		if title == "" {
			title = s.URL
		}
		sb.WriteString(fmt.Sprintf("#%d  %s\n", i+1, clip(title, 50)))
		sb.WriteString(fmt.Sprintf("    %s", s.SourceType))
		if s.Provider != "" {
			sb.WriteString(fmt.Sprintf(" via %s", s.Provider))
		}
		if s.Metadata.EngagementScore > 0 {
			sb.WriteString(fmt.Sprintf(", score %d", s.Metadata.EngagementScore))
		}
		sb.WriteString("\n")
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(sources) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more sources", len(sources)-maxItemsToShow))
	}

	p.printBox("SOURCES", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintInsights outputs the persisted insights grouped by category.
func (p *Printer) PrintInsights(insights []types.Insight) {
	if len(insights) == 0 {
		return
	}

	var (
		order  []string
		groups = make(map[string][]types.Insight)
	)
	for _, in := range insights {
		if _, ok := groups[in.Category]; !ok {
			order = append(order, in.Category)
		}
		groups[in.Category] = append(groups[in.Category], in)
	}

	var sb strings.Builder
	for gi, category := range order {
		group := groups[category]
		sb.WriteString(fmt.Sprintf("%s (%d):\n", category, len(group)))
		count := min(len(group), 3)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  • %s [%.2f]\n", clip(group[i].Title, 42), group[i].Confidence))
		}
		if len(group) > 3 {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(group)-3))
		}
		if gi < len(order)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("INSIGHTS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintActionItems outputs the action items with their priority.
func (p *Printer) PrintActionItems(items []types.ActionItem) {
	if len(items) == 0 {
		return
	}

	var sb strings.Builder
	for i, item := range items {
		sb.WriteString(fmt.Sprintf("%d. [%s] %s\n", i+1, item.Priority, item.Title))
		if item.Category != "" {
			sb.WriteString(fmt.Sprintf("   %s\n", item.Category))
		}
	}

	p.printBox("ACTION ITEMS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintLeads outputs the top leads.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintLeads(leads []types.Lead) {
	if len(leads) == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "NO LEADS FOUND")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d leads:\n\n", len(leads)))

	count := min(len(leads), maxItemsToShow)
	for i := 0; i < count; i++ {
		l := leads[i]
		sb.WriteString(fmt.Sprintf("★ %s on %s (%.1f)\n", l.Name, l.Platform, l.Score))
		if l.IntentSignal != "" {
			sb.WriteString(fmt.Sprintf("  %s\n", clip(l.IntentSignal, 50)))
		}
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(leads) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more leads", len(leads)-maxItemsToShow))
	}

	p.printBox("LEADS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintStages outputs the checkpoint state of every stage.
func (p *Printer) PrintStages(statuses []steps.StageStatus) {
	if len(statuses) == 0 {
		return
	}

	var sb strings.Builder
	for _, s := range statuses {
		mark := "·"
		switch {
		case s.Completed:
			mark = "✓"
		case s.Blocked:
			mark = "✗"
		}
		sb.WriteString(fmt.Sprintf("%s %-24s %s\n", mark, s.Name, s.Category))
	}

	p.printBox("STAGES", strings.TrimSuffix(sb.String(), "\n"))
}
