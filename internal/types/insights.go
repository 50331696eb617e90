package types

// Severity of a pain point
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// PainPoint is a user complaint extracted from community sources.
// Validated and ActionabilityScore are owned by the validator.
type PainPoint struct {
	Pain               string   `json:"pain"`
	Severity           Severity `json:"severity"`
	Frequency          string   `json:"frequency"`
	WillingnessToPay   string   `json:"willingnessToPay"`
	CurrentSolutions   []string `json:"currentSolutions"`
	Quotes             []string `json:"quotes"`
	Sources            []string `json:"sources"`
	Validated          bool     `json:"validated"`
	ActionabilityScore int      `json:"actionabilityScore"`
	// Placeholder marks the stand-in produced when extraction fails; it is never validated
	Placeholder bool `json:"placeholder,omitempty"`
}

// Opportunity is a business opportunity derived from the sources.
type Opportunity struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	TargetMarket       string   `json:"targetMarket"`
	ValidationEvidence []string `json:"validationEvidence"`
	EntryStrategy      string   `json:"entryStrategy"`
	RevenueEstimate    string   `json:"revenueEstimate"`
	Competition        string   `json:"competition"`
	Risks              []string `json:"risks"`
	ValidationScore    float64  `json:"validationScore"`
	RedFlags           []string `json:"redFlags,omitempty"`
	Validated          bool     `json:"validated"`
}

// InsightType categorizes a market insight
type InsightType string

const (
	InsightTrend   InsightType = "trend"
	InsightPattern InsightType = "pattern"
	InsightShift   InsightType = "shift"
	InsightGap     InsightType = "gap"
)

// MarketInsight is a trend, pattern, shift or gap.
type MarketInsight struct {
	Type      InsightType `json:"type"`
	Insight   string      `json:"insight"`
	Evidence  []string    `json:"evidence"`
	Impact    string      `json:"impact"`
	Timeframe string      `json:"timeframe"`
	Validated bool        `json:"validated"`
}

// CompetitorProfile is a named competitor seen in the sources.
type CompetitorProfile struct {
	Name       string   `json:"name"`
	Sentiment  string   `json:"sentiment"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
	Pricing    string   `json:"pricing"`
	Validated  bool     `json:"validated"`
}

// Insight is one flattened entry of the persisted analysis result
type Insight struct {
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// AnalysisResult is produced once per run and embedded in the run record.
type AnalysisResult struct {
	Insights []Insight `json:"insights"`
	Summary  string    `json:"summary"`
	Trends   []string  `json:"trends"`
}

// Priority of an action item
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ActionItem is a concrete next step generated at the end of a run.
type ActionItem struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority"`
	Category    string   `json:"category"`
}

// Lead is a prospect showing buying intent in a community source.
type Lead struct {
	Name         string  `json:"name"`
	Platform     string  `json:"platform"`
	URL          string  `json:"url"`
	Context      string  `json:"context"`
	IntentSignal string  `json:"intentSignal"`
	Score        float64 `json:"score"`
}
