package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// RunStatus is the research run state machine
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCancelled  RunStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// SearchMethod selects the source acquisition path
type SearchMethod string

const (
	// SearchMethodStandard is multi-provider discovery plus the gap loop
	SearchMethodStandard SearchMethod = "standard"
	// SearchMethodPaidSearch uses only the paid search API
	SearchMethodPaidSearch SearchMethod = "paid_search"
	// SearchMethodDeepResearch hands acquisition to an external delegate
	SearchMethodDeepResearch SearchMethod = "deep_research"
)

// OrDefault maps the empty method to SearchMethodStandard.
func (m SearchMethod) OrDefault() SearchMethod {
	if m == "" {
		return SearchMethodStandard
	}
	return m
}

// Scope controls optional stages
type Scope string

const (
	ScopeInsights Scope = "insights"
	ScopeLeads    Scope = "leads"
)

// OrDefault maps the empty scope to ScopeInsights.
func (s Scope) OrDefault() Scope {
	if s == "" {
		return ScopeInsights
	}
	return s
}

// RetryOptions are passed with a retry request.
type RetryOptions struct {
	SkipSearch bool   `json:"skip_search,omitempty"`
	Provider   string `json:"provider,omitempty" validate:"omitempty,oneof=gemini openai anthropic"`
	Model      string `json:"model,omitempty"`
}

// ResearchRun is the orchestrator-owned run record
type ResearchRun struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	Prompt         string          `json:"prompt"`
	RefinedPrompt  string          `json:"refined_prompt,omitempty"`
	PromptHash     string          `json:"prompt_hash,omitempty"`
	Status         RunStatus       `json:"status"`
	Progress       int             `json:"progress"`
	SearchMethod   SearchMethod    `json:"search_method"`
	Scope          Scope           `json:"scope"`
	AnalysisResult *AnalysisResult `json:"analysis_result,omitempty"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// ResearchEvent is the inbound request that triggers a run.
type ResearchEvent struct {
	RunID        string        `json:"run_id" validate:"required,uuid"`
	UserID       string        `json:"user_id" validate:"required,uuid"`
	RetryOptions *RetryOptions `json:"retry_options,omitempty"`
}

// Validate validates the event using the validator.
func (e *ResearchEvent) Validate() error {
	validate := validator.New()
	return validate.Struct(e)
}
