// Package steps defines the research pipeline stages, their ordering
// constraints and the progress each one reports on completion.
package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/research-agent/internal/step"
)

// Stage names, also used as step executor keys
const (
	FetchRun            = "fetch-run"
	LoadCredentials     = "load-credentials"
	LoadExistingSources = "load-existing-sources"
	CheckQueryCache     = "check-query-cache"
	CopyCachedRun       = "copy-cached-run"
	RefinePrompt        = "refine-prompt"
	AcquireSources      = "acquire-sources"
	DelegateStart       = "delegate-start"
	PersistSources      = "persist-sources"
	Analyze             = "analyze"
	PersistInsights     = "persist-insights"
	GenerateActions     = "generate-actions"
	GenerateLeads       = "generate-leads"
	Finalize            = "finalize"
)

// Stage categories
const (
	CategorySetup       = "setup"
	CategoryAcquisition = "acquisition"
	CategoryAnalysis    = "analysis"
	CategoryOutput      = "output"
)

// DelegatePoll names the nth status check of a deep research task.
func DelegatePoll(n int) string {
	return fmt.Sprintf("delegate-poll-%d", n)
}

// DelegateWait names the sleep before the nth status check.
func DelegateWait(n int) string {
	return fmt.Sprintf("delegate-wait-%d", n)
}

// StageDefinition defines metadata for a pipeline stage
type StageDefinition struct {
	Name         string
	Category     string
	Dependencies []string
	Optional     []string
	// Progress is recorded when the stage completes; zero leaves it unchanged
	Progress int
}

// Order is the execution order of the stages. Not every run executes every
// stage: the source path depends on the search method and retry options.
var Order = []string{
	FetchRun, LoadCredentials, LoadExistingSources, CheckQueryCache, CopyCachedRun,
	RefinePrompt, AcquireSources, DelegateStart, PersistSources,
	Analyze, PersistInsights, GenerateActions, GenerateLeads, Finalize,
}

// StageRegistry holds all stage definitions
var StageRegistry = map[string]StageDefinition{
	FetchRun: {
		Name:     FetchRun,
		Category: CategorySetup,
		Progress: 5,
	},
	LoadCredentials: {
		Name:         LoadCredentials,
		Category:     CategorySetup,
		Dependencies: []string{FetchRun},
	},
	LoadExistingSources: {
		Name:         LoadExistingSources,
		Category:     CategoryAcquisition,
		Dependencies: []string{LoadCredentials},
		Progress:     60,
	},
	CheckQueryCache: {
		Name:         CheckQueryCache,
		Category:     CategorySetup,
		Dependencies: []string{LoadCredentials},
	},
	CopyCachedRun: {
		Name:         CopyCachedRun,
		Category:     CategoryOutput,
		Dependencies: []string{CheckQueryCache},
	},
	RefinePrompt: {
		Name:         RefinePrompt,
		Category:     CategorySetup,
		Dependencies: []string{LoadCredentials},
	},
	AcquireSources: {
		Name:         AcquireSources,
		Category:     CategoryAcquisition,
		Dependencies: []string{RefinePrompt},
		Progress:     30,
	},
	DelegateStart: {
		Name:         DelegateStart,
		Category:     CategoryAcquisition,
		Dependencies: []string{RefinePrompt},
	},
	PersistSources: {
		Name:     PersistSources,
		Category: CategoryAcquisition,
		Optional: []string{AcquireSources, DelegateStart},
		Progress: 60,
	},
	Analyze: {
		Name:         Analyze,
		Category:     CategoryAnalysis,
		Dependencies: []string{RefinePrompt},
		Optional:     []string{PersistSources, LoadExistingSources},
		Progress:     70,
	},
	PersistInsights: {
		Name:         PersistInsights,
		Category:     CategoryAnalysis,
		Dependencies: []string{Analyze},
	},
	GenerateActions: {
		Name:         GenerateActions,
		Category:     CategoryOutput,
		Dependencies: []string{PersistInsights},
		Progress:     90,
	},
	GenerateLeads: {
		Name:         GenerateLeads,
		Category:     CategoryOutput,
		Dependencies: []string{PersistInsights},
		Progress:     90,
	},
	Finalize: {
		Name:     Finalize,
		Category: CategoryOutput,
		Optional: []string{GenerateActions, CopyCachedRun},
		Progress: 100,
	},
}

// Progress returns the progress recorded when a stage completes.
func Progress(stage string) int {
	return StageRegistry[stage].Progress
}

// DependencyError represents a dependency validation error
type DependencyError struct {
	Stage               string
	MissingDependencies []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("stage %s has missing dependencies: %s", e.Stage, strings.Join(e.MissingDependencies, ", "))
}

// CheckpointReader reads stage checkpoints.
type CheckpointReader interface {
	GetCheckpoint(ctx context.Context, runID uuid.UUID, stage string) (*step.Checkpoint, error)
}

// ValidateDependencies checks that all required dependencies of a stage have
// a checkpoint.
func ValidateDependencies(ctx context.Context, store CheckpointReader, runID uuid.UUID, stage string) error {
	def, ok := StageRegistry[stage]
	if !ok {
		return fmt.Errorf("unknown stage: %s", stage)
	}

	var missing []string
	for _, dep := range def.Dependencies {
		cp, err := store.GetCheckpoint(ctx, runID, dep)
		if err != nil {
			return fmt.Errorf("failed to check dependency %s: %w", dep, err)
		}
		if cp == nil {
			missing = append(missing, dep)
		}
	}

	if len(missing) > 0 {
		return &DependencyError{
			Stage:               stage,
			MissingDependencies: missing,
		}
	}
	return nil
}

// StageStatus is the checkpoint state of one stage of a run.
type StageStatus struct {
	Name      string
	Category  string
	Completed bool
	// Blocked is set for incomplete stages whose dependencies are missing
	Blocked bool
}

// Statuses reports every stage of a run in execution order.
func Statuses(ctx context.Context, store CheckpointReader, runID uuid.UUID) ([]StageStatus, error) {
	out := make([]StageStatus, 0, len(Order))
	for _, name := range Order {
		def := StageRegistry[name]
		cp, err := store.GetCheckpoint(ctx, runID, name)
		if err != nil {
			return nil, fmt.Errorf("failed to check stage %s: %w", name, err)
		}
		status := StageStatus{Name: name, Category: def.Category, Completed: cp != nil}
		if !status.Completed {
			if err := ValidateDependencies(ctx, store, runID, name); err != nil {
				var depErr *DependencyError
				if !errors.As(err, &depErr) {
					return nil, err
				}
				status.Blocked = true
			}
		}
		out = append(out, status)
	}
	return out, nil
}
