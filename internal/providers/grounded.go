package providers

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/jonathan/research-agent/internal/logging"
	"github.com/jonathan/research-agent/internal/types"
)

// DefaultGroundingModel supports the Google Search tool.
const DefaultGroundingModel = "gemini-2.5-flash"

// GroundedSearch asks Gemini to answer with Google Search grounding and
// turns the grounding chunks into candidates.
type GroundedSearch struct {
	client *genai.Client
	Model  string
	Logger *zap.Logger
}

// NewGroundedSearch creates a GroundedSearch adapter.
func NewGroundedSearch(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GroundedSearch, error) {
	return newGroundedSearch(ctx, apiKey, model, "", logger)
}

func newGroundedSearch(ctx context.Context, apiKey, model, baseURL string, logger *zap.Logger) (*GroundedSearch, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("grounded search requires a Gemini API key")
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if model == "" {
		model = DefaultGroundingModel
	}
	return &GroundedSearch{client: client, Model: model, Logger: logging.OrNop(logger)}, nil
}

// Name implements Provider.
func (g *GroundedSearch) Name() string { return "grounded" }

// Search implements Provider.
func (g *GroundedSearch) Search(ctx context.Context, query string, opts SearchOptions) []types.SourceCandidate {
	opts = opts.withDefaults()
	logger := logging.OrNop(g.Logger)

	prompt := fmt.Sprintf("Find recent discussions, reviews and articles about: %s\n"+
		"Summarize what people say, citing the pages you used.", query)
	resp, err := g.client.Models.GenerateContent(ctx, g.Model, genai.Text(prompt), &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	})
	if err != nil {
		logger.Warn("grounded search failed", zap.String("provider", g.Name()), zap.Error(err))
		return nil
	}
	return groundingCandidates(resp, opts.Limit)
}

// groundingCandidates maps web grounding chunks to candidates. The model's
// answer is attached to each as raw content context.
func groundingCandidates(resp *genai.GenerateContentResponse, limit int) []types.SourceCandidate {
	if resp == nil {
		return nil
	}
	summary := strings.TrimSpace(resp.Text())

	var out []types.SourceCandidate
	seen := make(map[string]bool)
	for _, cand := range resp.Candidates {
		if cand == nil || cand.GroundingMetadata == nil {
			continue
		}
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" || seen[chunk.Web.URI] {
				continue
			}
			seen[chunk.Web.URI] = true
			title := chunk.Web.Title
			if title == "" {
				title = chunk.Web.Domain
			}
			out = append(out, types.SourceCandidate{
				URL:        chunk.Web.URI,
				Title:      title,
				RawContent: summary,
				SourceType: types.SourceTypeGenericWeb,
				Provider:   "grounded",
				Metadata: types.SourceMetadata{
					ProviderSpecific: map[string]string{"grounded": "true"},
				},
			})
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}
