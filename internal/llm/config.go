// Package llm provides the language-model abstraction used by the research pipeline:
// backends, JSON extraction, rate-limit retry and provider fallback.
package llm

import "fmt"

// ModelTier represents the complexity/capability level of a model
type ModelTier string

const (
	// TierLite is for cheap calls: canary checks, gap analysis, scoring
	TierLite ModelTier = "lite"
	// TierStandard is for structured extraction passes
	TierStandard ModelTier = "standard"
	// TierAdvanced is for long-context synthesis
	TierAdvanced ModelTier = "advanced"
)

// Provider represents an LLM provider
type Provider string

// Provider constants define supported LLM providers
const (
	// ProviderGemini is the Google Gemini provider
	ProviderGemini Provider = "gemini"
	// ProviderOpenAI is the OpenAI provider
	ProviderOpenAI Provider = "openai"
	// ProviderAnthropic is the Anthropic/Claude provider
	ProviderAnthropic Provider = "anthropic"
)

// ParseProvider converts a string to a Provider.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic:
		return Provider(s), nil
	}
	return "", fmt.Errorf("unknown LLM provider %q", s)
}

// Config holds the model configuration for one backend
type Config struct {
	Provider Provider
	Models   map[ModelTier]string
	// BaseURL overrides the API endpoint for HTTP backends
	BaseURL string
}

// DefaultConfig returns the default configuration (Gemini)
func DefaultConfig() *Config {
	return DefaultConfigFor(ProviderGemini)
}

// DefaultConfigFor returns the default model set for a provider.
func DefaultConfigFor(p Provider) *Config {
	switch p {
	case ProviderOpenAI:
		return &Config{
			Provider: ProviderOpenAI,
			BaseURL:  "https://api.openai.com/v1",
			Models: map[ModelTier]string{
				TierLite:     "gpt-4o-mini",
				TierStandard: "gpt-4o",
				TierAdvanced: "gpt-4.1",
			},
		}
	case ProviderAnthropic:
		return &Config{
			Provider: ProviderAnthropic,
			BaseURL:  "https://api.anthropic.com/v1",
			Models: map[ModelTier]string{
				TierLite:     "claude-3-5-haiku-latest",
				TierStandard: "claude-sonnet-4-5",
				TierAdvanced: "claude-sonnet-4-5",
			},
		}
	default:
		return &Config{
			Provider: ProviderGemini,
			Models: map[ModelTier]string{
				TierLite:     "gemini-2.5-flash-lite",
				TierStandard: "gemini-2.5-flash",
				TierAdvanced: "gemini-2.5-pro",
			},
		}
	}
}

// GetModel returns the model name for a given tier
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	// Fallback chain: try standard, then lite
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return ""
}

// WithModel returns a new Config with a specific model for a tier
func (c *Config) WithModel(tier ModelTier, model string) *Config {
	newConfig := &Config{
		Provider: c.Provider,
		BaseURL:  c.BaseURL,
		Models:   make(map[ModelTier]string),
	}
	for k, v := range c.Models {
		newConfig.Models[k] = v
	}
	newConfig.Models[tier] = model
	return newConfig
}

// WithAllModels pins every tier to one model. Used for user overrides.
func (c *Config) WithAllModels(model string) *Config {
	out := c.WithModel(TierStandard, model)
	out.Models[TierLite] = model
	out.Models[TierAdvanced] = model
	return out
}
