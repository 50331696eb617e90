package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ClientSpec names a backend and the credentials to reach it
type ClientSpec struct {
	Provider Provider
	APIKey   string
	// Model overrides every tier when set
	Model string
}

// Factory builds a client for a spec.
type Factory func(ctx context.Context, spec ClientSpec) (Client, error)

// NewFactory returns the production factory: default models per provider,
// optional model override, rate-limit retry.
func NewFactory(retry RetryConfig, logger *zap.Logger) Factory {
	return func(ctx context.Context, spec ClientSpec) (Client, error) {
		cfg := DefaultConfigFor(spec.Provider)
		if spec.Model != "" {
			cfg = cfg.WithAllModels(spec.Model)
		}
		c, err := NewClient(ctx, cfg, spec.APIKey)
		if err != nil {
			return nil, err
		}
		return WithRetry(c, retry, logger), nil
	}
}

// GetClientWithFallback commits to one backend for a whole unit of work.
// A canary RefinePrompt("test") is issued against the primary; when it fails
// with a quota, rate-limit or not-found error and a secondary key is
// configured, the secondary is returned instead. Any other failure is returned.
func GetClientWithFallback(ctx context.Context, primary ClientSpec, secondary *ClientSpec, factory Factory, logger *zap.Logger) (Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := factory(ctx, primary)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", primary.Provider, err)
	}

	_, canaryErr := NewAssistant(client).RefinePrompt(ctx, "test")
	if canaryErr == nil {
		return client, nil
	}
	_ = client.Close()

	if !IsFallbackEligible(canaryErr) || secondary == nil || secondary.APIKey == "" {
		return nil, canaryErr
	}

	logger.Warn("primary LLM provider unavailable, switching to fallback",
		zap.String("provider", string(primary.Provider)),
		zap.String("fallback", string(secondary.Provider)),
		zap.Error(canaryErr))

	fallback, err := factory(ctx, *secondary)
	if err != nil {
		return nil, fmt.Errorf("failed to create fallback %s client: %w", secondary.Provider, err)
	}
	return fallback, nil
}
