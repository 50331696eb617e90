package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// RetryConfig bounds rate-limit retries
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	// MinDelay is enforced even when the server asks for 0s
	MinDelay time.Duration
	MaxDelay time.Duration
}

// DefaultRetryConfig returns the production retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MinDelay:   time.Second,
		MaxDelay:   60 * time.Second,
	}
}

// calculateBackoff computes base * 2^attempt, preferring a server hint, clamped to [MinDelay, MaxDelay].
func calculateBackoff(config RetryConfig, attempt int, serverDelay time.Duration) time.Duration {
	backoff := time.Duration(float64(config.BaseDelay) * math.Pow(2, float64(attempt)))
	if serverDelay > 0 {
		backoff = serverDelay
	}
	if backoff < config.MinDelay {
		backoff = config.MinDelay
	}
	if config.MaxDelay > 0 && backoff > config.MaxDelay {
		backoff = config.MaxDelay
	}
	return backoff
}

type retryingClient struct {
	Client
	config RetryConfig
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps a client so rate-limit errors are retried with exponential backoff.
// Every other error is returned immediately.
func WithRetry(c Client, config RetryConfig, logger *zap.Logger) Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retryingClient{Client: c, config: config, logger: logger, sleep: sleepCtx}
}

func (r *retryingClient) GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		text, err := r.Client.GenerateText(ctx, prompt, opts)
		if err == nil {
			return text, nil
		}
		if !IsRateLimited(err) {
			return "", err
		}
		lastErr = err
		if attempt == r.config.MaxRetries {
			break
		}

		var serverDelay time.Duration
		var pe *ProviderError
		if errors.As(err, &pe) {
			serverDelay = pe.RetryAfter
		}
		backoff := calculateBackoff(r.config, attempt, serverDelay)
		r.logger.Warn("rate limited, backing off",
			zap.String("provider", string(r.Provider())),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff))

		if err := r.sleep(ctx, backoff); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w after %d retries: %w", ErrRateLimited, r.config.MaxRetries, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
