package scorer

import (
	"context"
	"fmt"
	"math"
	"time"
)

// RetryConfig holds configuration for retry behavior.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (default: 3)
	MaxRetries int
	// InitialDelay is the initial delay before the first retry (default: 1 second)
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries (default: 60 seconds)
	MaxDelay time.Duration
	// BackoffMultiplier is the multiplier for exponential backoff (default: 2.0)
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          60 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryClient wraps a scorer and adds retry logic with exponential backoff,
// for remote scorers that fail transiently.
type RetryClient struct {
	inner  Client
	config *RetryConfig
}

// NewRetryClient creates a new retry wrapper.
func NewRetryClient(inner Client, config *RetryConfig) *RetryClient {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 1 * time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 60 * time.Second
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = 2.0
	}

	return &RetryClient{inner: inner, config: config}
}

func (r *RetryClient) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.BackoffMultiplier, float64(attempt-1))
	if delay > float64(r.config.MaxDelay) {
		return r.config.MaxDelay
	}
	return time.Duration(delay)
}

func (r *RetryClient) do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.calculateDelay(attempt)):
			case <-ctx.Done():
				return fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			}
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", r.config.MaxRetries+1, lastErr)
}

// Score implements Client.
func (r *RetryClient) Score(ctx context.Context, query, passage string) (float64, error) {
	var score float64
	err := r.do(ctx, func() error {
		var err error
		score, err = r.inner.Score(ctx, query, passage)
		return err
	})
	return score, err
}

// ScorePairs implements Client.
func (r *RetryClient) ScorePairs(ctx context.Context, pairs []Pair) ([]float64, error) {
	var scores []float64
	err := r.do(ctx, func() error {
		var err error
		scores, err = r.inner.ScorePairs(ctx, pairs)
		return err
	})
	return scores, err
}

// Close implements Client.
func (r *RetryClient) Close() error { return r.inner.Close() }

var _ Client = (*RetryClient)(nil)
