package scorer

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig holds circuit-breaker settings for remote scorers.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	ReadyToTripRatio float64
}

// DefaultBreakerConfig returns conservative defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		ReadyToTripRatio: 0.6,
	}
}

// BreakerClient wraps a scorer with circuit-breaking logic. When the remote
// scorer keeps failing, the breaker opens and calls fail fast instead of
// hammering a broken endpoint; the run aborts rather than producing a
// partially labeled artifact.
type BreakerClient struct {
	inner Client
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerClient creates a circuit-breaker wrapper named for logging.
func NewBreakerClient(inner Client, cfg BreakerConfig, name string) *BreakerClient {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= cfg.ReadyToTripRatio
		},
	}

	return &BreakerClient{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker(st),
	}
}

// Score implements Client.
func (b *BreakerClient) Score(ctx context.Context, query, passage string) (float64, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Score(ctx, query, passage)
	})
	if err != nil {
		return 0, err
	}
	return result.(float64), nil
}

// ScorePairs implements Client.
func (b *BreakerClient) ScorePairs(ctx context.Context, pairs []Pair) ([]float64, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.ScorePairs(ctx, pairs)
	})
	if err != nil {
		return nil, err
	}
	return result.([]float64), nil
}

// Close implements Client.
func (b *BreakerClient) Close() error { return b.inner.Close() }

var _ Client = (*BreakerClient)(nil)
