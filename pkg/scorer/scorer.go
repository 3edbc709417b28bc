// Package scorer provides the teacher-scorer capability for pseudo labeling:
// a black-box function mapping a (query, passage) pair to a real-valued
// relevance score.
//
// The real implementation is a cross-encoder; this package provides a local
// cross-encoder via go-embedeverything, a bi-encoder approximation over any
// embedder.Client, and a deterministic mock for tests. Wrappers add a
// persistent score cache (badger), retries with exponential backoff, and a
// circuit breaker for remote scorers.
package scorer

import (
	"context"
	"fmt"
	"hash/fnv"
)

// Pair is one (query, passage) scoring request.
type Pair struct {
	Query   string
	Passage string
}

// Client scores query/passage pairs. Implementations are assumed stateless
// and deterministic: scoring the same pair twice returns the same value.
type Client interface {
	// Score returns the relevance score for a single pair.
	Score(ctx context.Context, query, passage string) (float64, error)

	// ScorePairs scores a batch of pairs, returning one score per pair in
	// input order. Batching affects throughput only, never the scores.
	ScorePairs(ctx context.Context, pairs []Pair) ([]float64, error)

	// Close cleans up any resources.
	Close() error
}

// Config holds common scorer configuration.
type Config struct {
	Model     string
	BaseURL   string
	BatchSize int
}

// scorePairsSequentially implements ScorePairs in terms of Score for
// backends without a native batch call.
func scorePairsSequentially(ctx context.Context, c Client, pairs []Pair) ([]float64, error) {
	scores := make([]float64, len(pairs))
	for i, p := range pairs {
		s, err := c.Score(ctx, p.Query, p.Passage)
		if err != nil {
			return nil, fmt.Errorf("failed to score pair %d: %w", i, err)
		}
		scores[i] = s
	}
	return scores, nil
}

// MockClient is a deterministic scorer for tests. Fixed scores can be
// registered per pair; unregistered pairs get a stable hash-derived score in
// [0, 1).
type MockClient struct {
	fixed map[string]float64
	calls int
}

// NewMockClient returns an empty mock scorer.
func NewMockClient() *MockClient {
	return &MockClient{fixed: make(map[string]float64)}
}

// Set registers a fixed score for a pair.
func (m *MockClient) Set(query, passage string, score float64) {
	m.fixed[query+"\x00"+passage] = score
}

// Calls reports how many individual pair scores have been computed.
func (m *MockClient) Calls() int { return m.calls }

// Score implements Client.
func (m *MockClient) Score(ctx context.Context, query, passage string) (float64, error) {
	m.calls++
	if s, ok := m.fixed[query+"\x00"+passage]; ok {
		return s, nil
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(query + "\x00" + passage))
	return float64(h.Sum32()%1000) / 1000, nil
}

// ScorePairs implements Client.
func (m *MockClient) ScorePairs(ctx context.Context, pairs []Pair) ([]float64, error) {
	return scorePairsSequentially(ctx, m, pairs)
}

// Close implements Client.
func (m *MockClient) Close() error { return nil }

var _ Client = (*MockClient)(nil)
