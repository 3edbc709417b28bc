// Package embedder provides text embedding clients for vector
// representations.
//
// The Client interface is the capability the dense retrieval signals and the
// evaluator depend on. Implementations exist for local embedding via
// go-embedeverything, for the OpenAI embeddings API, and as a deterministic
// mock for tests.
package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
)

// Client generates embeddings for text.
type Client interface {
	// Embed generates embeddings for the given texts, one vector per text,
	// in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle generates an embedding for a single text.
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the dimensionality of the produced vectors.
	Dimensions() int

	// Close cleans up any resources.
	Close() error
}

// Config holds common embedder configuration.
type Config struct {
	Model      string
	BaseURL    string
	Dimensions int
	BatchSize  int
}

// MockClient is a deterministic embedder for tests. Vectors depend only on
// the input text, so equal texts always embed identically.
type MockClient struct {
	dims int
}

// NewMockClient returns a mock embedder producing unit vectors of the given
// dimensionality.
func NewMockClient(dims int) *MockClient {
	if dims <= 0 {
		dims = 8
	}
	return &MockClient{dims: dims}
}

// Embed implements Client.
func (m *MockClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = m.vector(text)
	}
	return out, nil
}

// EmbedSingle implements Client.
func (m *MockClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return m.vector(text), nil
}

// Dimensions implements Client.
func (m *MockClient) Dimensions() int { return m.dims }

// Close implements Client.
func (m *MockClient) Close() error { return nil }

func (m *MockClient) vector(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	v := make([]float32, m.dims)
	var norm float64
	for i := range v {
		// xorshift keeps the vector fully determined by the text.
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		v[i] = float32(int64(seed%2000)-1000) / 1000
		norm += float64(v[i]) * float64(v[i])
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	mag := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= mag
	}
	return v
}

var _ Client = (*MockClient)(nil)

// embedSingle is shared by implementations whose native API is batched.
func embedSingle(ctx context.Context, c Client, text string) ([]float32, error) {
	embeddings, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return embeddings[0], nil
}
