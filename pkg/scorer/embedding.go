package scorer

import (
	"context"
	"fmt"

	"github.com/soundprediction/distillery/pkg/embedder"
	"github.com/soundprediction/distillery/pkg/vector"
)

// EmbeddingClient approximates a cross-encoder with a bi-encoder: the score
// of a pair is the dot product of unit-normalized query and passage
// embeddings. Not a true cross-encoder, but useful when no local
// cross-encoder model is available, and it keeps the pipeline's dot-product
// score scale.
type EmbeddingClient struct {
	embedder embedder.Client
}

// NewEmbeddingClient creates a bi-encoder scorer over an embedding client.
func NewEmbeddingClient(client embedder.Client) *EmbeddingClient {
	return &EmbeddingClient{embedder: client}
}

// Score implements Client.
func (e *EmbeddingClient) Score(ctx context.Context, query, passage string) (float64, error) {
	if e.embedder == nil {
		return 0, fmt.Errorf("embedder client is nil")
	}

	embs, err := e.embedder.Embed(ctx, []string{query, passage})
	if err != nil {
		return 0, fmt.Errorf("failed to embed pair: %w", err)
	}
	if len(embs) != 2 {
		return 0, fmt.Errorf("embedder returned %d vectors for 2 inputs", len(embs))
	}
	return vector.Dot(vector.Normalize(embs[0]), vector.Normalize(embs[1])), nil
}

// ScorePairs implements Client.
func (e *EmbeddingClient) ScorePairs(ctx context.Context, pairs []Pair) ([]float64, error) {
	return scorePairsSequentially(ctx, e, pairs)
}

// Close implements Client.
func (e *EmbeddingClient) Close() error {
	if e.embedder != nil {
		return e.embedder.Close()
	}
	return nil
}

var _ Client = (*EmbeddingClient)(nil)
