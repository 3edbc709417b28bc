package scorer

import (
	"context"
	"fmt"

	"github.com/soundprediction/go-embedeverything/pkg/embedder"
)

// EmbedEverythingClient scores pairs with a local go-embedeverything
// cross-encoder model.
type EmbedEverythingClient struct {
	reranker *embedder.Reranker
	config   Config
}

// NewEmbedEverythingClient loads the named local cross-encoder.
func NewEmbedEverythingClient(config Config) (*EmbedEverythingClient, error) {
	if config.Model == "" {
		config.Model = "cross-encoder/ms-marco-MiniLM-L-6-v2"
	}
	reranker, err := embedder.NewReranker(config.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to create reranker: %w", err)
	}

	return &EmbedEverythingClient{
		reranker: reranker,
		config:   config,
	}, nil
}

// Score implements Client.
func (e *EmbedEverythingClient) Score(ctx context.Context, query, passage string) (float64, error) {
	// go-embedeverything does not support context yet
	results, err := e.reranker.Rerank(query, []string{passage})
	if err != nil {
		return 0, fmt.Errorf("failed to score pair: %w", err)
	}
	if len(results) != 1 {
		return 0, fmt.Errorf("reranker returned %d results for one passage", len(results))
	}
	return float64(results[0].Score), nil
}

// ScorePairs implements Client. Pairs sharing a query are scored in one
// reranker call.
func (e *EmbedEverythingClient) ScorePairs(ctx context.Context, pairs []Pair) ([]float64, error) {
	scores := make([]float64, len(pairs))

	// Group consecutive pairs with the same query; the labeler emits them
	// that way, so this usually collapses into few calls.
	for start := 0; start < len(pairs); {
		end := start + 1
		for end < len(pairs) && pairs[end].Query == pairs[start].Query {
			end++
		}

		passages := make([]string, 0, end-start)
		for _, p := range pairs[start:end] {
			passages = append(passages, p.Passage)
		}

		results, err := e.reranker.Rerank(pairs[start].Query, passages)
		if err != nil {
			return nil, fmt.Errorf("failed to score batch: %w", err)
		}
		if len(results) != len(passages) {
			return nil, fmt.Errorf("reranker returned %d results for %d passages", len(results), len(passages))
		}

		// Rerank sorts by score; map scores back to input order by text.
		byText := make(map[string]float64, len(results))
		for _, r := range results {
			byText[r.Text] = float64(r.Score)
		}
		for i := start; i < end; i++ {
			scores[i] = byText[pairs[i].Passage]
		}
		start = end
	}
	return scores, nil
}

// Close implements Client.
func (e *EmbedEverythingClient) Close() error {
	e.reranker.Close()
	return nil
}

var _ Client = (*EmbedEverythingClient)(nil)
