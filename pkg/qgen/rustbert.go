package qgen

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/soundprediction/go-rust-bert/pkg/rustbert"
)

// RustBertGenerator generates queries with a local go-rust-bert text
// generation model, one generation call per query.
type RustBertGenerator struct {
	model *rustbert.TextGenerationModel
	mu    sync.Mutex
}

// NewRustBertGenerator loads the default local text generation model.
func NewRustBertGenerator() (*RustBertGenerator, error) {
	model, err := rustbert.NewTextGenerationModel()
	if err != nil {
		return nil, fmt.Errorf("failed to load text generation model: %w", err)
	}
	return &RustBertGenerator{model: model}, nil
}

// Generate implements Generator. The underlying model is not safe for
// concurrent use, so calls are serialized.
func (g *RustBertGenerator) Generate(ctx context.Context, passage string, n int) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	queries := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		prompt := fmt.Sprintf("Generate a search query for the following passage.\nPassage: %s\nQuery:", passage)
		output, err := g.model.Generate(prompt, "")
		if err != nil {
			return nil, fmt.Errorf("text generation failed: %w", err)
		}

		// Keep only the first generated line past the prompt.
		query := strings.TrimSpace(strings.TrimPrefix(output, prompt))
		if idx := strings.IndexByte(query, '\n'); idx >= 0 {
			query = query[:idx]
		}
		if query != "" {
			queries = append(queries, query)
		}
	}

	if len(queries) == 0 {
		return nil, fmt.Errorf("model generated no usable queries")
	}
	return queries, nil
}

// Close implements Generator.
func (g *RustBertGenerator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.model = nil
	return nil
}

var _ Generator = (*RustBertGenerator)(nil)
