package embedder

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIEmbeddingModel = "text-embedding-3-small"

// OpenAIClient implements the Client interface against the OpenAI
// embeddings API, or any compatible endpoint via BaseURL.
type OpenAIClient struct {
	client *openai.Client
	config Config
}

// NewOpenAIClient creates an OpenAI-backed embedder.
func NewOpenAIClient(apiKey string, config Config) *OpenAIClient {
	if config.Model == "" {
		config.Model = defaultOpenAIEmbeddingModel
	}
	if config.Dimensions == 0 {
		config.Dimensions = 1536
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}
}

// Embed generates embeddings for the given texts, batching requests to stay
// under provider limits.
func (o *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += o.config.BatchSize {
		end := min(start+o.config.BatchSize, len(texts))

		resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts[start:end],
			Model: openai.EmbeddingModel(o.config.Model),
		})
		if err != nil {
			return nil, fmt.Errorf("openai embeddings request failed: %w", err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), end-start)
		}
		for _, d := range resp.Data {
			out = append(out, d.Embedding)
		}
	}
	return out, nil
}

// EmbedSingle generates an embedding for a single text.
func (o *OpenAIClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return embedSingle(ctx, o, text)
}

// Dimensions returns the number of dimensions in the embeddings.
func (o *OpenAIClient) Dimensions() int { return o.config.Dimensions }

// Close cleans up any resources.
func (o *OpenAIClient) Close() error { return nil }

var _ Client = (*OpenAIClient)(nil)
