package qgen

import (
	"context"
	"encoding/json"
	"fmt"

	jsonrepair "github.com/kaptinlin/jsonrepair"
	openai "github.com/sashabaranov/go-openai"
)

const queryGenPrompt = `You write search queries for a retrieval dataset.
Given the passage below, write %d distinct natural search queries that this passage answers.
Respond with a JSON array of strings and nothing else.

Passage:
%s`

// OpenAIGenerator generates queries with a chat model through the OpenAI
// API or any compatible endpoint.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator creates a chat-based query generator. baseURL may be
// empty for the default OpenAI endpoint.
func NewOpenAIGenerator(apiKey, baseURL, model string) *OpenAIGenerator {
	if model == "" {
		model = openai.GPT4oMini
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, passage string, n int) ([]string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(queryGenPrompt, n, passage)},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	return parseQueryArray(resp.Choices[0].Message.Content, n)
}

// parseQueryArray extracts a string array from model output, repairing the
// JSON first since models frequently emit trailing prose or fences.
func parseQueryArray(content string, n int) ([]string, error) {
	repaired, err := jsonrepair.JSONRepair(content)
	if err != nil {
		repaired = content
	}

	var queries []string
	if err := json.Unmarshal([]byte(repaired), &queries); err != nil {
		return nil, fmt.Errorf("failed to parse generated queries: %w", err)
	}
	if len(queries) > n {
		queries = queries[:n]
	}
	return queries, nil
}

// Close implements Generator.
func (g *OpenAIGenerator) Close() error { return nil }

var _ Generator = (*OpenAIGenerator)(nil)
