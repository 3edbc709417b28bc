package embedder_test

import (
	"context"
	"testing"

	"github.com/soundprediction/distillery/pkg/embedder"
	"github.com/soundprediction/distillery/pkg/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClientDeterministic(t *testing.T) {
	ctx := context.Background()
	client := embedder.NewMockClient(16)

	a, err := client.EmbedSingle(ctx, "hello world")
	require.NoError(t, err)
	b, err := client.EmbedSingle(ctx, "hello world")
	require.NoError(t, err)
	assert.Equal(t, a, b, "equal texts must embed identically")

	c, err := client.EmbedSingle(ctx, "something else")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestMockClientBatchMatchesSingle(t *testing.T) {
	ctx := context.Background()
	client := embedder.NewMockClient(8)

	batch, err := client.Embed(ctx, []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, batch, 2)

	one, err := client.EmbedSingle(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, one, batch[0])
}

func TestMockClientUnitVectors(t *testing.T) {
	ctx := context.Background()
	client := embedder.NewMockClient(32)

	v, err := client.EmbedSingle(ctx, "normalize me")
	require.NoError(t, err)
	require.Len(t, v, client.Dimensions())
	assert.InDelta(t, 1.0, vector.Magnitude(v), 1e-5)
}

func TestNewOpenAIClientDefaults(t *testing.T) {
	client := embedder.NewOpenAIClient("test-key", embedder.Config{})
	assert.Greater(t, client.Dimensions(), 0)
}

func TestClientInterfaces(t *testing.T) {
	var _ embedder.Client = (*embedder.OpenAIClient)(nil)
	var _ embedder.Client = (*embedder.MockClient)(nil)
	var _ embedder.Client = (*embedder.EmbedEverythingClient)(nil)
}
