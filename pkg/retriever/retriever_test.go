package retriever_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/soundprediction/distillery/pkg/embedder"
	"github.com/soundprediction/distillery/pkg/retriever"
	"github.com/soundprediction/distillery/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCorpus() types.Corpus {
	return types.Corpus{
		"d1": {ID: "d1", Text: "go is a compiled programming language designed at google"},
		"d2": {ID: "d2", Text: "python is an interpreted programming language"},
		"d3": {ID: "d3", Text: "the quick brown fox jumps over the lazy dog"},
		"d4": {ID: "d4", Text: "compiled languages like go produce native binaries"},
	}
}

func TestResolverResolve(t *testing.T) {
	factory := func(model string) (embedder.Client, error) {
		if model == "broken" {
			return nil, fmt.Errorf("model not found")
		}
		return embedder.NewMockClient(8), nil
	}

	tests := []struct {
		name    string
		ids     []string
		wantErr bool
	}{
		{name: "bm25", ids: []string{"bm25"}},
		{name: "dense", ids: []string{"dense:all-MiniLM-L6-v2"}},
		{name: "mixed", ids: []string{"bm25", "dense:all-MiniLM-L6-v2", "mock:a"}},
		{name: "unknown scheme", ids: []string{"sparta"}, wantErr: true},
		{name: "unloadable model", ids: []string{"dense:broken"}, wantErr: true},
		{name: "dense without model", ids: []string{"dense:"}, wantErr: true},
		{name: "empty list", ids: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := retriever.NewResolver(factory).Resolve(tt.ids)
			if tt.wantErr {
				assert.ErrorIs(t, err, retriever.ErrUnknownRetriever)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, len(tt.ids))
			for i, r := range got {
				assert.Equal(t, tt.ids[i], r.Name())
			}
		})
	}
}

func TestResolverDenseRequiresFactory(t *testing.T) {
	_, err := retriever.NewResolver(nil).Resolve([]string{"dense:some-model"})
	assert.ErrorIs(t, err, retriever.ErrUnknownRetriever)
}

func TestBM25RanksLexicalOverlap(t *testing.T) {
	ctx := context.Background()
	bm := retriever.NewBM25()
	require.NoError(t, bm.Index(ctx, testCorpus()))

	results, err := bm.Retrieve(ctx, "compiled go language", 4)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// d1 and d4 share the most query terms and must outrank d3.
	top2 := []string{results[0].PassageID, results[1].PassageID}
	assert.ElementsMatch(t, []string{"d1", "d4"}, top2)
	for _, r := range results {
		assert.NotEqual(t, "d3", r.PassageID, "no query term occurs in d3")
	}
}

func TestBM25Deterministic(t *testing.T) {
	ctx := context.Background()
	corpus := testCorpus()

	run := func() []retriever.ScoredPassage {
		bm := retriever.NewBM25()
		require.NoError(t, bm.Index(ctx, corpus))
		results, err := bm.Retrieve(ctx, "programming language", 4)
		require.NoError(t, err)
		return results
	}

	assert.Equal(t, run(), run())
}

func TestBM25NotIndexed(t *testing.T) {
	_, err := retriever.NewBM25().Retrieve(context.Background(), "q", 3)
	assert.ErrorContains(t, err, "not indexed")
}

func TestDenseRetrieve(t *testing.T) {
	ctx := context.Background()
	corpus := testCorpus()

	d := retriever.NewDense("dense:mock", embedder.NewMockClient(16))
	require.NoError(t, d.Index(ctx, corpus))

	// The mock embedder maps equal texts to equal vectors, so a query that
	// is exactly a passage body must rank that passage first.
	results, err := d.Retrieve(ctx, corpus["d3"].Body(), 4)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, "d3", results[0].PassageID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
}

func TestDenseDeterministic(t *testing.T) {
	ctx := context.Background()
	corpus := testCorpus()

	run := func() []retriever.ScoredPassage {
		d := retriever.NewDense("dense:mock", embedder.NewMockClient(16))
		require.NoError(t, d.Index(ctx, corpus))
		results, err := d.Retrieve(ctx, "native binaries", 3)
		require.NoError(t, err)
		return results
	}

	assert.Equal(t, run(), run())
}

func TestMockRetrieverIndependentSignals(t *testing.T) {
	ctx := context.Background()
	corpus := testCorpus()

	a := retriever.NewMock("mock:a")
	b := retriever.NewMock("mock:b")
	require.NoError(t, a.Index(ctx, corpus))
	require.NoError(t, b.Index(ctx, corpus))

	ra, err := a.Retrieve(ctx, "query", 4)
	require.NoError(t, err)
	rb, err := b.Retrieve(ctx, "query", 4)
	require.NoError(t, err)

	require.Len(t, ra, 4)
	require.Len(t, rb, 4)
	assert.NotEqual(t, ra, rb, "different signal names rank differently")
}
