package retriever

import (
	"context"
	"fmt"
	"sort"

	"github.com/soundprediction/distillery/pkg/embedder"
	"github.com/soundprediction/distillery/pkg/types"
	"github.com/soundprediction/distillery/pkg/vector"
)

// Dense is a bi-encoder retrieval signal: the corpus is embedded once,
// queries are embedded at retrieval time, and passages are ranked by dot
// product of unit-normalized vectors.
type Dense struct {
	name     string
	embedder embedder.Client

	ids  []string
	embs [][]float32
}

// embeddingBatchSize bounds how many passages are sent to the embedder per
// call during indexing.
const embeddingBatchSize = 128

// NewDense creates a dense retriever with the given signal name.
func NewDense(name string, client embedder.Client) *Dense {
	return &Dense{name: name, embedder: client}
}

// Name implements Retriever.
func (d *Dense) Name() string { return d.name }

// Index embeds the whole corpus. Passages are embedded in sorted ID order so
// the index, and therefore tie-breaking, is deterministic.
func (d *Dense) Index(ctx context.Context, corpus types.Corpus) error {
	if len(corpus) == 0 {
		return fmt.Errorf("%s: empty corpus", d.name)
	}

	d.ids = make([]string, 0, len(corpus))
	for id := range corpus {
		d.ids = append(d.ids, id)
	}
	sort.Strings(d.ids)

	d.embs = make([][]float32, 0, len(d.ids))
	for start := 0; start < len(d.ids); start += embeddingBatchSize {
		end := min(start+embeddingBatchSize, len(d.ids))

		texts := make([]string, 0, end-start)
		for _, id := range d.ids[start:end] {
			texts = append(texts, corpus[id].Body())
		}

		batch, err := d.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("%s: failed to embed corpus batch at %d: %w", d.name, start, err)
		}
		if len(batch) != end-start {
			return fmt.Errorf("%s: embedder returned %d vectors for %d passages", d.name, len(batch), end-start)
		}
		for _, emb := range batch {
			d.embs = append(d.embs, vector.Normalize(emb))
		}
	}
	return nil
}

// Retrieve embeds the query and returns the top-k passages by dot product.
func (d *Dense) Retrieve(ctx context.Context, query string, k int) ([]ScoredPassage, error) {
	if len(d.embs) == 0 {
		return nil, fmt.Errorf("%s: not indexed", d.name)
	}

	qEmb, err := d.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to embed query: %w", d.name, err)
	}
	qEmb = vector.Normalize(qEmb)

	scored := make([]vector.ScoredItem[string], len(d.ids))
	for i, id := range d.ids {
		scored[i] = vector.ScoredItem[string]{Item: id, Score: vector.Dot(qEmb, d.embs[i])}
	}

	top := vector.TopKByScore(scored, k)
	results := make([]ScoredPassage, len(top))
	for i, item := range top {
		results[i] = ScoredPassage{PassageID: item.Item, Score: item.Score}
	}
	return results, nil
}

var _ Retriever = (*Dense)(nil)
