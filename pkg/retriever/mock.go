package retriever

import (
	"context"
	"hash/fnv"
	"sort"

	"github.com/soundprediction/distillery/pkg/types"
	"github.com/soundprediction/distillery/pkg/vector"
)

// Mock is a deterministic retrieval signal for tests. Scores are a pure
// function of (signal name, query, passage ID), so two Mocks with different
// names behave like two independent signals.
type Mock struct {
	name string
	ids  []string
}

// NewMock creates a mock retriever with the given identifier.
func NewMock(name string) *Mock {
	return &Mock{name: name}
}

// Name implements Retriever.
func (m *Mock) Name() string { return m.name }

// Index implements Retriever.
func (m *Mock) Index(ctx context.Context, corpus types.Corpus) error {
	m.ids = make([]string, 0, len(corpus))
	for id := range corpus {
		m.ids = append(m.ids, id)
	}
	sort.Strings(m.ids)
	return nil
}

// Retrieve implements Retriever.
func (m *Mock) Retrieve(ctx context.Context, query string, k int) ([]ScoredPassage, error) {
	scored := make([]vector.ScoredItem[string], len(m.ids))
	for i, id := range m.ids {
		h := fnv.New32a()
		_, _ = h.Write([]byte(m.name + "|" + query + "|" + id))
		scored[i] = vector.ScoredItem[string]{Item: id, Score: float64(h.Sum32())}
	}

	top := vector.TopKByScore(scored, k)
	results := make([]ScoredPassage, len(top))
	for i, item := range top {
		results[i] = ScoredPassage{PassageID: item.Item, Score: item.Score}
	}
	return results, nil
}

var _ Retriever = (*Mock)(nil)
