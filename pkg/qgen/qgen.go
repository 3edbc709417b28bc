// Package qgen generates synthetic queries for corpus passages.
//
// The Generator interface is the narrow capability the pipeline consumes: a
// black box mapping a passage to candidate queries. Implementations wrap a
// local go-rust-bert seq2seq model, an OpenAI-compatible chat endpoint, and
// a deterministic mock. Runner drives generation over a whole corpus and
// persists the query and qrels artifacts.
package qgen

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/soundprediction/distillery/pkg/artifact"
	"github.com/soundprediction/distillery/pkg/beir"
	"github.com/soundprediction/distillery/pkg/types"
)

// Generator maps a passage to candidate queries.
type Generator interface {
	// Generate returns up to n queries for the passage.
	Generate(ctx context.Context, passage string, n int) ([]string, error)

	// Close cleans up any resources.
	Close() error
}

// Runner generates queries for every corpus passage and persists the
// {prefix}-queries.jsonl and {prefix}-qrels/train.tsv artifacts.
type Runner struct {
	generator Generator
	store     *artifact.Store
	prefix    string
	perDoc    int
	logger    *slog.Logger
}

// NewRunner creates a generation runner. perDoc is the queries-per-passage
// fan-out.
func NewRunner(generator Generator, store *artifact.Store, prefix string, perDoc int, logger *slog.Logger) *Runner {
	if perDoc <= 0 {
		perDoc = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		generator: generator,
		store:     store,
		prefix:    prefix,
		perDoc:    perDoc,
		logger:    logger,
	}
}

// Run generates queries for the corpus and writes both artifacts. Passages
// are visited in sorted ID order and query IDs are assigned sequentially, so
// the artifacts are reproducible for a deterministic generator. A generation
// failure aborts the stage; nothing is persisted.
func (r *Runner) Run(ctx context.Context, corpus types.Corpus) (types.QuerySet, beir.Qrels, error) {
	ids := make([]string, 0, len(corpus))
	for id := range corpus {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	queries := make(types.QuerySet)
	qrels := make(beir.Qrels)
	seq := 0

	for _, did := range ids {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		generated, err := r.generator.Generate(ctx, corpus[did].Body(), r.perDoc)
		if err != nil {
			return nil, nil, fmt.Errorf("query generation failed for passage %s: %w", did, err)
		}

		for _, text := range generated {
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			seq++
			qid := fmt.Sprintf("genQ%d", seq)
			queries[qid] = types.Query{ID: qid, Text: text, SourceID: did}
			qrels[qid] = map[string]int{did: 1}
		}
	}

	if len(queries) == 0 {
		return nil, nil, fmt.Errorf("query generator produced no queries for %d passages", len(corpus))
	}

	queryData, err := beir.MarshalQueries(queries)
	if err != nil {
		return nil, nil, err
	}
	if err := r.store.WriteAtomic(artifact.QueriesFile(r.prefix), queryData); err != nil {
		return nil, nil, err
	}
	if err := r.store.WriteAtomic(artifact.QrelsFile(r.prefix), beir.MarshalQrels(qrels)); err != nil {
		return nil, nil, err
	}

	r.logger.Info("generated queries",
		"passages", len(corpus),
		"queries", len(queries),
		"per_passage", r.perDoc)
	return queries, qrels, nil
}

// MockGenerator is a deterministic generator for tests: it emits numbered
// questions derived from the passage's leading words.
type MockGenerator struct{}

// NewMockGenerator returns a mock generator.
func NewMockGenerator() *MockGenerator { return &MockGenerator{} }

// Generate implements Generator.
func (m *MockGenerator) Generate(ctx context.Context, passage string, n int) ([]string, error) {
	words := strings.Fields(passage)
	if len(words) > 4 {
		words = words[:4]
	}
	stem := strings.Join(words, " ")

	queries := make([]string, n)
	for i := range queries {
		queries[i] = fmt.Sprintf("what about %s (%d)", stem, i+1)
	}
	return queries, nil
}

// Close implements Generator.
func (m *MockGenerator) Close() error { return nil }

var _ Generator = (*MockGenerator)(nil)
