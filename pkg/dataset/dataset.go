// Package dataset assembles training examples from persisted margin labels.
//
// Assembly is a lazy, single-pass resolution step: each label row is joined
// against the query set and corpus to produce a TrainingExample with resolved
// texts and the derived teacher margin. Row order is preserved exactly as
// persisted; the iterator replays the full row sequence once per epoch.
package dataset

import (
	"fmt"

	"github.com/soundprediction/distillery/pkg/types"
)

// Iterator walks label rows in persisted order, epochs times. It follows the
// bufio.Scanner protocol: Next advances, Example returns the current value,
// Err reports the first resolution failure.
type Iterator struct {
	labels  []types.MarginLabel
	queries types.QuerySet
	corpus  types.Corpus
	epochs  int

	epoch int
	pos   int
	cur   types.TrainingExample
	err   error
}

// Assemble returns an iterator over len(labels)*epochs training examples.
// epochs below 1 is treated as 1. Texts are resolved lazily, so a label row
// referencing an unknown ID only fails when iteration reaches it.
func Assemble(labels []types.MarginLabel, queries types.QuerySet, corpus types.Corpus, epochs int) *Iterator {
	if epochs < 1 {
		epochs = 1
	}
	return &Iterator{
		labels:  labels,
		queries: queries,
		corpus:  corpus,
		epochs:  epochs,
	}
}

// Len returns the total number of examples the iterator yields.
func (it *Iterator) Len() int { return len(it.labels) * it.epochs }

// Next advances to the next example. It returns false at the end of the
// final epoch or on the first resolution error.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.pos >= len(it.labels) {
		it.epoch++
		it.pos = 0
	}
	if it.epoch >= it.epochs || len(it.labels) == 0 {
		return false
	}

	row := it.labels[it.pos]
	it.pos++

	query, err := it.queries.Get(row.QueryID)
	if err != nil {
		it.err = fmt.Errorf("label row %d: %w", it.pos-1, err)
		return false
	}
	pos, err := it.corpus.Get(row.PositiveID)
	if err != nil {
		it.err = fmt.Errorf("label row %d: %w", it.pos-1, err)
		return false
	}
	neg, err := it.corpus.Get(row.NegativeID)
	if err != nil {
		it.err = fmt.Errorf("label row %d: %w", it.pos-1, err)
		return false
	}

	it.cur = types.TrainingExample{
		Query:    query.Text,
		Positive: pos.Body(),
		Negative: neg.Body(),
		Margin:   row.Margin(),
	}
	return true
}

// Example returns the example produced by the last successful Next.
func (it *Iterator) Example() types.TrainingExample { return it.cur }

// Err returns the first resolution error encountered, if any.
func (it *Iterator) Err() error { return it.err }

// Materialize drains an iterator into a slice. Intended for small datasets
// and tests; training consumes the iterator directly.
func Materialize(it *Iterator) ([]types.TrainingExample, error) {
	out := make([]types.TrainingExample, 0, it.Len())
	for it.Next() {
		out = append(out, it.Example())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
