// Package retriever defines the retrieval-signal capability used by hard
// negative mining: a named ranker that, once indexed over the corpus,
// returns the top-K passages for a query.
//
// Two real signals are provided: an in-process BM25 lexical ranker
// (identifier "bm25") and a dense bi-encoder ranker backed by an
// embedder.Client (identifier "dense:<model>"). Mining quality depends on
// signal diversity, so an identifier that cannot be resolved fails the whole
// run instead of silently degrading to fewer signals.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/soundprediction/distillery/pkg/embedder"
	"github.com/soundprediction/distillery/pkg/types"
)

// ErrUnknownRetriever is returned when a retrieval-signal identifier cannot
// be resolved to an implementation.
var ErrUnknownRetriever = errors.New("unknown retriever identifier")

// ScoredPassage is one ranked retrieval result.
type ScoredPassage struct {
	PassageID string
	Score     float64
}

// Retriever is a single named retrieval signal.
type Retriever interface {
	// Name returns the signal identifier used in artifacts.
	Name() string

	// Index prepares the retriever over the corpus. It must be called once
	// before Retrieve.
	Index(ctx context.Context, corpus types.Corpus) error

	// Retrieve returns the top-k passages for the query, best first.
	Retrieve(ctx context.Context, query string, k int) ([]ScoredPassage, error)
}

// EmbedderFactory loads an embedding client for a dense retriever model
// identifier.
type EmbedderFactory func(model string) (embedder.Client, error)

// Resolver maps signal identifiers to retrievers.
type Resolver struct {
	embedders EmbedderFactory
}

// NewResolver creates a resolver. The factory is used for "dense:<model>"
// identifiers and may be nil when only lexical signals are configured.
func NewResolver(embedders EmbedderFactory) *Resolver {
	return &Resolver{embedders: embedders}
}

// Resolve maps every identifier to a retriever, failing on the first one it
// cannot load. Supported schemes:
//
//	bm25            in-process BM25 lexical ranker
//	dense:<model>   bi-encoder ranker over the named embedding model
//	mock:<seed>     deterministic mock signal (tests)
func (r *Resolver) Resolve(names []string) ([]Retriever, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no retrieval signals configured", ErrUnknownRetriever)
	}

	retrievers := make([]Retriever, 0, len(names))
	for _, name := range names {
		switch {
		case name == "bm25":
			retrievers = append(retrievers, NewBM25())

		case strings.HasPrefix(name, "dense:"):
			model := strings.TrimPrefix(name, "dense:")
			if model == "" {
				return nil, fmt.Errorf("%w: %q has no model", ErrUnknownRetriever, name)
			}
			if r.embedders == nil {
				return nil, fmt.Errorf("%w: %q requires an embedder factory", ErrUnknownRetriever, name)
			}
			client, err := r.embedders(model)
			if err != nil {
				return nil, fmt.Errorf("%w: failed to load %q: %v", ErrUnknownRetriever, name, err)
			}
			retrievers = append(retrievers, NewDense(name, client))

		case strings.HasPrefix(name, "mock:"):
			retrievers = append(retrievers, NewMock(name))

		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownRetriever, name)
		}
	}
	return retrievers, nil
}
