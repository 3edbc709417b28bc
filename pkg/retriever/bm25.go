package retriever

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/soundprediction/distillery/pkg/types"
	"github.com/soundprediction/distillery/pkg/vector"
)

// BM25 parameters. k1 controls term-frequency saturation, b controls
// document-length normalization.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// BM25 is an in-process BM25 lexical ranker over the corpus.
type BM25 struct {
	ids      []string
	docs     [][]string
	tf       []map[string]int
	idf      map[string]float64
	avgdl    float64
	docCount int
}

// NewBM25 returns an unindexed BM25 retriever.
func NewBM25() *BM25 {
	return &BM25{idf: make(map[string]float64)}
}

// Name implements Retriever.
func (b *BM25) Name() string { return "bm25" }

// Index tokenizes the corpus and computes document frequencies. Passages are
// indexed in sorted ID order so ranking is deterministic across runs.
func (b *BM25) Index(ctx context.Context, corpus types.Corpus) error {
	if len(corpus) == 0 {
		return fmt.Errorf("bm25: empty corpus")
	}

	b.ids = make([]string, 0, len(corpus))
	for id := range corpus {
		b.ids = append(b.ids, id)
	}
	sort.Strings(b.ids)

	b.docCount = len(b.ids)
	b.docs = make([][]string, b.docCount)
	b.tf = make([]map[string]int, b.docCount)

	var totalLen int
	docFreq := make(map[string]int)
	for i, id := range b.ids {
		tokens := tokenize(corpus[id].Body())
		b.docs[i] = tokens
		totalLen += len(tokens)

		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		b.tf[i] = tf
		for tok := range tf {
			docFreq[tok]++
		}
	}
	b.avgdl = float64(totalLen) / float64(b.docCount)

	for tok, df := range docFreq {
		b.idf[tok] = math.Log(1 + (float64(b.docCount-df)+0.5)/(float64(df)+0.5))
	}
	return nil
}

// Retrieve scores every passage against the query and returns the top k.
func (b *BM25) Retrieve(ctx context.Context, query string, k int) ([]ScoredPassage, error) {
	if b.docCount == 0 {
		return nil, fmt.Errorf("bm25: not indexed")
	}

	qTokens := tokenize(query)
	scored := make([]vector.ScoredItem[string], 0, b.docCount)
	for i, id := range b.ids {
		s := b.score(qTokens, i)
		if s > 0 {
			scored = append(scored, vector.ScoredItem[string]{Item: id, Score: s})
		}
	}

	top := vector.TopKByScore(scored, k)
	results := make([]ScoredPassage, len(top))
	for i, item := range top {
		results[i] = ScoredPassage{PassageID: item.Item, Score: item.Score}
	}
	return results, nil
}

func (b *BM25) score(query []string, doc int) float64 {
	var score float64
	docLen := float64(len(b.docs[doc]))

	for _, tok := range query {
		tf := float64(b.tf[doc][tok])
		if tf == 0 {
			continue
		}
		numerator := tf * (bm25K1 + 1)
		denominator := tf + bm25K1*(1-bm25B+bm25B*docLen/b.avgdl)
		score += b.idf[tok] * (numerator / denominator)
	}
	return score
}

// tokenize lowercases and splits on anything that is not a letter or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

var _ Retriever = (*BM25)(nil)
