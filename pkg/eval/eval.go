// Package eval measures retrieval quality of a student encoder against a
// held-out BeIR test split: queries are run against the full corpus with
// dot-product retrieval and scored with standard ranking metrics.
package eval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soundprediction/distillery/pkg/beir"
	"github.com/soundprediction/distillery/pkg/embedder"
	"github.com/soundprediction/distillery/pkg/retriever"
	"github.com/soundprediction/distillery/pkg/types"
)

const (
	ndcgCutoff   = 10
	mrrCutoff    = 10
	recallCutoff = 100
)

// Metrics holds the aggregate retrieval metrics over all evaluated queries.
type Metrics struct {
	NDCG10    float64 `yaml:"ndcg@10"`
	MRR10     float64 `yaml:"mrr@10"`
	Recall100 float64 `yaml:"recall@100"`
	Queries   int     `yaml:"queries"`
}

// Summary is the persisted evaluation report.
type Summary struct {
	Model       string    `yaml:"model"`
	Dataset     string    `yaml:"dataset"`
	EvaluatedAt time.Time `yaml:"evaluated_at"`
	Metrics     Metrics   `yaml:"metrics"`
}

// Evaluator runs dot-product retrieval evaluation with a student encoder.
type Evaluator struct {
	encoder embedder.Client
	logger  *slog.Logger
}

// New creates an evaluator.
func New(encoder embedder.Client, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{encoder: encoder, logger: logger}
}

// Evaluate indexes the corpus with the encoder and scores every query that
// has relevance judgments. Queries absent from the qrels are skipped; a qrels
// entry referencing an unknown query is an error, since it means the
// evaluation data does not describe this corpus.
func (e *Evaluator) Evaluate(ctx context.Context, corpus types.Corpus, queries types.QuerySet, qrels beir.Qrels) (Metrics, error) {
	if len(qrels) == 0 {
		return Metrics{}, fmt.Errorf("no relevance judgments to evaluate against")
	}

	index := retriever.NewDense("eval", e.encoder)
	if err := index.Index(ctx, corpus); err != nil {
		return Metrics{}, fmt.Errorf("failed to index evaluation corpus: %w", err)
	}

	qids := make([]string, 0, len(qrels))
	for qid := range qrels {
		qids = append(qids, qid)
	}
	sort.Strings(qids)

	var m Metrics
	for _, qid := range qids {
		query, err := queries.Get(qid)
		if err != nil {
			return Metrics{}, fmt.Errorf("evaluation data refers to %w", err)
		}
		judged := qrels[qid]

		results, err := index.Retrieve(ctx, query.Text, recallCutoff)
		if err != nil {
			return Metrics{}, fmt.Errorf("retrieval failed for query %s: %w", qid, err)
		}
		ranked := make([]string, len(results))
		for i, r := range results {
			ranked[i] = r.PassageID
		}

		m.NDCG10 += ndcgAt(ranked, judged, ndcgCutoff)
		m.MRR10 += mrrAt(ranked, judged, mrrCutoff)
		m.Recall100 += recallAt(ranked, judged, recallCutoff)
		m.Queries++
	}

	if m.Queries == 0 {
		return Metrics{}, fmt.Errorf("no evaluable queries")
	}
	n := float64(m.Queries)
	m.NDCG10 /= n
	m.MRR10 /= n
	m.Recall100 /= n

	e.logger.Info("evaluation complete",
		"queries", m.Queries,
		"ndcg@10", m.NDCG10,
		"mrr@10", m.MRR10,
		"recall@100", m.Recall100)
	return m, nil
}

// ndcgAt computes normalized discounted cumulative gain at cutoff k, using
// graded relevance from the qrels.
func ndcgAt(ranked []string, judged map[string]int, k int) float64 {
	var dcg float64
	for i, id := range ranked {
		if i >= k {
			break
		}
		if rel := judged[id]; rel > 0 {
			dcg += float64(rel) / math.Log2(float64(i)+2)
		}
	}

	rels := make([]int, 0, len(judged))
	for _, rel := range judged {
		if rel > 0 {
			rels = append(rels, rel)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(rels)))

	var idcg float64
	for i, rel := range rels {
		if i >= k {
			break
		}
		idcg += float64(rel) / math.Log2(float64(i)+2)
	}
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

// mrrAt computes reciprocal rank of the first relevant result within k.
func mrrAt(ranked []string, judged map[string]int, k int) float64 {
	for i, id := range ranked {
		if i >= k {
			break
		}
		if judged[id] > 0 {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// recallAt computes the fraction of relevant passages found within k.
func recallAt(ranked []string, judged map[string]int, k int) float64 {
	relevant := 0
	for _, rel := range judged {
		if rel > 0 {
			relevant++
		}
	}
	if relevant == 0 {
		return 0
	}

	found := 0
	for i, id := range ranked {
		if i >= k {
			break
		}
		if judged[id] > 0 {
			found++
		}
	}
	return float64(found) / float64(relevant)
}

// WriteSummary persists the evaluation report as YAML.
func WriteSummary(path string, summary Summary) error {
	data, err := yaml.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation summary: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create summary directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write evaluation summary: %w", err)
	}
	return nil
}
