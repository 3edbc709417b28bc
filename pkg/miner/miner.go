// Package miner mines hard negative passages for generated queries.
//
// Each configured retrieval signal contributes its own top-K ranking per
// query; the miner merges the rankings, deduplicates by passage, drops the
// query's designated positive, and persists the bounded candidate pool as
// the hard-negatives artifact.
package miner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/soundprediction/distillery/pkg/artifact"
	"github.com/soundprediction/distillery/pkg/retriever"
	"github.com/soundprediction/distillery/pkg/types"
	"github.com/soundprediction/distillery/pkg/vector"
)

// rrfK is the reciprocal-rank-fusion smoothing constant. Fusing by rank
// instead of raw score sidesteps the incompatible score scales of lexical
// and dense signals.
const rrfK = 60

// DefaultMaxNegatives bounds the merged pool size per query.
const DefaultMaxNegatives = 50

// Miner mines candidate negatives with a set of retrieval signals.
type Miner struct {
	retrievers   []retriever.Retriever
	maxNegatives int
	store        *artifact.Store
	logger       *slog.Logger
}

// New creates a miner over already-resolved retrieval signals.
func New(retrievers []retriever.Retriever, maxNegatives int, store *artifact.Store, logger *slog.Logger) *Miner {
	if maxNegatives <= 0 {
		maxNegatives = DefaultMaxNegatives
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{
		retrievers:   retrievers,
		maxNegatives: maxNegatives,
		store:        store,
		logger:       logger,
	}
}

// Run indexes every signal over the corpus, mines each query's pool, and
// persists the hard-negatives artifact. Queries whose positive passage is
// missing from the corpus fail the run; a query for which no negatives
// survive the merge is persisted with an empty pool.
func (m *Miner) Run(ctx context.Context, queries types.QuerySet, corpus types.Corpus) ([]types.MinedNegatives, error) {
	if len(m.retrievers) == 0 {
		return nil, fmt.Errorf("no retrieval signals configured")
	}

	topK := m.maxNegatives
	if topK > len(corpus) {
		m.logger.Warn("max negatives exceeds corpus size, clamping",
			"max_negatives", m.maxNegatives, "corpus_size", len(corpus))
		topK = len(corpus)
	}

	for _, r := range m.retrievers {
		m.logger.Info("indexing retrieval signal", "signal", r.Name(), "passages", len(corpus))
		if err := r.Index(ctx, corpus); err != nil {
			return nil, fmt.Errorf("failed to index signal %s: %w", r.Name(), err)
		}
	}

	qids := make([]string, 0, len(queries))
	for qid := range queries {
		qids = append(qids, qid)
	}
	sort.Strings(qids)

	mined := make([]types.MinedNegatives, 0, len(qids))
	for _, qid := range qids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		query := queries[qid]
		if query.SourceID == "" {
			return nil, fmt.Errorf("query %s has no designated positive passage", qid)
		}
		if _, err := corpus.Get(query.SourceID); err != nil {
			return nil, fmt.Errorf("query %s: positive passage missing: %w", qid, err)
		}

		pool, err := m.mineQuery(ctx, query, topK)
		if err != nil {
			return nil, err
		}
		mined = append(mined, types.MinedNegatives{
			QueryID:    qid,
			PositiveID: query.SourceID,
			Negatives:  pool,
		})
	}

	if err := m.persist(mined); err != nil {
		return nil, err
	}
	m.logger.Info("mined hard negatives", "queries", len(mined), "signals", len(m.retrievers))
	return mined, nil
}

// mineQuery merges the per-signal rankings for one query. Candidates are
// ordered by reciprocal-rank fusion across signals, so passages that several
// signals agree on rise to the front of the pool.
func (m *Miner) mineQuery(ctx context.Context, query types.Query, topK int) ([]types.CandidateNegative, error) {
	merged := make(map[string]types.CandidateNegative)
	fused := make(map[string]float64)

	for _, r := range m.retrievers {
		results, err := r.Retrieve(ctx, query.Text, topK)
		if err != nil {
			return nil, fmt.Errorf("signal %s failed for query %s: %w", r.Name(), query.ID, err)
		}

		for i, res := range results {
			if res.PassageID == query.SourceID {
				continue
			}
			rank := i + 1
			cand, ok := merged[res.PassageID]
			if !ok {
				cand = types.CandidateNegative{
					PassageID: res.PassageID,
					Signals:   make(map[string]int),
				}
			}
			if prev, seen := cand.Signals[r.Name()]; !seen || rank < prev {
				cand.Signals[r.Name()] = rank
			}
			merged[res.PassageID] = cand
			fused[res.PassageID] += 1.0 / float64(rrfK+rank)
		}
	}

	scored := make([]vector.ScoredItem[string], 0, len(merged))
	dids := make([]string, 0, len(merged))
	for did := range merged {
		dids = append(dids, did)
	}
	sort.Strings(dids) // stable tie-breaking under equal fused scores
	for _, did := range dids {
		scored = append(scored, vector.ScoredItem[string]{Item: did, Score: fused[did]})
	}

	top := vector.TopKByScore(scored, topK)
	pool := make([]types.CandidateNegative, len(top))
	for i, item := range top {
		pool[i] = merged[item.Item]
	}
	return pool, nil
}

func (m *Miner) persist(mined []types.MinedNegatives) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range mined {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("failed to encode negatives for %s: %w", row.QueryID, err)
		}
	}
	return m.store.WriteAtomic(artifact.HardNegativesFile, buf.Bytes())
}

// Load reads a persisted hard-negatives artifact.
func Load(path string) ([]types.MinedNegatives, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open hard negatives %s: %w", path, err)
	}
	defer f.Close()

	var mined []types.MinedNegatives
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var row types.MinedNegatives
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("hard negatives %s line %d: %w", path, line, err)
		}
		mined = append(mined, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read hard negatives %s: %w", path, err)
	}
	if len(mined) == 0 {
		return nil, fmt.Errorf("hard negatives %s is empty", path)
	}
	return mined, nil
}
