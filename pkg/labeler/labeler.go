// Package labeler assigns teacher margins to mined training triples.
//
// For a configured number of steps the labeler draws batches of (query,
// positive, negative) triples, scores both pairs of each triple with the
// teacher scorer, and persists the flat gpl-training-data.tsv artifact. The
// row order of that file is semantically load-bearing: it encodes the
// sampling distribution the assembler must preserve, so any randomization
// happens exactly once, here, under a fixed seed.
package labeler

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/soundprediction/distillery/pkg/artifact"
	"github.com/soundprediction/distillery/pkg/scorer"
	"github.com/soundprediction/distillery/pkg/types"
)

// Labeler drives teacher scoring over mined negatives.
type Labeler struct {
	scorer    scorer.Client
	steps     int
	batchSize int
	seed      int64
	store     *artifact.Store
	logger    *slog.Logger
}

// New creates a labeler. steps*batchSize triples are drawn in total; the
// batch size controls teacher throughput only, never which triples exist.
func New(client scorer.Client, steps, batchSize int, seed int64, store *artifact.Store, logger *slog.Logger) *Labeler {
	if batchSize <= 0 {
		batchSize = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Labeler{
		scorer:    client,
		steps:     steps,
		batchSize: batchSize,
		seed:      seed,
		store:     store,
		logger:    logger,
	}
}

// drawState tracks the rotation cursor for one query's negative pool.
type drawState struct {
	row    types.MinedNegatives
	cursor int
}

// next returns the next negative, cycling through the pool with wraparound.
// Cycling is the explicit pool-exhaustion policy: when a pool is smaller
// than the number of draws it receives, negatives repeat in order rather
// than the run failing.
func (d *drawState) next() string {
	did := d.row.Negatives[d.cursor].PassageID
	d.cursor = (d.cursor + 1) % len(d.row.Negatives)
	return did
}

// Run draws steps*batchSize triples, scores them, and persists the label
// artifact. Output is fully determined by (inputs, seed): the eligible
// queries are shuffled once up front, then visited round-robin, each query
// rotating through its own pool.
func (l *Labeler) Run(ctx context.Context, queries types.QuerySet, corpus types.Corpus, mined []types.MinedNegatives) ([]types.MarginLabel, error) {
	if l.steps <= 0 {
		return nil, fmt.Errorf("step count must be positive, got %d", l.steps)
	}

	states := make([]*drawState, 0, len(mined))
	sorted := make([]types.MinedNegatives, len(mined))
	copy(sorted, mined)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].QueryID < sorted[j].QueryID })

	for _, row := range sorted {
		if len(row.Negatives) == 0 {
			l.logger.Warn("query has no mined negatives, skipping", "query", row.QueryID)
			continue
		}
		states = append(states, &drawState{row: row})
	}
	if len(states) == 0 {
		return nil, fmt.Errorf("no queries with mined negatives to label")
	}

	rng := rand.New(rand.NewSource(l.seed))
	rng.Shuffle(len(states), func(i, j int) { states[i], states[j] = states[j], states[i] })

	total := l.steps * l.batchSize
	labels := make([]types.MarginLabel, 0, total)
	next := 0

	for drawn := 0; drawn < total; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batchEnd := min(drawn+l.batchSize, total)
		batch := make([]types.MarginLabel, 0, batchEnd-drawn)
		pairs := make([]scorer.Pair, 0, 2*(batchEnd-drawn))

		for ; drawn < batchEnd; drawn++ {
			state := states[next]
			next = (next + 1) % len(states)

			qid := state.row.QueryID
			query, err := queries.Get(qid)
			if err != nil {
				return nil, err
			}
			pos, err := corpus.Get(state.row.PositiveID)
			if err != nil {
				return nil, fmt.Errorf("query %s: %w", qid, err)
			}
			negID := state.next()
			neg, err := corpus.Get(negID)
			if err != nil {
				return nil, fmt.Errorf("query %s: %w", qid, err)
			}

			batch = append(batch, types.MarginLabel{
				QueryID:    qid,
				PositiveID: state.row.PositiveID,
				NegativeID: negID,
			})
			pairs = append(pairs,
				scorer.Pair{Query: query.Text, Passage: pos.Body()},
				scorer.Pair{Query: query.Text, Passage: neg.Body()},
			)
		}

		scores, err := l.scorer.ScorePairs(ctx, pairs)
		if err != nil {
			return nil, fmt.Errorf("teacher scoring failed: %w", err)
		}
		if len(scores) != len(pairs) {
			return nil, fmt.Errorf("teacher returned %d scores for %d pairs", len(scores), len(pairs))
		}

		for i := range batch {
			batch[i].ScorePos = scores[2*i]
			batch[i].ScoreNeg = scores[2*i+1]
		}
		labels = append(labels, batch...)
	}

	if err := l.persist(labels); err != nil {
		return nil, err
	}
	l.logger.Info("pseudo labeling complete",
		"rows", len(labels),
		"steps", l.steps,
		"batch_size", l.batchSize)
	return labels, nil
}

// persist writes the label rows as a TSV of
// (qid, pos-id, neg-id, score_pos, score_neg), in draw order.
func (l *Labeler) persist(labels []types.MarginLabel) error {
	var buf bytes.Buffer
	for _, row := range labels {
		fmt.Fprintf(&buf, "%s\t%s\t%s\t%s\t%s\n",
			row.QueryID, row.PositiveID, row.NegativeID,
			strconv.FormatFloat(row.ScorePos, 'g', -1, 64),
			strconv.FormatFloat(row.ScoreNeg, 'g', -1, 64))
	}
	return l.store.WriteAtomic(artifact.TrainingDataFile, buf.Bytes())
}

// Load reads a persisted label artifact, preserving row order.
func Load(path string) ([]types.MarginLabel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open training data %s: %w", path, err)
	}
	defer f.Close()

	var labels []types.MarginLabel
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != 5 {
			return nil, fmt.Errorf("training data %s line %d: expected 5 fields, got %d", path, line, len(fields))
		}
		scorePos, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, fmt.Errorf("training data %s line %d: bad positive score: %w", path, line, err)
		}
		scoreNeg, err := strconv.ParseFloat(fields[4], 64)
		if err != nil {
			return nil, fmt.Errorf("training data %s line %d: bad negative score: %w", path, line, err)
		}
		labels = append(labels, types.MarginLabel{
			QueryID:    fields[0],
			PositiveID: fields[1],
			NegativeID: fields[2],
			ScorePos:   scorePos,
			ScoreNeg:   scoreNeg,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read training data %s: %w", path, err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("training data %s is empty", path)
	}
	return labels, nil
}
