package scorer

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	badger "github.com/dgraph-io/badger/v4"
)

// CachedClient wraps a scorer with a persistent badger-backed memo of pair
// scores. Because teacher scorers are deterministic, a cached score is as
// good as a fresh one: a resumed labeling run never re-scores pairs it
// already paid for.
type CachedClient struct {
	inner Client
	db    *badger.DB
}

// NewCachedClient opens (or creates) the cache at dir and wraps inner.
func NewCachedClient(inner Client, dir string) (*CachedClient, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open score cache at %s: %w", dir, err)
	}
	return &CachedClient{inner: inner, db: db}, nil
}

func cacheKey(query, passage string) []byte {
	sum := sha256.Sum256([]byte(query + "\x00" + passage))
	return sum[:]
}

func (c *CachedClient) lookup(query, passage string) (float64, bool) {
	var score float64
	found := false
	_ = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(query, passage))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 8 {
				score = math.Float64frombits(binary.BigEndian.Uint64(val))
				found = true
			}
			return nil
		})
	})
	return score, found
}

func (c *CachedClient) remember(query, passage string, score float64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(score))
	// A failed cache write costs a future re-score, nothing more.
	_ = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey(query, passage), buf[:])
	})
}

// Score implements Client.
func (c *CachedClient) Score(ctx context.Context, query, passage string) (float64, error) {
	if score, ok := c.lookup(query, passage); ok {
		return score, nil
	}
	score, err := c.inner.Score(ctx, query, passage)
	if err != nil {
		return 0, err
	}
	c.remember(query, passage, score)
	return score, nil
}

// ScorePairs implements Client. Cache misses are forwarded to the inner
// scorer in one batch, preserving input order in the result.
func (c *CachedClient) ScorePairs(ctx context.Context, pairs []Pair) ([]float64, error) {
	scores := make([]float64, len(pairs))
	var missing []Pair
	var missingIdx []int

	for i, p := range pairs {
		if score, ok := c.lookup(p.Query, p.Passage); ok {
			scores[i] = score
		} else {
			missing = append(missing, p)
			missingIdx = append(missingIdx, i)
		}
	}

	if len(missing) > 0 {
		fresh, err := c.inner.ScorePairs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for j, score := range fresh {
			scores[missingIdx[j]] = score
			c.remember(missing[j].Query, missing[j].Passage, score)
		}
	}
	return scores, nil
}

// Close closes both the cache and the inner scorer.
func (c *CachedClient) Close() error {
	dbErr := c.db.Close()
	innerErr := c.inner.Close()
	if dbErr != nil {
		return dbErr
	}
	return innerErr
}

var _ Client = (*CachedClient)(nil)
