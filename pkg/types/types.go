// Package types defines the core data model shared across the distillery
// pipeline: passages, generated queries, mined candidate negatives, teacher
// margin labels, and the flattened training examples handed to fine-tuning.
package types

import "fmt"

// Passage is a single corpus document. Passages are immutable once loaded.
type Passage struct {
	ID    string `json:"_id"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// Body returns the searchable text of the passage: title and text joined
// with a single space, matching the BeIR convention.
func (p Passage) Body() string {
	if p.Title == "" {
		return p.Text
	}
	return p.Title + " " + p.Text
}

// Query is a (usually synthetic) search query. SourceID references the
// passage the query was generated from, which is also its designated
// positive; it is empty for queries loaded from an external source.
type Query struct {
	ID       string `json:"_id"`
	Text     string `json:"text"`
	SourceID string `json:"source_id,omitempty"`
}

// CandidateNegative is one entry of a query's mined negative pool: a passage
// surfaced by one or more retrieval signals, with the best (lowest) rank each
// signal gave it. Signals maps signal name to 1-based rank.
type CandidateNegative struct {
	PassageID string         `json:"did"`
	Signals   map[string]int `json:"signals"`
}

// SignalCount reports how many retrieval signals agreed on this candidate.
func (c CandidateNegative) SignalCount() int { return len(c.Signals) }

// MinedNegatives is the persisted mining result for one query: its positive
// passage and the merged, deduplicated candidate negative pool. Candidates
// are ordered by fused rank, best first.
type MinedNegatives struct {
	QueryID    string              `json:"qid"`
	PositiveID string              `json:"pos"`
	Negatives  []CandidateNegative `json:"neg"`
}

// MarginLabel is the unit of supervision produced by the pseudo labeler.
// Both raw teacher scores are kept so the margin can be recomputed or
// re-weighted downstream without re-scoring.
type MarginLabel struct {
	QueryID    string
	PositiveID string
	NegativeID string
	ScorePos   float64
	ScoreNeg   float64
}

// Margin is the teacher's relevance margin for this triple.
func (m MarginLabel) Margin() float64 { return m.ScorePos - m.ScoreNeg }

// TrainingExample is the flattened unit consumed by the fine-tuning loop.
type TrainingExample struct {
	Query    string
	Positive string
	Negative string
	Margin   float64
}

// Corpus is an in-memory passage table keyed by passage ID.
type Corpus map[string]Passage

// Get returns the passage for id or an error naming the missing ID.
func (c Corpus) Get(id string) (Passage, error) {
	p, ok := c[id]
	if !ok {
		return Passage{}, fmt.Errorf("passage %q not in corpus", id)
	}
	return p, nil
}

// QuerySet is an in-memory query table keyed by query ID.
type QuerySet map[string]Query

// Get returns the query for id or an error naming the missing ID.
func (q QuerySet) Get(id string) (Query, error) {
	qu, ok := q[id]
	if !ok {
		return Query{}, fmt.Errorf("query %q not in query set", id)
	}
	return qu, nil
}
