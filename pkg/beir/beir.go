// Package beir reads and writes datasets in the BeIR layout: a corpus.jsonl
// of passages, a queries.jsonl of queries, and a qrels directory of
// tab-separated relevance judgments.
package beir

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/soundprediction/distillery/pkg/types"
)

// Qrels maps query ID to the relevant passage IDs and their gold scores.
type Qrels map[string]map[string]int

// LoadCorpus reads a corpus.jsonl file into a passage table.
func LoadCorpus(path string) (types.Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus %s: %w", path, err)
	}
	defer f.Close()

	corpus := make(types.Corpus)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var p types.Passage
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("corpus %s line %d: %w", path, line, err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("corpus %s line %d: missing _id", path, line)
		}
		corpus[p.ID] = p
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read corpus %s: %w", path, err)
	}
	if len(corpus) == 0 {
		return nil, fmt.Errorf("corpus %s is empty", path)
	}
	return corpus, nil
}

// MarshalCorpus serializes a corpus back to jsonl with stable ID ordering.
func MarshalCorpus(corpus types.Corpus) ([]byte, error) {
	ids := make([]string, 0, len(corpus))
	for id := range corpus {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, id := range ids {
		if err := enc.Encode(corpus[id]); err != nil {
			return nil, fmt.Errorf("failed to encode passage %s: %w", id, err)
		}
	}
	return buf.Bytes(), nil
}

// LoadQueries reads a queries.jsonl file into a query table.
func LoadQueries(path string) (types.QuerySet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open queries %s: %w", path, err)
	}
	defer f.Close()

	queries := make(types.QuerySet)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var q types.Query
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("queries %s line %d: %w", path, line, err)
		}
		if q.ID == "" {
			return nil, fmt.Errorf("queries %s line %d: missing _id", path, line)
		}
		queries[q.ID] = q
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read queries %s: %w", path, err)
	}
	return queries, nil
}

// MarshalQueries serializes a query table to jsonl with stable ID ordering.
func MarshalQueries(queries types.QuerySet) ([]byte, error) {
	ids := make([]string, 0, len(queries))
	for id := range queries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, id := range ids {
		if err := enc.Encode(queries[id]); err != nil {
			return nil, fmt.Errorf("failed to encode query %s: %w", id, err)
		}
	}
	return buf.Bytes(), nil
}

// LoadQrels reads a qrels TSV file (query-id, corpus-id, score). A header
// row is skipped when present.
func LoadQrels(path string) (Qrels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open qrels %s: %w", path, err)
	}
	defer f.Close()

	qrels := make(Qrels)
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != 3 {
			return nil, fmt.Errorf("qrels %s line %d: expected 3 tab-separated fields, got %d", path, line, len(fields))
		}
		if line == 1 && fields[0] == "query-id" {
			continue
		}
		score, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("qrels %s line %d: bad score %q: %w", path, line, fields[2], err)
		}
		if qrels[fields[0]] == nil {
			qrels[fields[0]] = make(map[string]int)
		}
		qrels[fields[0]][fields[1]] = score
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read qrels %s: %w", path, err)
	}
	if len(qrels) == 0 {
		return nil, fmt.Errorf("qrels %s is empty", path)
	}
	return qrels, nil
}

// MarshalQrels serializes qrels to the BeIR TSV format with a header row and
// stable ordering.
func MarshalQrels(qrels Qrels) []byte {
	qids := make([]string, 0, len(qrels))
	for qid := range qrels {
		qids = append(qids, qid)
	}
	sort.Strings(qids)

	var buf bytes.Buffer
	buf.WriteString("query-id\tcorpus-id\tscore\n")
	for _, qid := range qids {
		dids := make([]string, 0, len(qrels[qid]))
		for did := range qrels[qid] {
			dids = append(dids, did)
		}
		sort.Strings(dids)
		for _, did := range dids {
			fmt.Fprintf(&buf, "%s\t%s\t%d\n", qid, did, qrels[qid][did])
		}
	}
	return buf.Bytes()
}

// Resize returns a deterministic subset of the corpus with exactly n
// passages. Passage IDs are sorted and shuffled with the given seed before
// taking the first n, so the same inputs always produce the same subset.
// If n is at least the corpus size, the corpus is returned unchanged.
func Resize(corpus types.Corpus, n int, seed int64) (types.Corpus, error) {
	if n <= 0 {
		return nil, fmt.Errorf("resize target must be positive, got %d", n)
	}
	if n >= len(corpus) {
		return corpus, nil
	}

	ids := make([]string, 0, len(corpus))
	for id := range corpus {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	subset := make(types.Corpus, n)
	for _, id := range ids[:n] {
		subset[id] = corpus[id]
	}
	return subset, nil
}

// ValidateDataset checks that an evaluation dataset directory holds the
// three BeIR pieces the evaluator needs. It is called before any stage runs
// when evaluation is requested, so a malformed dataset fails the run early.
func ValidateDataset(dir string) error {
	corpusPath := filepath.Join(dir, "corpus.jsonl")
	if _, err := os.Stat(corpusPath); err != nil {
		return fmt.Errorf("evaluation dataset %s: missing corpus.jsonl: %w", dir, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "queries.jsonl")); err != nil {
		return fmt.Errorf("evaluation dataset %s: missing queries.jsonl: %w", dir, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "qrels", "test.tsv")); err != nil {
		return fmt.Errorf("evaluation dataset %s: missing qrels/test.tsv: %w", dir, err)
	}
	return nil
}
