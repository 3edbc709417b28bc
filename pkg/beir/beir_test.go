package beir_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/soundprediction/distillery/pkg/beir"
	"github.com/soundprediction/distillery/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCorpus(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "corpus.jsonl",
		`{"_id":"d1","title":"Go","text":"A language."}`+"\n"+
			`{"_id":"d2","text":"No title."}`+"\n")

	corpus, err := beir.LoadCorpus(path)
	require.NoError(t, err)
	require.Len(t, corpus, 2)
	assert.Equal(t, "Go A language.", corpus["d1"].Body())
	assert.Equal(t, "No title.", corpus["d2"].Body())
}

func TestLoadCorpusErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := beir.LoadCorpus(filepath.Join(dir, "missing.jsonl"))
	assert.Error(t, err)

	bad := writeFile(t, dir, "bad.jsonl", "not json\n")
	_, err = beir.LoadCorpus(bad)
	assert.ErrorContains(t, err, "line 1")

	noID := writeFile(t, dir, "noid.jsonl", `{"text":"x"}`+"\n")
	_, err = beir.LoadCorpus(noID)
	assert.ErrorContains(t, err, "missing _id")
}

func TestCorpusRoundTrip(t *testing.T) {
	corpus := types.Corpus{
		"d2": {ID: "d2", Text: "two"},
		"d1": {ID: "d1", Title: "One", Text: "one"},
	}

	data, err := beir.MarshalCorpus(corpus)
	require.NoError(t, err)

	path := writeFile(t, t.TempDir(), "corpus.jsonl", string(data))
	loaded, err := beir.LoadCorpus(path)
	require.NoError(t, err)
	assert.Equal(t, corpus, loaded)
}

func TestQrelsRoundTrip(t *testing.T) {
	qrels := beir.Qrels{
		"q1": {"d1": 1},
		"q2": {"d2": 1, "d3": 2},
	}

	data := beir.MarshalQrels(qrels)
	path := writeFile(t, t.TempDir(), "train.tsv", string(data))

	loaded, err := beir.LoadQrels(path)
	require.NoError(t, err)
	assert.Equal(t, qrels, loaded)
}

func TestLoadQrelsRejectsMalformedRows(t *testing.T) {
	path := writeFile(t, t.TempDir(), "train.tsv", "q1\td1\n")
	_, err := beir.LoadQrels(path)
	assert.ErrorContains(t, err, "expected 3 tab-separated fields")
}

func TestResize(t *testing.T) {
	corpus := make(types.Corpus)
	for _, id := range []string{"d1", "d2", "d3", "d4", "d5"} {
		corpus[id] = types.Passage{ID: id, Text: id}
	}

	subset, err := beir.Resize(corpus, 3, 42)
	require.NoError(t, err)
	assert.Len(t, subset, 3)
	for id := range subset {
		assert.Contains(t, corpus, id, "resized corpus must be a strict subset")
	}

	// Deterministic for a fixed seed.
	again, err := beir.Resize(corpus, 3, 42)
	require.NoError(t, err)
	assert.Equal(t, subset, again)

	// Target >= corpus size keeps the corpus unchanged.
	full, err := beir.Resize(corpus, 10, 42)
	require.NoError(t, err)
	assert.Len(t, full, 5)

	_, err = beir.Resize(corpus, 0, 42)
	assert.Error(t, err)
}

func TestValidateDataset(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, beir.ValidateDataset(dir))

	writeFile(t, dir, "corpus.jsonl", `{"_id":"d1","text":"x"}`+"\n")
	writeFile(t, dir, "queries.jsonl", `{"_id":"q1","text":"x?"}`+"\n")
	assert.Error(t, beir.ValidateDataset(dir), "qrels still missing")

	writeFile(t, dir, filepath.Join("qrels", "test.tsv"), "query-id\tcorpus-id\tscore\nq1\td1\t1\n")
	assert.NoError(t, beir.ValidateDataset(dir))
}
