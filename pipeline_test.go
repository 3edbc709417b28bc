package distillery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/distillery/pkg/artifact"
	"github.com/soundprediction/distillery/pkg/config"
	"github.com/soundprediction/distillery/pkg/embedder"
	"github.com/soundprediction/distillery/pkg/labeler"
	"github.com/soundprediction/distillery/pkg/miner"
	"github.com/soundprediction/distillery/pkg/qgen"
	"github.com/soundprediction/distillery/pkg/scorer"
	"github.com/soundprediction/distillery/pkg/train"
)

// writeDataset lays out a minimal BeIR dataset directory.
func writeDataset(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	corpus := `{"_id":"P1","title":"Capybara","text":"The capybara is the largest living rodent."}
{"_id":"P2","text":"Rust is a systems programming language focused on safety."}
{"_id":"P3","text":"The Amazon river flows through the rainforest."}
{"_id":"P4","text":"Dense retrieval encodes queries and passages into vectors."}
`
	queries := `{"_id":"T1","text":"largest rodent species"}
{"_id":"T2","text":"what is rust used for"}
`
	qrels := "query-id\tcorpus-id\tscore\nT1\tP1\t1\nT2\tP2\t1\n"

	require.NoError(t, os.WriteFile(filepath.Join(dir, "corpus.jsonl"), []byte(corpus), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "queries.jsonl"), []byte(queries), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "qrels"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "qrels", "test.tsv"), []byte(qrels), 0o644))
	return dir
}

func testConfig(t *testing.T, datasetDir string) *config.Config {
	t.Helper()
	return &config.Config{
		Data: config.DataConfig{
			EvaluationDir: datasetDir,
			WorkingDir:    t.TempDir(),
		},
		Pipeline: config.PipelineConfig{
			Prefix:            "qgen",
			QueriesPerPassage: 2,
			Retrievers:        []string{"bm25", "mock:a"},
			MaxNegatives:      10,
			Steps:             4,
			BatchSize:         2,
			Seed:              42,
		},
		Student: config.StudentConfig{
			BaseModel:    "distilbert-base-uncased",
			OutputDir:    t.TempDir(),
			Pooling:      "mean",
			MaxSeqLength: 350,
		},
	}
}

func testClient(t *testing.T, cfg *config.Config) (*Client, *train.StubTrainer) {
	t.Helper()
	trainer := &train.StubTrainer{}
	client, err := NewClient(cfg, &Options{
		Generator: qgen.NewMockGenerator(),
		Teacher:   scorer.NewMockClient(),
		Embedders: func(model string) (embedder.Client, error) {
			return embedder.NewMockClient(8), nil
		},
		Trainer: trainer,
		Student: embedder.NewMockClient(8),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, trainer
}

func TestStageStateNext(t *testing.T) {
	all := StageState{
		CorpusExists: true, QueriesExist: true, QrelsExist: true,
		NegativesExist: true, LabelsExist: true, CheckpointExists: true,
		SummaryExists: true,
	}
	tests := []struct {
		name   string
		mutate func(*StageState)
		want   Stage
	}{
		{"empty directory", func(s *StageState) { *s = StageState{} }, StageEnsureCorpus},
		{"missing queries", func(s *StageState) { s.QueriesExist = false }, StageGenerateQueries},
		{"missing qrels only", func(s *StageState) { s.QrelsExist = false }, StageGenerateQueries},
		{"missing negatives", func(s *StageState) { s.NegativesExist = false }, StageMineNegatives},
		{"missing labels", func(s *StageState) { s.LabelsExist = false }, StagePseudoLabel},
		{"missing checkpoint", func(s *StageState) { s.CheckpointExists = false }, StageTrain},
		{"all present, no eval", func(s *StageState) {}, StageDone},
		{"eval pending", func(s *StageState) { s.EvaluationEnabled = true; s.SummaryExists = false }, StageEvaluate},
		{"eval complete", func(s *StageState) { s.EvaluationEnabled = true }, StageDone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := all
			tt.mutate(&state)
			assert.Equal(t, tt.want, state.Next())
		})
	}
}

func TestRunProducesAllArtifacts(t *testing.T) {
	cfg := testConfig(t, writeDataset(t))
	client, trainer := testClient(t, cfg)

	require.NoError(t, client.Run(context.Background()))

	store := client.Store()
	assert.True(t, store.Exists(artifact.CorpusFile))
	assert.True(t, store.Exists(artifact.QueriesFile("qgen")))
	assert.True(t, store.Exists(artifact.QrelsFile("qgen")))
	assert.True(t, store.Exists(artifact.HardNegativesFile))
	assert.True(t, store.Exists(artifact.TrainingDataFile))
	assert.True(t, artifact.CheckpointExists(cfg.Student.OutputDir, cfg.Pipeline.Steps))
	require.Len(t, trainer.Calls, 1)

	labelPath, err := store.Path(artifact.TrainingDataFile)
	require.NoError(t, err)
	labels, err := labeler.Load(labelPath)
	require.NoError(t, err)
	assert.Len(t, labels, cfg.Pipeline.Steps*cfg.Pipeline.BatchSize)
	assert.Equal(t, len(labels), trainer.Examples, "trainer consumes one example per label row")

	assert.Equal(t, StageDone, client.NextStage())
}

func TestRunIsIdempotent(t *testing.T) {
	cfg := testConfig(t, writeDataset(t))
	client, trainer := testClient(t, cfg)

	require.NoError(t, client.Run(context.Background()))

	labelPath, err := client.Store().Path(artifact.TrainingDataFile)
	require.NoError(t, err)
	first, err := os.ReadFile(labelPath)
	require.NoError(t, err)

	require.NoError(t, client.Run(context.Background()))
	second, err := os.ReadFile(labelPath)
	require.NoError(t, err)

	assert.Equal(t, first, second, "second run must not rewrite artifacts")
	assert.Len(t, trainer.Calls, 1, "second run must not retrain")
}

func TestRunResumesFromDeletedLabelArtifact(t *testing.T) {
	cfg := testConfig(t, writeDataset(t))
	client, trainer := testClient(t, cfg)

	require.NoError(t, client.Run(context.Background()))

	store := client.Store()
	negPath, err := store.Path(artifact.HardNegativesFile)
	require.NoError(t, err)
	negBefore, err := os.ReadFile(negPath)
	require.NoError(t, err)

	labelPath, err := store.Path(artifact.TrainingDataFile)
	require.NoError(t, err)
	require.NoError(t, os.Remove(labelPath))

	assert.Equal(t, StagePseudoLabel, client.NextStage())
	require.NoError(t, client.Run(context.Background()))

	assert.True(t, store.Exists(artifact.TrainingDataFile), "labeling re-ran")
	negAfter, err := os.ReadFile(negPath)
	require.NoError(t, err)
	assert.Equal(t, negBefore, negAfter, "mined negatives must be untouched")
	assert.Len(t, trainer.Calls, 1, "existing checkpoint must not retrain")
}

func TestRunResizesCorpus(t *testing.T) {
	cfg := testConfig(t, writeDataset(t))
	cfg.Data.CorpusSize = 2
	client, _ := testClient(t, cfg)

	require.NoError(t, client.Run(context.Background()))

	path, err := client.Store().Path(artifact.CorpusFile)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(path), "corpus artifact holds the resized subset: %s", data)
}

func TestRunWithEvaluation(t *testing.T) {
	cfg := testConfig(t, writeDataset(t))
	cfg.Evaluation.Enabled = true
	client, _ := testClient(t, cfg)

	require.NoError(t, client.Run(context.Background()))

	summary, err := os.ReadFile(client.summaryPath())
	require.NoError(t, err)
	assert.Contains(t, string(summary), "ndcg@10")
	assert.Equal(t, StageDone, client.NextStage())
}

func TestRunFailsEarlyOnBadEvaluationDataset(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Evaluation.Enabled = true
	client, trainer := testClient(t, cfg)

	err := client.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, trainer.Calls, "no stage may run when evaluation data is unusable")
	assert.False(t, client.Store().Exists(artifact.CorpusFile))
}

func TestRunFailsOnUnknownRetrieverBeforeWriting(t *testing.T) {
	cfg := testConfig(t, writeDataset(t))
	cfg.Pipeline.Retrievers = []string{"bm25", "faiss"}
	client, _ := testClient(t, cfg)

	err := client.Run(context.Background())
	require.Error(t, err)
	assert.False(t, client.Store().Exists(artifact.HardNegativesFile))
}

func TestRunSurfacesTrainerFailure(t *testing.T) {
	cfg := testConfig(t, writeDataset(t))
	client, trainer := testClient(t, cfg)
	trainer.Fail = true

	err := client.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "train")
}

func TestRunVerifiesCheckpointPostcondition(t *testing.T) {
	cfg := testConfig(t, writeDataset(t))
	client, trainer := testClient(t, cfg)
	trainer.SkipCheckpoint = true

	err := client.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkpoint")
}

func TestNewClientRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, writeDataset(t))
	cfg.Pipeline.Steps = 0
	_, err := NewClient(cfg, nil)
	assert.Error(t, err)
}

func TestNewClientRejectsUnknownProviders(t *testing.T) {
	cfg := testConfig(t, writeDataset(t))
	cfg.Generator.Provider = "markov"
	_, err := NewClient(cfg, &Options{Teacher: scorer.NewMockClient()})
	assert.Error(t, err)

	cfg = testConfig(t, writeDataset(t))
	cfg.Teacher.Provider = "oracle"
	_, err = NewClient(cfg, &Options{Generator: qgen.NewMockGenerator()})
	assert.Error(t, err)
}

func TestStatusReportsArtifactsAndNextStage(t *testing.T) {
	cfg := testConfig(t, writeDataset(t))
	client, _ := testClient(t, cfg)

	status := client.Status()
	assert.Equal(t, StageEnsureCorpus, status.NextStage)
	for _, a := range status.Artifacts {
		assert.False(t, a.Exists, a.Name)
	}

	require.NoError(t, client.Run(context.Background()))

	status = client.Status()
	assert.Equal(t, StageDone, status.NextStage)
	assert.True(t, status.Checkpoint.Exists)
	byName := map[string]ArtifactInfo{}
	for _, a := range status.Artifacts {
		byName[a.Name] = a
		assert.True(t, a.Exists, a.Name)
	}
	assert.Equal(t, cfg.Pipeline.Steps*cfg.Pipeline.BatchSize, byName[artifact.TrainingDataFile].Rows)
}

func TestScenarioSmallEndToEnd(t *testing.T) {
	// A compact corpus, one query per passage, a rigged teacher, and a tiny
	// step budget: the persisted margins must be exactly the teacher's
	// score differences.
	cfg := testConfig(t, writeDataset(t))
	cfg.Pipeline.QueriesPerPassage = 1
	cfg.Pipeline.Steps = 2

	mock := scorer.NewMockClient()
	trainer := &train.StubTrainer{}
	client, err := NewClient(cfg, &Options{
		Generator: qgen.NewMockGenerator(),
		Teacher:   mock,
		Embedders: func(model string) (embedder.Client, error) {
			return embedder.NewMockClient(8), nil
		},
		Trainer: trainer,
	})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Run(context.Background()))

	labelPath, err := client.Store().Path(artifact.TrainingDataFile)
	require.NoError(t, err)
	labels, err := labeler.Load(labelPath)
	require.NoError(t, err)
	require.Len(t, labels, cfg.Pipeline.Steps*cfg.Pipeline.BatchSize)

	negPath, err := client.Store().Path(artifact.HardNegativesFile)
	require.NoError(t, err)
	mined, err := miner.Load(negPath)
	require.NoError(t, err)
	pools := make(map[string]map[string]bool)
	positives := make(map[string]string)
	for _, m := range mined {
		positives[m.QueryID] = m.PositiveID
		pools[m.QueryID] = make(map[string]bool)
		for _, n := range m.Negatives {
			pools[m.QueryID][n.PassageID] = true
		}
	}

	for i, row := range labels {
		assert.Equal(t, positives[row.QueryID], row.PositiveID, "row %d", i)
		assert.True(t, pools[row.QueryID][row.NegativeID], "row %d: negative must come from the mined pool", i)
		assert.NotEqual(t, row.PositiveID, row.NegativeID, "row %d", i)
	}
}
