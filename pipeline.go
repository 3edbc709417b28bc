package distillery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/soundprediction/distillery/pkg/artifact"
	"github.com/soundprediction/distillery/pkg/beir"
	"github.com/soundprediction/distillery/pkg/dataset"
	"github.com/soundprediction/distillery/pkg/eval"
	"github.com/soundprediction/distillery/pkg/labeler"
	"github.com/soundprediction/distillery/pkg/miner"
	"github.com/soundprediction/distillery/pkg/qgen"
	"github.com/soundprediction/distillery/pkg/retriever"
	"github.com/soundprediction/distillery/pkg/train"
	"github.com/soundprediction/distillery/pkg/types"
)

// Stage identifies one pipeline stage.
type Stage string

const (
	StageEnsureCorpus    Stage = "ensure_corpus"
	StageGenerateQueries Stage = "generate_queries"
	StageMineNegatives   Stage = "mine_negatives"
	StagePseudoLabel     Stage = "pseudo_label"
	StageTrain           Stage = "train"
	StageEvaluate        Stage = "evaluate"

	// StageDone means every required artifact exists.
	StageDone Stage = "done"
)

// StageState is the observed artifact set the stage decision is made from.
type StageState struct {
	CorpusExists     bool
	QueriesExist     bool
	QrelsExist       bool
	NegativesExist   bool
	LabelsExist      bool
	CheckpointExists bool

	EvaluationEnabled bool
	SummaryExists     bool
}

// Next is the pure stage-decision function: given an observed artifact set it
// returns the first stage whose output is missing. Stages are strictly
// sequential; generation requires both the queries file and the qrels file,
// so a run interrupted between the two writes re-runs the whole stage.
func (s StageState) Next() Stage {
	switch {
	case !s.CorpusExists:
		return StageEnsureCorpus
	case !s.QueriesExist || !s.QrelsExist:
		return StageGenerateQueries
	case !s.NegativesExist:
		return StageMineNegatives
	case !s.LabelsExist:
		return StagePseudoLabel
	case !s.CheckpointExists:
		return StageTrain
	case s.EvaluationEnabled && !s.SummaryExists:
		return StageEvaluate
	default:
		return StageDone
	}
}

// observe reads the current artifact set from disk.
func (c *Client) observe() StageState {
	prefix := c.cfg.Pipeline.Prefix
	_, summaryErr := os.Stat(c.summaryPath())
	return StageState{
		CorpusExists:      c.store.Exists(artifact.CorpusFile),
		QueriesExist:      c.store.Exists(artifact.QueriesFile(prefix)),
		QrelsExist:        c.store.Exists(artifact.QrelsDir(prefix)),
		NegativesExist:    c.store.Exists(artifact.HardNegativesFile),
		LabelsExist:       c.store.Exists(artifact.TrainingDataFile),
		CheckpointExists:  artifact.CheckpointExists(c.cfg.Student.OutputDir, c.cfg.Pipeline.Steps),
		EvaluationEnabled: c.cfg.Evaluation.Enabled,
		SummaryExists:     summaryErr == nil,
	}
}

// NextStage reports the stage a Run call would execute first.
func (c *Client) NextStage() Stage { return c.observe().Next() }

// Run executes all pending stages in order. Completed stages are skipped
// based on artifact existence, never re-run. When evaluation is requested,
// the evaluation dataset is validated up front so a malformed dataset fails
// the run before any expensive stage executes.
func (c *Client) Run(ctx context.Context) error {
	if c.cfg.Evaluation.Enabled {
		if err := beir.ValidateDataset(c.cfg.Data.EvaluationDir); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		stage := c.NextStage()
		if stage == StageDone {
			c.logger.Info("pipeline complete", "dir", c.store.Dir())
			return c.recorder.Flush()
		}

		c.logger.Info("running stage", "stage", string(stage))
		started := time.Now()
		rows, err := c.runStage(ctx, stage)
		c.recorder.Record(string(stage), started, rows, false, err)
		if err != nil {
			if flushErr := c.recorder.Flush(); flushErr != nil {
				c.logger.Warn("failed to flush telemetry", "error", flushErr)
			}
			return fmt.Errorf("stage %s failed: %w", stage, err)
		}
	}
}

// RunStage executes a single stage regardless of the stage-decision order.
// The stage still refuses to run if its inputs are missing.
func (c *Client) RunStage(ctx context.Context, stage Stage) error {
	started := time.Now()
	rows, err := c.runStage(ctx, stage)
	c.recorder.Record(string(stage), started, rows, false, err)
	if err != nil {
		return fmt.Errorf("stage %s failed: %w", stage, err)
	}
	return nil
}

func (c *Client) runStage(ctx context.Context, stage Stage) (int, error) {
	switch stage {
	case StageEnsureCorpus:
		return c.ensureCorpus()
	case StageGenerateQueries:
		return c.generateQueries(ctx)
	case StageMineNegatives:
		return c.mineNegatives(ctx)
	case StagePseudoLabel:
		return c.pseudoLabel(ctx)
	case StageTrain:
		return c.trainStudent(ctx)
	case StageEvaluate:
		return c.evaluate(ctx)
	default:
		return 0, fmt.Errorf("unknown stage %q", stage)
	}
}

// ensureCorpus copies the source corpus into the working directory, resized
// to a deterministic subset when data.corpus_size is set.
func (c *Client) ensureCorpus() (int, error) {
	if c.cfg.Data.EvaluationDir == "" {
		return 0, ErrMissingCorpus
	}

	corpus, err := beir.LoadCorpus(filepath.Join(c.cfg.Data.EvaluationDir, "corpus.jsonl"))
	if err != nil {
		return 0, err
	}
	if n := c.cfg.Data.CorpusSize; n > 0 {
		corpus, err = beir.Resize(corpus, n, c.cfg.Pipeline.Seed)
		if err != nil {
			return 0, err
		}
	}

	data, err := beir.MarshalCorpus(corpus)
	if err != nil {
		return 0, err
	}
	if err := c.store.WriteAtomic(artifact.CorpusFile, data); err != nil {
		return 0, err
	}
	c.logger.Info("corpus prepared", "passages", len(corpus))
	return len(corpus), nil
}

func (c *Client) generateQueries(ctx context.Context) (int, error) {
	corpus, err := c.loadCorpus()
	if err != nil {
		return 0, err
	}

	runner := qgen.NewRunner(c.generator, c.store, c.cfg.Pipeline.Prefix, c.cfg.Pipeline.QueriesPerPassage, c.logger)
	queries, _, err := runner.Run(ctx, corpus)
	if err != nil {
		return 0, err
	}
	return len(queries), nil
}

func (c *Client) mineNegatives(ctx context.Context) (int, error) {
	corpus, err := c.loadCorpus()
	if err != nil {
		return 0, err
	}
	queries, err := c.loadQueries()
	if err != nil {
		return 0, err
	}

	retrievers, err := retriever.NewResolver(c.embedders).Resolve(c.cfg.Pipeline.Retrievers)
	if err != nil {
		return 0, err
	}

	mined, err := miner.New(retrievers, c.cfg.Pipeline.MaxNegatives, c.store, c.logger).
		Run(ctx, queries, corpus)
	if err != nil {
		return 0, err
	}
	return len(mined), nil
}

func (c *Client) pseudoLabel(ctx context.Context) (int, error) {
	corpus, err := c.loadCorpus()
	if err != nil {
		return 0, err
	}
	queries, err := c.loadQueries()
	if err != nil {
		return 0, err
	}
	negPath, err := c.store.Path(artifact.HardNegativesFile)
	if err != nil {
		return 0, err
	}
	mined, err := miner.Load(negPath)
	if err != nil {
		return 0, err
	}

	p := c.cfg.Pipeline
	labels, err := labeler.New(c.teacher, p.Steps, p.BatchSize, p.Seed, c.store, c.logger).
		Run(ctx, queries, corpus, mined)
	if err != nil {
		return 0, err
	}
	return len(labels), nil
}

// trainStudent assembles the training example stream from the persisted
// labels, hands it to the trainer, and verifies the checkpoint
// postcondition.
func (c *Client) trainStudent(ctx context.Context) (int, error) {
	labelPath, err := c.store.Path(artifact.TrainingDataFile)
	if err != nil {
		return 0, err
	}
	labels, err := labeler.Load(labelPath)
	if err != nil {
		return 0, err
	}
	corpus, err := c.loadCorpus()
	if err != nil {
		return 0, err
	}
	queries, err := c.loadQueries()
	if err != nil {
		return 0, err
	}
	examples := dataset.Assemble(labels, queries, corpus, 1)

	cfg := train.Config{
		BaseModel:    c.cfg.Student.BaseModel,
		DataDir:      c.store.Dir(),
		LabelPath:    labelPath,
		OutputDir:    c.cfg.Student.OutputDir,
		Steps:        c.cfg.Pipeline.Steps,
		BatchSize:    c.cfg.Pipeline.BatchSize,
		Pooling:      c.cfg.Student.Pooling,
		MaxSeqLength: c.cfg.Student.MaxSeqLength,
		UseAMP:       c.cfg.Student.UseAMP,
	}
	if err := c.trainer.Train(ctx, cfg, examples); err != nil {
		return 0, err
	}
	if err := train.Verify(cfg); err != nil {
		return 0, err
	}
	return examples.Len(), nil
}

// evaluate scores the trained student on the held-out test split and writes
// the YAML summary.
func (c *Client) evaluate(ctx context.Context) (int, error) {
	dir := c.cfg.Data.EvaluationDir
	corpus, err := beir.LoadCorpus(filepath.Join(dir, "corpus.jsonl"))
	if err != nil {
		return 0, err
	}
	queries, err := beir.LoadQueries(filepath.Join(dir, "queries.jsonl"))
	if err != nil {
		return 0, err
	}
	qrels, err := beir.LoadQrels(filepath.Join(dir, "qrels", "test.tsv"))
	if err != nil {
		return 0, err
	}

	checkpoint := artifact.CheckpointDir(c.cfg.Student.OutputDir, c.cfg.Pipeline.Steps)
	encoder := c.student
	if encoder == nil {
		encoder, err = c.embedders(checkpoint)
		if err != nil {
			return 0, fmt.Errorf("failed to load trained model %s: %w", checkpoint, err)
		}
		defer encoder.Close()
	}

	metrics, err := eval.New(encoder, c.logger).Evaluate(ctx, corpus, queries, qrels)
	if err != nil {
		return 0, err
	}

	summary := eval.Summary{
		Model:       checkpoint,
		Dataset:     dir,
		EvaluatedAt: time.Now().UTC(),
		Metrics:     metrics,
	}
	if err := eval.WriteSummary(c.summaryPath(), summary); err != nil {
		return 0, err
	}
	return metrics.Queries, nil
}

func (c *Client) loadCorpus() (types.Corpus, error) {
	path, err := c.store.Path(artifact.CorpusFile)
	if err != nil {
		return nil, err
	}
	return beir.LoadCorpus(path)
}

// loadQueries reads the generated queries and backfills each query's
// positive passage from the qrels when the jsonl did not carry one.
func (c *Client) loadQueries() (types.QuerySet, error) {
	prefix := c.cfg.Pipeline.Prefix
	queriesPath, err := c.store.Path(artifact.QueriesFile(prefix))
	if err != nil {
		return nil, err
	}
	queries, err := beir.LoadQueries(queriesPath)
	if err != nil {
		return nil, err
	}

	qrelsPath, err := c.store.Path(artifact.QrelsFile(prefix))
	if err != nil {
		return nil, err
	}
	qrels, err := beir.LoadQrels(qrelsPath)
	if err != nil {
		return nil, err
	}

	for qid, q := range queries {
		if q.SourceID != "" {
			continue
		}
		var best string
		for did := range qrels[qid] {
			if best == "" || did < best {
				best = did
			}
		}
		q.SourceID = best
		queries[qid] = q
	}
	return queries, nil
}
