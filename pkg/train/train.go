// Package train defines the fine-tuning capability.
//
// The actual gradient loop lives outside this module. A Trainer consumes the
// training configuration, fine-tunes the student model on the persisted label
// file, and must leave a non-empty checkpoint directory at
// <output_dir>/<steps>/ as its postcondition. The pipeline verifies that
// postcondition after every Train call.
package train

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/soundprediction/distillery/pkg/artifact"
	"github.com/soundprediction/distillery/pkg/dataset"
)

// Config carries everything a trainer needs to run a fine-tuning job.
type Config struct {
	// BaseModel is the student model to fine-tune.
	BaseModel string

	// DataDir is the working directory holding the pipeline artifacts.
	DataDir string

	// LabelPath is the persisted training data file (qid, pos, neg,
	// score_pos, score_neg rows).
	LabelPath string

	// OutputDir receives the per-step-count checkpoint directory.
	OutputDir string

	Steps        int
	BatchSize    int
	Pooling      string
	MaxSeqLength int
	UseAMP       bool
}

// Trainer fine-tunes a student model on the assembled example stream.
// Implementations must create a non-empty directory at
// artifact.CheckpointDir(cfg.OutputDir, cfg.Steps) before returning nil.
// Implementations that shell out to an external program may ignore the
// stream and read cfg.LabelPath instead; the two carry the same rows in the
// same order.
type Trainer interface {
	Train(ctx context.Context, cfg Config, examples *dataset.Iterator) error
}

// CommandTrainer bridges to an external fine-tuning program via os/exec.
// The configuration is passed through the environment so any executable,
// regardless of language, can serve as the trainer.
type CommandTrainer struct {
	command string
	args    []string
	logger  *slog.Logger
}

// NewCommandTrainer returns a trainer that shells out to command with args.
func NewCommandTrainer(command string, args []string, logger *slog.Logger) *CommandTrainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandTrainer{command: command, args: args, logger: logger}
}

// Train implements Trainer. Stdout and stderr of the training process are
// inherited so its progress is visible in the pipeline's output.
func (t *CommandTrainer) Train(ctx context.Context, cfg Config, examples *dataset.Iterator) error {
	if t.command == "" {
		return fmt.Errorf("no training command configured")
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, t.command, t.args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(),
		"DISTILLERY_BASE_MODEL="+cfg.BaseModel,
		"DISTILLERY_DATA_DIR="+cfg.DataDir,
		"DISTILLERY_TRAIN_DATA="+cfg.LabelPath,
		"DISTILLERY_OUTPUT_DIR="+artifact.CheckpointDir(cfg.OutputDir, cfg.Steps),
		"DISTILLERY_STEPS="+strconv.Itoa(cfg.Steps),
		"DISTILLERY_BATCH_SIZE="+strconv.Itoa(cfg.BatchSize),
		"DISTILLERY_POOLING="+cfg.Pooling,
		"DISTILLERY_MAX_SEQ_LENGTH="+strconv.Itoa(cfg.MaxSeqLength),
		"DISTILLERY_USE_AMP="+strconv.FormatBool(cfg.UseAMP),
	)

	t.logger.Info("starting training process",
		"command", t.command,
		"steps", cfg.Steps,
		"base_model", cfg.BaseModel)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("training command failed: %w", err)
	}
	return nil
}

var _ Trainer = (*CommandTrainer)(nil)

// StubTrainer records its invocation, drains the example stream, and writes
// a minimal checkpoint. It exists for tests and dry runs where no real
// fine-tuning is wanted.
type StubTrainer struct {
	Calls    []Config
	Examples int
	Fail     bool

	// SkipCheckpoint leaves the postcondition unsatisfied, for tests of
	// checkpoint verification.
	SkipCheckpoint bool
}

// Train implements Trainer.
func (s *StubTrainer) Train(ctx context.Context, cfg Config, examples *dataset.Iterator) error {
	s.Calls = append(s.Calls, cfg)
	if s.Fail {
		return fmt.Errorf("training failed")
	}
	if examples != nil {
		for examples.Next() {
			s.Examples++
		}
		if err := examples.Err(); err != nil {
			return fmt.Errorf("bad training example: %w", err)
		}
	}
	if s.SkipCheckpoint {
		return nil
	}
	dir := artifact.CheckpointDir(cfg.OutputDir, cfg.Steps)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "model.txt"), []byte(cfg.BaseModel+"\n"), 0o644)
}

var _ Trainer = (*StubTrainer)(nil)

// Verify checks the checkpoint postcondition for a completed Train call.
func Verify(cfg Config) error {
	if !artifact.CheckpointExists(cfg.OutputDir, cfg.Steps) {
		return fmt.Errorf("trainer left no checkpoint at %s", artifact.CheckpointDir(cfg.OutputDir, cfg.Steps))
	}
	return nil
}
