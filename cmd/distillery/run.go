package distillery

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	distillery "github.com/soundprediction/distillery"
	"github.com/soundprediction/distillery/pkg/config"
	"github.com/soundprediction/distillery/pkg/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run all pending pipeline stages",
	Long: `Run the training-data pipeline: ensure_corpus, generate_queries,
mine_negatives, pseudo_label, train, and (when enabled) evaluate.

Stages whose artifact already exists in the working directory are skipped.
Delete an artifact to re-run the stages that depend on it.`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("data-dir", "", "Working directory for pipeline artifacts")
	runCmd.Flags().String("eval-dir", "", "BeIR dataset directory the corpus is copied from")
	runCmd.Flags().Int("corpus-size", 0, "Resize the corpus to this many passages (0 keeps all)")
	runCmd.Flags().String("prefix", "", "Artifact prefix for generated queries and qrels")
	runCmd.Flags().Int("queries-per-passage", 0, "Queries generated per corpus passage")
	runCmd.Flags().StringSlice("retrievers", nil, "Retrieval signals (bm25, dense:<model>)")
	runCmd.Flags().Int("max-negatives", 0, "Negative pool bound per query")
	runCmd.Flags().Int("steps", 0, "Training step count (also keys the checkpoint)")
	runCmd.Flags().Int("batch-size", 0, "Training batch size")
	runCmd.Flags().Int64("seed", 0, "Seed for all randomized draws")

	runCmd.Flags().String("generator-provider", "", "Query generator provider (openai, rustbert, mock)")
	runCmd.Flags().String("generator-model", "", "Query generator model")
	runCmd.Flags().String("teacher-provider", "", "Teacher scorer provider (crossencoder, embedding, mock)")
	runCmd.Flags().String("teacher-model", "", "Teacher scorer model")
	runCmd.Flags().String("teacher-cache", "", "Directory for the persistent score cache")

	runCmd.Flags().String("base-model", "", "Student model to fine-tune")
	runCmd.Flags().String("output-dir", "", "Directory receiving the per-step-count checkpoint")
	runCmd.Flags().String("trainer-command", "", "External fine-tuning executable")
	runCmd.Flags().Bool("evaluate", false, "Evaluate the trained model on the dataset's test split")
}

// bindRunFlags copies explicitly set flags over the loaded configuration.
func bindRunFlags(cmd *cobra.Command, cfg *config.Config) {
	set := map[string]func(){
		"data-dir":            func() { cfg.Data.WorkingDir, _ = cmd.Flags().GetString("data-dir") },
		"eval-dir":            func() { cfg.Data.EvaluationDir, _ = cmd.Flags().GetString("eval-dir") },
		"corpus-size":         func() { cfg.Data.CorpusSize, _ = cmd.Flags().GetInt("corpus-size") },
		"prefix":              func() { cfg.Pipeline.Prefix, _ = cmd.Flags().GetString("prefix") },
		"queries-per-passage": func() { cfg.Pipeline.QueriesPerPassage, _ = cmd.Flags().GetInt("queries-per-passage") },
		"retrievers":          func() { cfg.Pipeline.Retrievers, _ = cmd.Flags().GetStringSlice("retrievers") },
		"max-negatives":       func() { cfg.Pipeline.MaxNegatives, _ = cmd.Flags().GetInt("max-negatives") },
		"steps":               func() { cfg.Pipeline.Steps, _ = cmd.Flags().GetInt("steps") },
		"batch-size":          func() { cfg.Pipeline.BatchSize, _ = cmd.Flags().GetInt("batch-size") },
		"seed":                func() { cfg.Pipeline.Seed, _ = cmd.Flags().GetInt64("seed") },
		"generator-provider":  func() { cfg.Generator.Provider, _ = cmd.Flags().GetString("generator-provider") },
		"generator-model":     func() { cfg.Generator.Model, _ = cmd.Flags().GetString("generator-model") },
		"teacher-provider":    func() { cfg.Teacher.Provider, _ = cmd.Flags().GetString("teacher-provider") },
		"teacher-model":       func() { cfg.Teacher.Model, _ = cmd.Flags().GetString("teacher-model") },
		"teacher-cache":       func() { cfg.Teacher.CachePath, _ = cmd.Flags().GetString("teacher-cache") },
		"base-model":          func() { cfg.Student.BaseModel, _ = cmd.Flags().GetString("base-model") },
		"output-dir":          func() { cfg.Student.OutputDir, _ = cmd.Flags().GetString("output-dir") },
		"trainer-command":     func() { cfg.Student.Command, _ = cmd.Flags().GetString("trainer-command") },
		"evaluate":            func() { cfg.Evaluation.Enabled, _ = cmd.Flags().GetBool("evaluate") },
	}
	for name, apply := range set {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	bindRunFlags(cmd, cfg)

	log := logger.New(logger.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	slog.SetDefault(log)

	client, err := distillery.NewClient(cfg, &distillery.Options{Logger: log})
	if err != nil {
		return err
	}
	defer client.Close()

	return client.Run(cmd.Context())
}
