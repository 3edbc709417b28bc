package distillery

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	distillery "github.com/soundprediction/distillery"
	"github.com/soundprediction/distillery/pkg/config"
	"github.com/soundprediction/distillery/pkg/embedder"
	"github.com/soundprediction/distillery/pkg/qgen"
	"github.com/soundprediction/distillery/pkg/scorer"
	"github.com/soundprediction/distillery/pkg/train"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline progress for a working directory",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().String("data-dir", "", "Working directory for pipeline artifacts")
}

// statusOnlyOptions wires the pipeline with mock capabilities for commands
// that only inspect artifacts and must not load any model.
func statusOnlyOptions(log *slog.Logger) *distillery.Options {
	return &distillery.Options{
		Generator: qgen.NewMockGenerator(),
		Teacher:   scorer.NewMockClient(),
		Embedders: func(model string) (embedder.Client, error) {
			return embedder.NewMockClient(0), nil
		},
		Trainer: &train.StubTrainer{},
		Logger:  log,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Data.WorkingDir, _ = cmd.Flags().GetString("data-dir")
	}

	client, err := distillery.NewClient(cfg, statusOnlyOptions(slog.Default()))
	if err != nil {
		return err
	}
	defer client.Close()

	status := client.Status()
	fmt.Printf("Working directory: %s\n", status.WorkingDir)
	fmt.Printf("Next stage:        %s\n\n", status.NextStage)
	for _, a := range status.Artifacts {
		mark := " "
		if a.Exists {
			mark = "x"
		}
		fmt.Printf("  [%s] %-28s %d rows\n", mark, a.Name, a.Rows)
	}
	mark := " "
	if status.Checkpoint.Exists {
		mark = "x"
	}
	fmt.Printf("  [%s] checkpoint %s\n", mark, status.Checkpoint.Name)
	return nil
}
