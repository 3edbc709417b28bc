package distillery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	distillery "github.com/soundprediction/distillery"
	"github.com/soundprediction/distillery/pkg/config"
	"github.com/soundprediction/distillery/pkg/logger"
	"github.com/soundprediction/distillery/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pipeline status HTTP server",
	Long: `Start an HTTP server reporting the state of a pipeline working directory:
which artifacts exist, label-file statistics, and the next stage a run would
execute. The server is read-only; it never mutates artifacts.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "localhost", "Server host")
	serveCmd.Flags().Int("port", 8080, "Server port")
	serveCmd.Flags().String("mode", "release", "Server mode (debug, release, test)")
	serveCmd.Flags().String("data-dir", "", "Working directory for pipeline artifacts")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode, _ = cmd.Flags().GetString("mode")
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Data.WorkingDir, _ = cmd.Flags().GetString("data-dir")
	}

	log := logger.New(logger.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	slog.SetDefault(log)

	// The status server only reads artifacts, so wire the pipeline with
	// mock capabilities; no model is loaded just to serve status.
	client, err := distillery.NewClient(cfg, statusOnlyOptions(log))
	if err != nil {
		return err
	}
	defer client.Close()

	srv := server.New(cfg, client)
	srv.Setup()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}
