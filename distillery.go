package distillery

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/soundprediction/distillery/pkg/artifact"
	"github.com/soundprediction/distillery/pkg/config"
	"github.com/soundprediction/distillery/pkg/embedder"
	"github.com/soundprediction/distillery/pkg/qgen"
	"github.com/soundprediction/distillery/pkg/retriever"
	"github.com/soundprediction/distillery/pkg/scorer"
	"github.com/soundprediction/distillery/pkg/telemetry"
	"github.com/soundprediction/distillery/pkg/train"
)

var (
	// ErrMissingCorpus is returned when no corpus artifact exists and no
	// source dataset is configured to build one from.
	ErrMissingCorpus = errors.New("no corpus artifact and no data.evaluation_dir to copy from")
)

// Options overrides the capability clients the pipeline is wired with.
// Nil fields fall back to what the configuration specifies.
type Options struct {
	// Generator produces synthetic queries for corpus passages.
	Generator qgen.Generator

	// Teacher scores (query, passage) pairs for pseudo labeling.
	Teacher scorer.Client

	// Embedders builds embedding clients for dense retrieval signals and
	// the evaluation encoder.
	Embedders retriever.EmbedderFactory

	// Trainer runs the fine-tuning job.
	Trainer train.Trainer

	// Student, when set, is used as the evaluation encoder instead of
	// loading the trained checkpoint through Embedders.
	Student embedder.Client

	Logger   *slog.Logger
	Recorder *telemetry.Recorder
}

// Client runs the training-data pipeline over one working directory.
type Client struct {
	cfg       *config.Config
	store     *artifact.Store
	generator qgen.Generator
	teacher   scorer.Client
	embedders retriever.EmbedderFactory
	trainer   train.Trainer
	student   embedder.Client
	recorder  *telemetry.Recorder
	logger    *slog.Logger
}

// NewClient validates the configuration and wires the pipeline's capability
// clients. Configuration errors and unknown providers fail here, before any
// stage can run.
func NewClient(cfg *config.Config, opts *Options) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if opts == nil {
		opts = &Options{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := artifact.NewStore(cfg.Data.WorkingDir)
	if err != nil {
		return nil, err
	}

	embedders := opts.Embedders
	if embedders == nil {
		embedders = func(model string) (embedder.Client, error) {
			return embedder.NewEmbedEverythingClient(embedder.Config{Model: model})
		}
	}

	generator := opts.Generator
	if generator == nil {
		generator, err = newGenerator(cfg.Generator)
		if err != nil {
			return nil, err
		}
	}

	teacher := opts.Teacher
	if teacher == nil {
		teacher, err = newTeacher(cfg, embedders)
		if err != nil {
			return nil, err
		}
	}

	trainer := opts.Trainer
	if trainer == nil {
		trainer = train.NewCommandTrainer(cfg.Student.Command, cfg.Student.Args, logger)
	}

	recorder := opts.Recorder
	if recorder == nil {
		recorder, err = telemetry.NewRecorder(cfg.Telemetry.ParquetPath)
		if err != nil {
			return nil, err
		}
	}

	return &Client{
		cfg:       cfg,
		store:     store,
		generator: generator,
		teacher:   teacher,
		embedders: embedders,
		trainer:   trainer,
		student:   opts.Student,
		recorder:  recorder,
		logger:    logger,
	}, nil
}

// newGenerator builds the query generator named by the configuration.
func newGenerator(cfg config.GeneratorConfig) (qgen.Generator, error) {
	switch cfg.Provider {
	case "openai":
		return qgen.NewOpenAIGenerator(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "rustbert":
		return qgen.NewRustBertGenerator()
	case "mock":
		return qgen.NewMockGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
}

// newTeacher builds the pseudo-labeling scorer named by the configuration,
// layering the score cache, retries, and circuit breaker around it.
func newTeacher(cfg *config.Config, embedders retriever.EmbedderFactory) (scorer.Client, error) {
	var client scorer.Client
	var err error

	switch cfg.Teacher.Provider {
	case "crossencoder":
		client, err = scorer.NewEmbedEverythingClient(scorer.Config{
			Model:     cfg.Teacher.Model,
			BaseURL:   cfg.Teacher.BaseURL,
			BatchSize: cfg.Teacher.BatchSize,
		})
		if err != nil {
			return nil, err
		}
	case "embedding":
		emb, err := embedders(cfg.Teacher.Model)
		if err != nil {
			return nil, err
		}
		client = scorer.NewEmbeddingClient(emb)
	case "mock":
		client = scorer.NewMockClient()
	default:
		return nil, fmt.Errorf("unknown teacher provider %q", cfg.Teacher.Provider)
	}

	if cfg.Teacher.MaxRetries > 0 {
		retryCfg := scorer.DefaultRetryConfig()
		retryCfg.MaxRetries = cfg.Teacher.MaxRetries
		client = scorer.NewRetryClient(client, retryCfg)
	}
	if cfg.CircuitBreaker.Enabled {
		breakerCfg := scorer.DefaultBreakerConfig()
		breakerCfg.MaxRequests = cfg.CircuitBreaker.MaxRequests
		breakerCfg.ReadyToTripRatio = cfg.CircuitBreaker.ReadyToTripRatio
		client = scorer.NewBreakerClient(client, breakerCfg, "teacher")
	}
	if cfg.Teacher.CachePath != "" {
		client, err = scorer.NewCachedClient(client, cfg.Teacher.CachePath)
		if err != nil {
			return nil, err
		}
	}
	return client, nil
}

// Store exposes the artifact store, mainly for the status server.
func (c *Client) Store() *artifact.Store { return c.store }

// Config returns the configuration the client was built with.
func (c *Client) Config() *config.Config { return c.cfg }

// summaryPath resolves where the evaluation summary is written.
func (c *Client) summaryPath() string {
	if c.cfg.Evaluation.SummaryPath != "" {
		return c.cfg.Evaluation.SummaryPath
	}
	return filepath.Join(c.cfg.Data.WorkingDir, "evaluation.yaml")
}

// Close releases the capability clients and flushes telemetry.
func (c *Client) Close() error {
	var errs []error
	if c.generator != nil {
		errs = append(errs, c.generator.Close())
	}
	if c.teacher != nil {
		errs = append(errs, c.teacher.Close())
	}
	if c.student != nil {
		errs = append(errs, c.student.Close())
	}
	errs = append(errs, c.recorder.Flush())
	return errors.Join(errs...)
}
