package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Server configuration for the status API
	Server ServerConfig `mapstructure:"server"`

	// Data locations
	Data DataConfig `mapstructure:"data"`

	// Pipeline stage parameters
	Pipeline PipelineConfig `mapstructure:"pipeline"`

	// Generator is the query-generation model
	Generator GeneratorConfig `mapstructure:"generator"`

	// Teacher is the pseudo-labeling scorer
	Teacher TeacherConfig `mapstructure:"teacher"`

	// Student is the model being fine-tuned
	Student StudentConfig `mapstructure:"student"`

	// Evaluation configuration
	Evaluation EvaluationConfig `mapstructure:"evaluation"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// CircuitBreaker configuration for remote scorer calls
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds status server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// DataConfig holds dataset and working directory locations
type DataConfig struct {
	// EvaluationDir is a BeIR-layout dataset directory (corpus.jsonl,
	// queries.jsonl, qrels/). When set, the corpus is copied from it.
	EvaluationDir string `mapstructure:"evaluation_dir"`

	// WorkingDir holds all pipeline artifacts.
	WorkingDir string `mapstructure:"working_dir"`

	// CorpusSize, when positive, resizes the corpus to a deterministic
	// subset of this many passages.
	CorpusSize int `mapstructure:"corpus_size"`
}

// PipelineConfig holds the knobs of the data-generation stages
type PipelineConfig struct {
	Prefix            string   `mapstructure:"prefix"`
	QueriesPerPassage int      `mapstructure:"queries_per_passage"`
	Retrievers        []string `mapstructure:"retrievers"`
	MaxNegatives      int      `mapstructure:"max_negatives"`
	Steps             int      `mapstructure:"steps"`
	BatchSize         int      `mapstructure:"batch_size"`
	Seed              int64    `mapstructure:"seed"`
}

// GeneratorConfig holds configuration for the query generator
type GeneratorConfig struct {
	Provider string `mapstructure:"provider"` // openai, rustbert, mock
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

// TeacherConfig holds configuration for the pseudo-labeling scorer
type TeacherConfig struct {
	Provider   string `mapstructure:"provider"` // crossencoder, embedding, mock
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	BatchSize  int    `mapstructure:"batch_size"`
	CachePath  string `mapstructure:"cache_path"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// StudentConfig holds configuration for the model being fine-tuned
type StudentConfig struct {
	BaseModel    string   `mapstructure:"base_model"`
	OutputDir    string   `mapstructure:"output_dir"`
	Pooling      string   `mapstructure:"pooling"` // mean, cls, max
	MaxSeqLength int      `mapstructure:"max_seq_length"`
	UseAMP       bool     `mapstructure:"use_amp"`
	Command      string   `mapstructure:"command"` // external trainer executable
	Args         []string `mapstructure:"args"`
}

// EvaluationConfig holds configuration for the evaluation stage
type EvaluationConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	SummaryPath string `mapstructure:"summary_path"`
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	ParquetPath string `mapstructure:"parquet_path"`
}

// CircuitBreakerConfig holds configuration for circuit breaking
type CircuitBreakerConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"` // in seconds
	Timeout          int     `mapstructure:"timeout"`  // in seconds
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	overrideWithEnv(config)

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	// Server defaults
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")

	// Data defaults
	viper.SetDefault("data.working_dir", "./generated")
	viper.SetDefault("data.corpus_size", 0)

	// Pipeline defaults
	viper.SetDefault("pipeline.prefix", "qgen")
	viper.SetDefault("pipeline.queries_per_passage", 3)
	viper.SetDefault("pipeline.retrievers", []string{
		"dense:msmarco-distilbert-base-v3",
		"dense:msmarco-MiniLM-L-6-v3",
	})
	viper.SetDefault("pipeline.max_negatives", 50)
	viper.SetDefault("pipeline.steps", 140000)
	viper.SetDefault("pipeline.batch_size", 32)
	viper.SetDefault("pipeline.seed", 42)

	// Generator defaults
	viper.SetDefault("generator.provider", "rustbert")
	viper.SetDefault("generator.model", "BeIR/query-gen-msmarco-t5-base-v1")

	// Teacher defaults
	viper.SetDefault("teacher.provider", "crossencoder")
	viper.SetDefault("teacher.model", "cross-encoder/ms-marco-MiniLM-L6-v2")
	viper.SetDefault("teacher.batch_size", 32)
	viper.SetDefault("teacher.max_retries", 3)

	// Student defaults
	viper.SetDefault("student.base_model", "distilbert-base-uncased")
	viper.SetDefault("student.output_dir", "./output")
	viper.SetDefault("student.pooling", "mean")
	viper.SetDefault("student.max_seq_length", 350)
	viper.SetDefault("student.use_amp", false)

	// Evaluation defaults
	viper.SetDefault("evaluation.enabled", false)

	// Circuit breaker defaults
	viper.SetDefault("circuit_breaker.enabled", false)
	viper.SetDefault("circuit_breaker.max_requests", 1)
	viper.SetDefault("circuit_breaker.interval", 60)
	viper.SetDefault("circuit_breaker.timeout", 30)
	viper.SetDefault("circuit_breaker.ready_to_trip_ratio", 0.6)

	// Telemetry defaults
	home, err := os.UserHomeDir()
	if err == nil {
		viper.SetDefault("telemetry.parquet_path", fmt.Sprintf("%s/.distillery/telemetry", home))
	}
}

// overrideWithEnv overrides config with environment variables
func overrideWithEnv(config *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.Generator.APIKey = apiKey
	}

	if dir := os.Getenv("DISTILLERY_DATA_DIR"); dir != "" {
		config.Data.WorkingDir = dir
	}
	if dir := os.Getenv("DISTILLERY_EVAL_DIR"); dir != "" {
		config.Data.EvaluationDir = dir
	}
	if dir := os.Getenv("DISTILLERY_OUTPUT_DIR"); dir != "" {
		config.Student.OutputDir = dir
	}

	// Server settings
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		viper.Set("server.port", port)
	}

	// Telemetry settings
	if path := os.Getenv("TELEMETRY_PARQUET_PATH"); path != "" {
		config.Telemetry.ParquetPath = path
	}
}

// validPooling is the set of pooling strategies the trainer contract accepts.
var validPooling = map[string]bool{"mean": true, "cls": true, "max": true}

// Validate checks the configuration for errors that must abort the run
// before any stage executes.
func (c *Config) Validate() error {
	if c.Data.WorkingDir == "" {
		return fmt.Errorf("data.working_dir must be set")
	}
	if c.Data.CorpusSize < 0 {
		return fmt.Errorf("data.corpus_size must not be negative, got %d", c.Data.CorpusSize)
	}
	if c.Pipeline.Prefix == "" {
		return fmt.Errorf("pipeline.prefix must be set")
	}
	if strings.ContainsAny(c.Pipeline.Prefix, "/\\") {
		return fmt.Errorf("pipeline.prefix must not contain path separators: %q", c.Pipeline.Prefix)
	}
	if c.Pipeline.QueriesPerPassage <= 0 {
		return fmt.Errorf("pipeline.queries_per_passage must be positive, got %d", c.Pipeline.QueriesPerPassage)
	}
	if len(c.Pipeline.Retrievers) == 0 {
		return fmt.Errorf("pipeline.retrievers must name at least one retrieval signal")
	}
	if c.Pipeline.MaxNegatives <= 0 {
		return fmt.Errorf("pipeline.max_negatives must be positive, got %d", c.Pipeline.MaxNegatives)
	}
	if c.Pipeline.Steps <= 0 {
		return fmt.Errorf("pipeline.steps must be positive, got %d", c.Pipeline.Steps)
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be positive, got %d", c.Pipeline.BatchSize)
	}
	if !validPooling[c.Student.Pooling] {
		return fmt.Errorf("student.pooling must be one of mean, cls, max; got %q", c.Student.Pooling)
	}
	if c.Student.MaxSeqLength <= 0 {
		return fmt.Errorf("student.max_seq_length must be positive, got %d", c.Student.MaxSeqLength)
	}
	if c.Evaluation.Enabled && c.Data.EvaluationDir == "" {
		return fmt.Errorf("evaluation.enabled requires data.evaluation_dir")
	}
	return nil
}
