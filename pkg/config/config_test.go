package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadDefaults(t *testing.T) *Config {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := loadDefaults(t)

	assert.Equal(t, "qgen", cfg.Pipeline.Prefix)
	assert.Equal(t, 3, cfg.Pipeline.QueriesPerPassage)
	assert.Equal(t, 50, cfg.Pipeline.MaxNegatives)
	assert.Equal(t, 140000, cfg.Pipeline.Steps)
	assert.Equal(t, 32, cfg.Pipeline.BatchSize)
	assert.Len(t, cfg.Pipeline.Retrievers, 2)
	assert.Equal(t, "mean", cfg.Student.Pooling)
	assert.Equal(t, 350, cfg.Student.MaxSeqLength)
	assert.Equal(t, "distilbert-base-uncased", cfg.Student.BaseModel)
	assert.Equal(t, "cross-encoder/ms-marco-MiniLM-L6-v2", cfg.Teacher.Model)
	assert.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DISTILLERY_DATA_DIR", "/tmp/work")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := loadDefaults(t)
	assert.Equal(t, "/tmp/work", cfg.Data.WorkingDir)
	assert.Equal(t, "sk-test", cfg.Generator.APIKey)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty working dir", func(c *Config) { c.Data.WorkingDir = "" }},
		{"negative corpus size", func(c *Config) { c.Data.CorpusSize = -1 }},
		{"empty prefix", func(c *Config) { c.Pipeline.Prefix = "" }},
		{"prefix with separator", func(c *Config) { c.Pipeline.Prefix = "a/b" }},
		{"zero queries per passage", func(c *Config) { c.Pipeline.QueriesPerPassage = 0 }},
		{"no retrievers", func(c *Config) { c.Pipeline.Retrievers = nil }},
		{"zero max negatives", func(c *Config) { c.Pipeline.MaxNegatives = 0 }},
		{"zero steps", func(c *Config) { c.Pipeline.Steps = 0 }},
		{"negative batch size", func(c *Config) { c.Pipeline.BatchSize = -1 }},
		{"unknown pooling", func(c *Config) { c.Student.Pooling = "sum" }},
		{"zero max seq length", func(c *Config) { c.Student.MaxSeqLength = 0 }},
		{"eval without dataset", func(c *Config) { c.Evaluation.Enabled = true; c.Data.EvaluationDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadDefaults(t)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidatePoolingOptions(t *testing.T) {
	for _, pooling := range []string{"mean", "cls", "max"} {
		cfg := loadDefaults(t)
		cfg.Student.Pooling = pooling
		assert.NoError(t, cfg.Validate(), pooling)
	}
}
