// Package config loads the memory engine configuration from defaults, an
// optional YAML file, and KABOT_-prefixed environment overrides, in that
// priority order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Vector    VectorConfig    `yaml:"vector"`
	LLM       LLMConfig       `yaml:"llm"`
	Search    SearchConfig    `yaml:"search"`
	Retention RetentionConfig `yaml:"retention"`
	Log       LogConfig       `yaml:"log"`
}

// DatabaseConfig locates the sqlite metadata store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EmbeddingConfig configures the embedding backend and its cache.
type EmbeddingConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheSize  int           `yaml:"cache_size"`
}

// VectorConfig configures the embedded vector index.
type VectorConfig struct {
	// Path enables on-disk persistence; empty keeps the index in memory.
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
}

// LLMConfig configures the chat backend used by the episodic extractor.
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// SearchConfig tunes the fusion and ranking pipeline.
type SearchConfig struct {
	Limit          int     `yaml:"limit"`
	DecayFloor     float64 `yaml:"decay_floor"`
	DecayTauDays   float64 `yaml:"decay_tau_days"`
	MMRLambda      float64 `yaml:"mmr_lambda"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	TopK           int     `yaml:"top_k"`
	MaxTokens      float64 `yaml:"max_tokens"`
}

// RetentionConfig bounds the store.
type RetentionConfig struct {
	MaxAgeDays int `yaml:"max_age_days"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level    string `yaml:"level"`    // debug, info, warn, error
	Encoding string `yaml:"encoding"` // json or console
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "kabot.db"},
		Embedding: EmbeddingConfig{
			BaseURL:    "http://localhost:11434/v1",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			Timeout:    30 * time.Second,
			CacheSize:  1000,
		},
		Vector: VectorConfig{Collection: "memory"},
		LLM: LLMConfig{
			BaseURL:     "http://localhost:11434/v1",
			Model:       "llama3.1",
			MaxTokens:   1024,
			Temperature: 0.2,
			Timeout:     60 * time.Second,
		},
		Search: SearchConfig{
			Limit:          10,
			DecayFloor:     0.6,
			DecayTauDays:   30,
			MMRLambda:      0.3,
			ScoreThreshold: 0.6,
			TopK:           3,
			MaxTokens:      500,
		},
		Retention: RetentionConfig{MaxAgeDays: 30},
		Log:       LogConfig{Level: "info", Encoding: "console"},
	}
}

// Load builds a Config from defaults, then the YAML file at path (skipped
// when path is empty or missing), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Missing file falls through to defaults + env.
		case err != nil:
			return nil, fmt.Errorf("read config %q: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %q: %w", path, err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("config: database.path is required")
	}
	if c.Search.DecayFloor < 0 || c.Search.DecayFloor > 1 {
		return fmt.Errorf("config: search.decay_floor must be in [0,1]")
	}
	if c.Search.MMRLambda < 0 || c.Search.MMRLambda > 1 {
		return fmt.Errorf("config: search.mmr_lambda must be in [0,1]")
	}
	if c.Retention.MaxAgeDays <= 0 {
		return fmt.Errorf("config: retention.max_age_days must be positive")
	}
	return nil
}

// BuildLogger constructs a zap logger per the Log section.
func (c *Config) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	if c.Log.Encoding == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setFloat := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	setString("KABOT_DATABASE_PATH", &cfg.Database.Path)
	setString("KABOT_EMBEDDING_BASE_URL", &cfg.Embedding.BaseURL)
	setString("KABOT_EMBEDDING_API_KEY", &cfg.Embedding.APIKey)
	setString("KABOT_EMBEDDING_MODEL", &cfg.Embedding.Model)
	setInt("KABOT_EMBEDDING_DIMENSIONS", &cfg.Embedding.Dimensions)
	setInt("KABOT_EMBEDDING_CACHE_SIZE", &cfg.Embedding.CacheSize)
	setString("KABOT_VECTOR_PATH", &cfg.Vector.Path)
	setString("KABOT_VECTOR_COLLECTION", &cfg.Vector.Collection)
	setString("KABOT_LLM_BASE_URL", &cfg.LLM.BaseURL)
	setString("KABOT_LLM_API_KEY", &cfg.LLM.APIKey)
	setString("KABOT_LLM_MODEL", &cfg.LLM.Model)
	setInt("KABOT_SEARCH_LIMIT", &cfg.Search.Limit)
	setFloat("KABOT_SEARCH_SCORE_THRESHOLD", &cfg.Search.ScoreThreshold)
	setInt("KABOT_SEARCH_TOP_K", &cfg.Search.TopK)
	setFloat("KABOT_SEARCH_MAX_TOKENS", &cfg.Search.MaxTokens)
	setInt("KABOT_RETENTION_MAX_AGE_DAYS", &cfg.Retention.MaxAgeDays)
	setString("KABOT_LOG_LEVEL", &cfg.Log.Level)
	setString("KABOT_LOG_ENCODING", &cfg.Log.Encoding)
}
