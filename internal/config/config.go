// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable name, e.g. AGENT_MEMORY_DB.
const Prefix = "AGENT_MEMORY"

// Config holds the configuration for the memory store and its CLI.
type Config struct {
	// DB is the SQLite metadata file. Default: ~/.agent-memory/memory.db
	DB string `envconfig:"DB"`
	// VectorDir holds the persistent vector collection. Default: <dir of DB>/vectors
	VectorDir string `envconfig:"VECTOR_DIR"`

	// Embedding provider: hash | ollama | openai
	EmbedProvider  string `envconfig:"EMBED_PROVIDER" default:"hash"`
	EmbedModel     string `envconfig:"EMBED_MODEL"`
	EmbedURL       string `envconfig:"EMBED_URL"`
	EmbedDims      int    `envconfig:"EMBED_DIMS"`
	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY"`
	EmbedCacheSize int64  `envconfig:"EMBED_CACHE_SIZE" default:"10000"`

	// Policy knobs for the duplicate gate and delete-by-query.
	DuplicateThreshold float64 `envconfig:"DUPLICATE_THRESHOLD" default:"0.95"`
	ForgetThreshold    float64 `envconfig:"FORGET_THRESHOLD" default:"0.9"`
	ForgetCandidates   int     `envconfig:"FORGET_CANDIDATES" default:"5"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"warn"`
}

// Load parses AGENT_MEMORY_* variables and resolves derived defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ResolveDefaults fills derived paths and validates thresholds.
func (c *Config) ResolveDefaults() error {
	if c.DB == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		c.DB = filepath.Join(home, ".agent-memory", "memory.db")
	}
	if c.VectorDir == "" {
		c.VectorDir = filepath.Join(filepath.Dir(c.DB), "vectors")
	}
	if c.OpenAIAPIKey == "" {
		c.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}

	switch c.EmbedProvider {
	case "hash", "ollama", "openai":
	default:
		return fmt.Errorf("unsupported EMBED_PROVIDER: %q", c.EmbedProvider)
	}
	if c.DuplicateThreshold < 0 || c.DuplicateThreshold > 1 {
		return fmt.Errorf("DUPLICATE_THRESHOLD must be in [0,1], got %v", c.DuplicateThreshold)
	}
	if c.ForgetThreshold < 0 || c.ForgetThreshold > 1 {
		return fmt.Errorf("FORGET_THRESHOLD must be in [0,1], got %v", c.ForgetThreshold)
	}
	if c.ForgetCandidates <= 0 {
		c.ForgetCandidates = 5
	}
	return nil
}

// WithDB overrides the metadata path; the vector dir follows unless set explicitly.
func (c *Config) WithDB(path string) {
	if path == "" || path == c.DB {
		return
	}
	if c.VectorDir == filepath.Join(filepath.Dir(c.DB), "vectors") {
		c.VectorDir = filepath.Join(filepath.Dir(path), "vectors")
	}
	c.DB = path
}
