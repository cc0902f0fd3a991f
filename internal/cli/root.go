// Package cli implements the hybrid-memory CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rcliao/hybrid-memory/internal/config"
	"github.com/rcliao/hybrid-memory/internal/embedding"
	"github.com/rcliao/hybrid-memory/internal/logger"
	"github.com/rcliao/hybrid-memory/internal/store"
)

const serviceName = "hybrid-memory"

var (
	dbPath     string
	formatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "hybrid-memory",
	Short: "Persistent memory for AI agents",
	Long: "A CLI for persistent agent memory. SQLite holds the metadata, a local vector " +
		"index holds the embeddings, and every command keeps the two in step.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $AGENT_MEMORY_DB or ~/.agent-memory/memory.db)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

// session is an open store plus the configuration it was opened with.
type session struct {
	*store.HybridStore
	cfg *config.Config
	log zerolog.Logger
	emb embedding.Provider
}

// Close closes the store and releases the embedding cache.
func (s *session) Close() error {
	err := s.HybridStore.Close()
	if c, ok := s.emb.(*embedding.CachedProvider); ok {
		c.Close()
	}
	return err
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.WithDB(dbPath)
	return cfg, nil
}

func openStore() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.New(serviceName, cfg.LogLevel)

	emb, err := embedding.New(embedding.Options{
		Provider:  cfg.EmbedProvider,
		Model:     cfg.EmbedModel,
		BaseURL:   cfg.EmbedURL,
		APIKey:    cfg.OpenAIAPIKey,
		Dims:      cfg.EmbedDims,
		CacheSize: cfg.EmbedCacheSize,
	})
	if err != nil {
		return nil, err
	}

	s, err := store.Open(store.Options{
		DBPath:             cfg.DB,
		VectorDir:          cfg.VectorDir,
		Embedder:           emb,
		Logger:             log,
		DuplicateThreshold: cfg.DuplicateThreshold,
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("db", cfg.DB).Str("vectors", cfg.VectorDir).Str("provider", cfg.EmbedProvider).Msg("store opened")
	return &session{HybridStore: s, cfg: cfg, log: log, emb: emb}, nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
