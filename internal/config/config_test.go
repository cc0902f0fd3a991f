package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".agent-memory", "memory.db"), cfg.DB)
	assert.Equal(t, filepath.Join(home, ".agent-memory", "vectors"), cfg.VectorDir)
	assert.Equal(t, "hash", cfg.EmbedProvider)
	assert.Equal(t, 0.95, cfg.DuplicateThreshold)
	assert.Equal(t, 0.9, cfg.ForgetThreshold)
	assert.Equal(t, 5, cfg.ForgetCandidates)
	assert.Equal(t, int64(10000), cfg.EmbedCacheSize)
}

func TestLoad_FromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AGENT_MEMORY_DB", filepath.Join(dir, "m.db"))
	t.Setenv("AGENT_MEMORY_EMBED_PROVIDER", "openai")
	t.Setenv("AGENT_MEMORY_DUPLICATE_THRESHOLD", "0.9")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "m.db"), cfg.DB)
	assert.Equal(t, filepath.Join(dir, "vectors"), cfg.VectorDir)
	assert.Equal(t, "openai", cfg.EmbedProvider)
	assert.Equal(t, 0.9, cfg.DuplicateThreshold)
	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
}

func TestLoad_RejectsUnknownProvider(t *testing.T) {
	t.Setenv("AGENT_MEMORY_DB", filepath.Join(t.TempDir(), "m.db"))
	t.Setenv("AGENT_MEMORY_EMBED_PROVIDER", "word2vec")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_RejectsBadThreshold(t *testing.T) {
	t.Setenv("AGENT_MEMORY_DB", filepath.Join(t.TempDir(), "m.db"))
	t.Setenv("AGENT_MEMORY_DUPLICATE_THRESHOLD", "1.5")

	_, err := Load()
	require.Error(t, err)
}

func TestWithDB_MovesDerivedVectorDir(t *testing.T) {
	cfg := &Config{DB: "/a/memory.db", VectorDir: "/a/vectors"}
	cfg.WithDB("/b/other.db")
	assert.Equal(t, "/b/other.db", cfg.DB)
	assert.Equal(t, "/b/vectors", cfg.VectorDir)

	cfg = &Config{DB: "/a/memory.db", VectorDir: "/custom"}
	cfg.WithDB("/b/other.db")
	assert.Equal(t, "/custom", cfg.VectorDir)
}
