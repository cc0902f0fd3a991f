package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/hybrid-memory/internal/embedding"
	"github.com/rcliao/hybrid-memory/internal/model"
)

const testDims = 64

// fakeClock is a settable clock shared by a test and its store.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingEmbedder always fails.
type failingEmbedder struct{ err error }

func (f failingEmbedder) Embed(context.Context, string) (embedding.Vector, error) { return nil, f.err }
func (f failingEmbedder) EmbedBatch(context.Context, []string) ([]embedding.Vector, error) {
	return nil, f.err
}
func (f failingEmbedder) Dims() int { return testDims }

// faultyMeta injects metadata write failures.
type faultyMeta struct {
	metadataStore
	insertErr error
	updateErr error
	// beforeUpdate runs ahead of each update, to stage a concurrent write.
	beforeUpdate func()
}

func (f *faultyMeta) insert(ctx context.Context, m *model.Memory) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.metadataStore.insert(ctx, m)
}

func (f *faultyMeta) update(ctx context.Context, id string, p metaPatch) (bool, error) {
	if f.beforeUpdate != nil {
		f.beforeUpdate()
	}
	if f.updateErr != nil {
		return false, f.updateErr
	}
	return f.metadataStore.update(ctx, id, p)
}

// faultyVec injects vector removal failures.
type faultyVec struct {
	vectorIndex
	removeErr error
}

func (f *faultyVec) remove(ctx context.Context, id string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.vectorIndex.remove(ctx, id)
}

var errInjected = errors.New("injected failure")

type testEnv struct {
	store *HybridStore
	meta  *faultyMeta
	vec   *faultyVec
	clock *fakeClock
}

func newTestEnv(t *testing.T, emb embedding.Provider) *testEnv {
	t.Helper()
	if emb == nil {
		emb = embedding.NewHashEmbedder(testDims)
	}
	dir := t.TempDir()
	sm, err := openSQLiteMeta(filepath.Join(dir, "test.db"))
	require.NoError(t, err)

	env := &testEnv{
		meta:  &faultyMeta{metadataStore: sm},
		vec:   &faultyVec{vectorIndex: newChromemIndex(filepath.Join(dir, "vectors"), emb.Dims(), zerolog.Nop())},
		clock: newFakeClock(),
	}
	env.store = newHybridStore(env.meta, env.vec, Options{
		Embedder: emb,
		Logger:   zerolog.Nop(),
		Now:      env.clock.Now,
	})
	t.Cleanup(func() { env.store.Close() })
	return env
}

func newTestStore(t *testing.T) *HybridStore {
	t.Helper()
	return newTestEnv(t, nil).store
}

func mustCreate(t *testing.T, s *HybridStore, p CreateParams) *model.Memory {
	t.Helper()
	if p.Category == "" {
		p.Category = model.CategoryFact
	}
	m, err := s.Create(context.Background(), p)
	require.NoError(t, err)
	return m
}

func ptr[T any](v T) *T { return &v }

func resultIDs(results []model.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}
