package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/hybrid-memory/internal/embedding"
	"github.com/rcliao/hybrid-memory/internal/model"
)

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	s := env.store

	created, err := s.Create(ctx, CreateParams{
		Content:         "the user prefers dark mode",
		Category:        model.CategoryPreference,
		Confidence:      ptr(0.95),
		Importance:      ptr(0.7),
		DecayDays:       ptr(30),
		Tags:            []string{"ui", "theme"},
		SourceChannel:   "chat",
		SourceMessageID: "msg-1",
	})
	require.NoError(t, err)
	assert.Len(t, created.ID, 36)
	assert.Equal(t, env.clock.Now(), created.CreatedAt)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)
	assert.Equal(t, created.CreatedAt, created.LastAccessedAt)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, *created, *got)

	entry, err := env.vec.get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "the user prefers dark mode", entry.Text)
	assert.Len(t, entry.Vector, testDims)
}

func TestCreate_Defaults(t *testing.T) {
	s := newTestStore(t)
	m := mustCreate(t, s, CreateParams{Content: "plain fact"})

	assert.Equal(t, model.DefaultConfidence, m.Confidence)
	assert.Equal(t, model.DefaultImportance, m.Importance)
	assert.Nil(t, m.DecayDays)
	assert.Equal(t, []string{}, m.Tags)
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Create(ctx, CreateParams{Content: "  ", Category: model.CategoryFact})
	assert.ErrorIs(t, err, ErrMissingParameter)

	_, err = s.Create(ctx, CreateParams{Content: "x", Category: "opinion"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGet_NotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Get(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "00000000")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "")
	assert.ErrorIs(t, err, ErrMissingParameter)
}

func TestShortIDResolution(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := mustCreate(t, s, CreateParams{Content: "short ids work"})

	got, err := s.Get(ctx, m.ID[:ShortIDLength])
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)

	require.NoError(t, s.Delete(ctx, m.ID[:ShortIDLength], "via prefix"))
	got, err = s.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted())
	assert.Equal(t, "via prefix", got.DeleteReason)
}

func TestShortIDResolution_Ambiguous(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	base := env.clock.Now()

	older := &model.Memory{
		ID: "abcdef12-0000-4000-8000-000000000002", Content: "older", Category: model.CategoryFact,
		CreatedAt: base, UpdatedAt: base, LastAccessedAt: base,
	}
	newer := &model.Memory{
		ID: "abcdef12-0000-4000-8000-000000000001", Content: "newer", Category: model.CategoryFact,
		CreatedAt: base.Add(time.Second), UpdatedAt: base, LastAccessedAt: base,
	}
	require.NoError(t, env.meta.insert(ctx, newer))
	require.NoError(t, env.meta.insert(ctx, older))

	for i := 0; i < 3; i++ {
		got, err := env.store.Get(ctx, "abcdef12")
		require.NoError(t, err)
		assert.Equal(t, older.ID, got.ID)
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	s := env.store
	m := mustCreate(t, s, CreateParams{Content: "alpha beta", DecayDays: ptr(3)})

	env.clock.Advance(time.Second)
	updated, err := s.Update(ctx, m.ID[:ShortIDLength], UpdateParams{
		Content:    ptr("gamma delta"),
		Importance: ptr(0.9),
		ClearDecay: true,
		Tags:       []string{"edited"},
	})
	require.NoError(t, err)
	assert.Equal(t, "gamma delta", updated.Content)
	assert.Equal(t, 0.9, updated.Importance)
	assert.Nil(t, updated.DecayDays)
	assert.Equal(t, []string{"edited"}, updated.Tags)
	assert.Equal(t, m.CreatedAt, updated.CreatedAt)
	assert.True(t, updated.UpdatedAt.After(m.UpdatedAt))

	entry, err := env.vec.get(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "gamma delta", entry.Text)

	dups, err := s.FindDuplicates(ctx, "gamma delta", 0)
	require.NoError(t, err)
	require.Len(t, dups, 1)
	assert.Equal(t, m.ID, dups[0].ID)
}

func TestUpdate_MetadataOnlyKeepsVector(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	m := mustCreate(t, env.store, CreateParams{Content: "alpha beta"})
	before, err := env.vec.get(ctx, m.ID)
	require.NoError(t, err)

	_, err = env.store.Update(ctx, m.ID, UpdateParams{Confidence: ptr(0.1), Content: ptr("alpha beta")})
	require.NoError(t, err)

	after, err := env.vec.get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestUpdate_DeletedIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	m := mustCreate(t, s, CreateParams{Content: "gone soon"})
	require.NoError(t, s.Delete(ctx, m.ID, ""))

	_, err := s.Update(ctx, m.ID, UpdateParams{Importance: ptr(1.0)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate_ConcurrentDeleteDropsVector(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	m := mustCreate(t, env.store, CreateParams{Content: "alpha beta"})

	env.meta.beforeUpdate = func() {
		_, err := env.meta.metadataStore.softDelete(ctx, m.ID, env.clock.Now(), "raced")
		require.NoError(t, err)
	}
	_, err := env.store.Update(ctx, m.ID, UpdateParams{Content: ptr("gamma delta")})
	assert.ErrorIs(t, err, ErrNotFound)

	entry, err := env.vec.get(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestUpdate_RestoresVectorOnMetadataFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	m := mustCreate(t, env.store, CreateParams{Content: "alpha beta"})

	env.meta.updateErr = errInjected
	_, err := env.store.Update(ctx, m.ID, UpdateParams{Content: ptr("gamma delta")})
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.ErrorIs(t, err, errInjected)

	entry, err := env.vec.get(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "alpha beta", entry.Text)

	got, err := env.store.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha beta", got.Content)
}

func TestCreate_CompensatesOnMetadataFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	env.meta.insertErr = errInjected
	_, err := env.store.Create(ctx, CreateParams{Content: "never lands", Category: model.CategoryFact})
	assert.ErrorIs(t, err, ErrStorageFailure)
	assert.ErrorIs(t, err, errInjected)

	n, err := env.vec.count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "vector write must be rolled back")

	n, err = env.store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDelete_Idempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	s := env.store
	m := mustCreate(t, s, CreateParams{Content: "to be forgotten"})

	env.clock.Advance(time.Minute)
	require.NoError(t, s.Delete(ctx, m.ID, "obsolete"))
	first, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, first.DeletedAt)
	assert.Equal(t, env.clock.Now(), *first.DeletedAt)

	env.clock.Advance(time.Minute)
	require.NoError(t, s.Delete(ctx, m.ID, "again"))
	require.NoError(t, s.Delete(ctx, "ffffffff-ffff-ffff-ffff-ffffffffffff", ""))
	require.NoError(t, s.Delete(ctx, "ffffffff", ""))

	second, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, *first.DeletedAt, *second.DeletedAt, "second delete must not restamp")
	assert.Equal(t, "obsolete", second.DeleteReason)

	entry, err := env.vec.get(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, entry)

	results, err := s.Search(ctx, SearchParams{Query: "to be forgotten"})
	require.NoError(t, err)
	assert.Empty(t, results)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTouchMany(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	a := mustCreate(t, env.store, CreateParams{Content: "first"})
	b := mustCreate(t, env.store, CreateParams{Content: "second"})

	env.clock.Advance(time.Hour)
	require.NoError(t, env.store.TouchMany(ctx, []string{a.ID}))
	require.NoError(t, env.store.TouchMany(ctx, nil))

	gotA, err := env.store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, env.clock.Now(), gotA.LastAccessedAt)
	assert.Equal(t, a.UpdatedAt, gotA.UpdatedAt, "touch is not an update")

	gotB, err := env.store.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.LastAccessedAt, gotB.LastAccessedAt)
}

func TestList_SortByImportance(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	s := env.store

	for _, c := range []struct {
		category   model.Category
		importance float64
	}{
		{model.CategoryFact, 0.3},
		{model.CategoryPreference, 0.9},
		{model.CategoryFact, 0.6},
	} {
		mustCreate(t, s, CreateParams{Content: "memory", Category: c.category, Importance: ptr(c.importance)})
		env.clock.Advance(time.Millisecond)
	}

	res, err := s.List(ctx, ListParams{SortBy: "importance"})
	require.NoError(t, err)
	require.Len(t, res.Memories, 3)
	assert.Equal(t, 3, res.Total)

	var got []float64
	for _, m := range res.Memories {
		got = append(got, m.Importance)
	}
	assert.Equal(t, []float64{0.9, 0.6, 0.3}, got)
}

func TestList_Pagination(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	s := env.store
	for _, c := range []string{"one", "two", "three"} {
		mustCreate(t, s, CreateParams{Content: c})
	}

	page1, err := s.List(ctx, ListParams{Limit: 2, Offset: 0})
	require.NoError(t, err)
	page2, err := s.List(ctx, ListParams{Limit: 2, Offset: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, page1.Total)
	assert.Equal(t, 3, page2.Total)
	require.Len(t, page1.Memories, 2)
	require.Len(t, page2.Memories, 1)

	seen := map[string]bool{}
	for _, m := range append(page1.Memories, page2.Memories...) {
		assert.False(t, seen[m.ID], "row %s repeated", m.ID)
		seen[m.ID] = true
	}
	assert.Len(t, seen, 3)
}

func TestList_FiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	s := env.store

	a := mustCreate(t, s, CreateParams{Content: "a", Category: model.CategoryEvent})
	env.clock.Advance(time.Second)
	b := mustCreate(t, s, CreateParams{Content: "b", Category: model.CategoryEvent})
	env.clock.Advance(time.Second)
	mustCreate(t, s, CreateParams{Content: "c", Category: model.CategoryFact})
	deleted := mustCreate(t, s, CreateParams{Content: "d", Category: model.CategoryEvent})
	require.NoError(t, s.Delete(ctx, deleted.ID, ""))

	res, err := s.List(ctx, ListParams{Category: model.CategoryEvent, SortBy: "createdAt", Order: Asc})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	require.Len(t, res.Memories, 2)
	assert.Equal(t, a.ID, res.Memories[0].ID)
	assert.Equal(t, b.ID, res.Memories[1].ID)

	_, err = s.List(ctx, ListParams{SortBy: "priority"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = s.List(ctx, ListParams{Order: "sideways"})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	empty, err := s.List(ctx, ListParams{Category: model.CategoryEntity})
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.NotNil(t, empty.Memories)
}

func TestGetByCategory(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	s := env.store

	expiring := mustCreate(t, s, CreateParams{Content: "temp rule", Category: model.CategoryInstruction, Importance: ptr(1.0), DecayDays: ptr(1)})
	oldMid := mustCreate(t, s, CreateParams{Content: "rule one", Category: model.CategoryInstruction, Importance: ptr(0.5)})
	env.clock.Advance(time.Hour)
	high := mustCreate(t, s, CreateParams{Content: "rule two", Category: model.CategoryInstruction, Importance: ptr(0.9)})
	env.clock.Advance(time.Hour)
	newMid := mustCreate(t, s, CreateParams{Content: "rule three", Category: model.CategoryInstruction, Importance: ptr(0.5)})
	mustCreate(t, s, CreateParams{Content: "not a rule", Category: model.CategoryFact, Importance: ptr(1.0)})

	got, err := s.GetByCategory(ctx, model.CategoryInstruction, 0)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, expiring.ID, got[0].ID)

	env.clock.Advance(24 * time.Hour)
	got, err = s.GetByCategory(ctx, model.CategoryInstruction, 0)
	require.NoError(t, err)
	var order []string
	for _, m := range got {
		order = append(order, m.ID)
	}
	assert.Equal(t, []string{high.ID, newMid.ID, oldMid.ID}, order)

	got, err = s.GetByCategory(ctx, model.CategoryInstruction, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = s.GetByCategory(ctx, "rules", 5)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestProviderFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, failingEmbedder{err: errInjected})
	s := env.store

	_, err := s.Create(ctx, CreateParams{Content: "cannot embed", Category: model.CategoryFact})
	assert.ErrorIs(t, err, ErrProviderFailure)
	assert.ErrorIs(t, err, errInjected)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = env.vec.count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.Search(ctx, SearchParams{Query: "anything"})
	assert.ErrorIs(t, err, ErrProviderFailure)
	_, err = s.FindDuplicates(ctx, "anything", 0)
	assert.ErrorIs(t, err, ErrProviderFailure)

	results, err := s.Search(ctx, SearchParams{})
	require.NoError(t, err, "structured search needs no embedding")
	assert.Empty(t, results)
}

func TestOpen_Validation(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(Options{DBPath: filepath.Join(dir, "m.db"), VectorDir: filepath.Join(dir, "vectors")})
	assert.ErrorIs(t, err, ErrMissingParameter)

	_, err = Open(Options{Embedder: failingEmbedder{}, VectorDir: filepath.Join(dir, "vectors")})
	assert.ErrorIs(t, err, ErrMissingParameter)
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	opts := Options{
		DBPath:    filepath.Join(dir, "m.db"),
		VectorDir: filepath.Join(dir, "vectors"),
		Embedder:  embedding.NewHashEmbedder(testDims),
	}

	s, err := Open(opts)
	require.NoError(t, err)
	m := mustCreate(t, s, CreateParams{Content: "survives restart"})
	require.NoError(t, s.Close())

	s, err = Open(opts)
	require.NoError(t, err)
	defer s.Close()

	dups, err := s.FindDuplicates(ctx, "survives restart", 0)
	require.NoError(t, err)
	require.Len(t, dups, 1)
	assert.Equal(t, m.ID, dups[0].ID)
}
