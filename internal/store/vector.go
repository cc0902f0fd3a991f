package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"github.com/rs/zerolog"

	"github.com/rcliao/hybrid-memory/internal/embedding"
)

// VectorCollection is the name of the persisted collection holding memory vectors.
const VectorCollection = "memory_vectors"

// vectorEntry is one row of the vector index: a live memory's embedding and raw text.
type vectorEntry struct {
	ID     string
	Vector embedding.Vector
	Text   string
}

// vectorHit is a nearest-neighbour result, closest first.
type vectorHit struct {
	ID       string
	Distance float64
	Score    float64
}

// vectorIndex is the similarity half of the hybrid store.
type vectorIndex interface {
	upsert(ctx context.Context, e vectorEntry) error
	remove(ctx context.Context, id string) error
	// get returns nil, nil when the id has no entry.
	get(ctx context.Context, id string) (*vectorEntry, error)
	nearest(ctx context.Context, v embedding.Vector, k int) ([]vectorHit, error)
	count(ctx context.Context) (int, error)
	// ids lists every entry's id.
	ids(ctx context.Context) ([]string, error)
	close() error
}

// chromemIndex wraps a persistent chromem-go collection. The collection is
// opened on first use; concurrent first callers wait on the same attempt.
//
// chromem rejects queries for more results than the collection holds, so
// reads that size a query from Count hold rw shared and writes hold it
// exclusively. Otherwise a delete between Count and the query fails it.
type chromemIndex struct {
	dir  string
	dims int
	log  zerolog.Logger

	mu     sync.Mutex
	col    *chromem.Collection
	closed bool

	rw sync.RWMutex
}

func newChromemIndex(dir string, dims int, log zerolog.Logger) *chromemIndex {
	return &chromemIndex{dir: dir, dims: dims, log: log}
}

// refuseEmbed keeps chromem from falling back to its default remote embedder.
func refuseEmbed(context.Context, string) ([]float32, error) {
	return nil, errors.New("vector index only accepts precomputed embeddings")
}

func (x *chromemIndex) collection(ctx context.Context) (*chromem.Collection, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return nil, errors.New("vector index closed")
	}
	if x.col != nil {
		return x.col, nil
	}

	db, err := chromem.NewPersistentDB(x.dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	col, err := db.GetOrCreateCollection(VectorCollection,
		map[string]string{"dimensions": fmt.Sprint(x.dims)}, refuseEmbed)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}

	// A probe query stands in for a typed seed row: it fails when the stored
	// vectors have a different dimension than the configured provider.
	if col.Count() > 0 {
		probe := make([]float32, x.dims)
		probe[0] = 1
		if _, err := col.QueryEmbedding(ctx, probe, 1, nil, nil); err != nil {
			return nil, fmt.Errorf("vector dimension check (want %d): %w", x.dims, err)
		}
	}

	x.log.Debug().Str("dir", x.dir).Int("dims", x.dims).Int("entries", col.Count()).Msg("vector index opened")
	x.col = col
	return col, nil
}

func (x *chromemIndex) upsert(ctx context.Context, e vectorEntry) error {
	if len(e.Vector) != x.dims {
		return fmt.Errorf("vector has %d dims, index expects %d", len(e.Vector), x.dims)
	}
	col, err := x.collection(ctx)
	if err != nil {
		return err
	}
	x.rw.Lock()
	defer x.rw.Unlock()
	return col.AddDocument(ctx, chromem.Document{
		ID:        e.ID,
		Content:   e.Text,
		Embedding: e.Vector,
	})
}

func (x *chromemIndex) remove(ctx context.Context, id string) error {
	col, err := x.collection(ctx)
	if err != nil {
		return err
	}
	x.rw.Lock()
	defer x.rw.Unlock()
	if _, err := col.GetByID(ctx, id); err != nil {
		return nil
	}
	return col.Delete(ctx, nil, nil, id)
}

func (x *chromemIndex) get(ctx context.Context, id string) (*vectorEntry, error) {
	col, err := x.collection(ctx)
	if err != nil {
		return nil, err
	}
	// GetByID only fails for empty or unknown ids.
	doc, err := col.GetByID(ctx, id)
	if err != nil {
		return nil, nil
	}
	return &vectorEntry{ID: doc.ID, Vector: doc.Embedding, Text: doc.Content}, nil
}

func (x *chromemIndex) nearest(ctx context.Context, v embedding.Vector, k int) ([]vectorHit, error) {
	if len(v) != x.dims {
		return nil, fmt.Errorf("query vector has %d dims, index expects %d", len(v), x.dims)
	}
	col, err := x.collection(ctx)
	if err != nil {
		return nil, err
	}

	x.rw.RLock()
	defer x.rw.RUnlock()
	n := col.Count()
	if n == 0 || k <= 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}

	results, err := col.QueryEmbedding(ctx, v, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	hits := make([]vectorHit, len(results))
	for i, r := range results {
		d := l2FromCosine(float64(r.Similarity))
		hits[i] = vectorHit{ID: r.ID, Distance: d, Score: scoreFromDistance(d)}
	}
	return hits, nil
}

func (x *chromemIndex) count(ctx context.Context) (int, error) {
	col, err := x.collection(ctx)
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

// ids enumerates the collection by querying for all of it; chromem exposes no
// listing call.
func (x *chromemIndex) ids(ctx context.Context) ([]string, error) {
	col, err := x.collection(ctx)
	if err != nil {
		return nil, err
	}
	x.rw.RLock()
	defer x.rw.RUnlock()
	n := col.Count()
	if n == 0 {
		return nil, nil
	}
	probe := make([]float32, x.dims)
	probe[0] = 1
	results, err := col.QueryEmbedding(ctx, probe, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector scan: %w", err)
	}
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids, nil
}

// close drops the collection handle. chromem persists every write
// immediately, so there is nothing to flush.
func (x *chromemIndex) close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closed = true
	x.col = nil
	return nil
}
