package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rcliao/hybrid-memory/internal/embedding"
	"github.com/rcliao/hybrid-memory/internal/model"
)

// Options configures a HybridStore.
type Options struct {
	// DBPath is the SQLite metadata file.
	DBPath string
	// VectorDir is the directory of the persistent vector collection.
	VectorDir string
	// Embedder computes vectors. Its Dims fixes the index dimension.
	Embedder embedding.Provider
	Logger   zerolog.Logger
	// DuplicateThreshold defaults to DefaultDuplicateThreshold.
	DuplicateThreshold float64
	// Now overrides the clock; used by tests.
	Now func() time.Time
}

// HybridStore implements Store over a metadata store and a vector index.
//
// Writes go to the vector index first and the metadata table second; a failed
// metadata write is compensated by undoing the vector write. Concurrent
// mutations of the same id are not serialized.
type HybridStore struct {
	meta         metadataStore
	vec          vectorIndex
	embedder     embedding.Provider
	log          zerolog.Logger
	dupThreshold float64
	now          func() time.Time
}

var _ Store = (*HybridStore)(nil)

// Open opens (or creates) the metadata database and prepares the vector
// index, which is opened lazily on first use.
func Open(opts Options) (*HybridStore, error) {
	if opts.Embedder == nil {
		return nil, fmt.Errorf("%w: embedder", ErrMissingParameter)
	}
	if opts.Embedder.Dims() <= 0 {
		return nil, fmt.Errorf("%w: embedder reports %d dims", ErrInvalidArgument, opts.Embedder.Dims())
	}
	if opts.DBPath == "" || opts.VectorDir == "" {
		return nil, fmt.Errorf("%w: db path and vector dir are required", ErrMissingParameter)
	}

	meta, err := openSQLiteMeta(opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	vec := newChromemIndex(opts.VectorDir, opts.Embedder.Dims(), opts.Logger)
	return newHybridStore(meta, vec, opts), nil
}

func newHybridStore(meta metadataStore, vec vectorIndex, opts Options) *HybridStore {
	s := &HybridStore{
		meta:         meta,
		vec:          vec,
		embedder:     opts.Embedder,
		log:          opts.Logger,
		dupThreshold: opts.DuplicateThreshold,
		now:          opts.Now,
	}
	if s.dupThreshold <= 0 {
		s.dupThreshold = DefaultDuplicateThreshold
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// clock returns the current time truncated to the millisecond precision the
// metadata table stores.
func (s *HybridStore) clock() time.Time {
	return time.UnixMilli(s.now().UnixMilli()).UTC()
}

func (s *HybridStore) embed(ctx context.Context, text string) (embedding.Vector, error) {
	v, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderFailure, err)
	}
	return v, nil
}

func (s *HybridStore) Create(ctx context.Context, p CreateParams) (*model.Memory, error) {
	if err := validateCreate(p); err != nil {
		return nil, err
	}
	vec, err := s.embed(ctx, p.Content)
	if err != nil {
		return nil, err
	}
	return s.createWithVector(ctx, p, vec, time.Time{})
}

func validateCreate(p CreateParams) error {
	if strings.TrimSpace(p.Content) == "" {
		return fmt.Errorf("%w: content", ErrMissingParameter)
	}
	if !p.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, p.Category)
	}
	return nil
}

// createWithVector stores p with a precomputed vector. A non-zero createdAt
// keeps the original creation instant of an imported memory.
func (s *HybridStore) createWithVector(ctx context.Context, p CreateParams, vec embedding.Vector, createdAt time.Time) (*model.Memory, error) {
	now := s.clock()
	if createdAt.IsZero() {
		createdAt = now
	}
	m := &model.Memory{
		ID:              uuid.NewString(),
		Content:         p.Content,
		Category:        p.Category,
		Confidence:      model.DefaultConfidence,
		Importance:      model.DefaultImportance,
		CreatedAt:       time.UnixMilli(createdAt.UnixMilli()).UTC(),
		UpdatedAt:       now,
		LastAccessedAt:  now,
		DecayDays:       p.DecayDays,
		SourceChannel:   p.SourceChannel,
		SourceMessageID: p.SourceMessageID,
		Tags:            p.Tags,
		Supersedes:      p.Supersedes,
	}
	if p.Confidence != nil {
		m.Confidence = *p.Confidence
	}
	if p.Importance != nil {
		m.Importance = *p.Importance
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}

	if err := s.vec.upsert(ctx, vectorEntry{ID: m.ID, Vector: vec, Text: m.Content}); err != nil {
		return nil, fmt.Errorf("%w: write vector: %w", ErrStorageFailure, err)
	}
	if err := s.meta.insert(ctx, m); err != nil {
		if cerr := s.vec.remove(ctx, m.ID); cerr != nil {
			s.integrityIssue("create", m.ID, err, cerr)
		}
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}

	s.log.Debug().Str("id", m.ID).Str("category", string(m.Category)).Msg("memory created")
	return m, nil
}

// resolve maps a short id to a full id. Full ids pass through untouched; an
// unmatched short id yields "".
func (s *HybridStore) resolve(ctx context.Context, ref string, liveOnly bool) (string, error) {
	if len(ref) != ShortIDLength {
		return ref, nil
	}
	id, err := s.meta.resolvePrefix(ctx, ref, liveOnly)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	return id, nil
}

func (s *HybridStore) Get(ctx context.Context, ref string) (*model.Memory, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: id", ErrMissingParameter)
	}
	id, err := s.resolve(ctx, ref, false)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	m, err := s.meta.get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return m, nil
}

func (s *HybridStore) Update(ctx context.Context, ref string, p UpdateParams) (*model.Memory, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: id", ErrMissingParameter)
	}
	if p.Content != nil && strings.TrimSpace(*p.Content) == "" {
		return nil, fmt.Errorf("%w: content", ErrMissingParameter)
	}

	id, err := s.resolve(ctx, ref, true)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	current, err := s.meta.get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	if current == nil || current.Deleted() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}

	// Re-embed only on a real content change; keep the old entry so a failed
	// metadata write can put it back.
	var previous *vectorEntry
	reembedded := false
	if p.Content != nil && *p.Content != current.Content {
		vec, err := s.embed(ctx, *p.Content)
		if err != nil {
			return nil, err
		}
		previous, err = s.vec.get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: read vector: %w", ErrStorageFailure, err)
		}
		if err := s.vec.upsert(ctx, vectorEntry{ID: id, Vector: vec, Text: *p.Content}); err != nil {
			return nil, fmt.Errorf("%w: write vector: %w", ErrStorageFailure, err)
		}
		reembedded = true
	}

	ok, err := s.meta.update(ctx, id, metaPatch{
		Content:    p.Content,
		Confidence: p.Confidence,
		Importance: p.Importance,
		DecayDays:  p.DecayDays,
		ClearDecay: p.ClearDecay,
		Tags:       p.Tags,
		UpdatedAt:  s.clock(),
	})
	if err != nil {
		if reembedded {
			s.restoreVector(ctx, id, previous, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	if !ok {
		// Deleted between the read and the write; a dead row keeps no vector.
		if reembedded {
			if cerr := s.vec.remove(ctx, id); cerr != nil {
				s.integrityIssue("update", id, ErrNotFound, cerr)
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}

	updated, err := s.meta.get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return updated, nil
}

func (s *HybridStore) restoreVector(ctx context.Context, id string, previous *vectorEntry, cause error) {
	var cerr error
	if previous != nil {
		cerr = s.vec.upsert(ctx, *previous)
	} else {
		cerr = s.vec.remove(ctx, id)
	}
	if cerr != nil {
		s.integrityIssue("update", id, cause, cerr)
	}
}

func (s *HybridStore) Delete(ctx context.Context, ref, reason string) error {
	if ref == "" {
		return fmt.Errorf("%w: id", ErrMissingParameter)
	}
	id, err := s.resolve(ctx, ref, true)
	if err != nil {
		return err
	}
	if id == "" {
		return nil
	}

	deleted, err := s.meta.softDelete(ctx, id, s.clock(), reason)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	// Remove unconditionally: it also sweeps a vector left behind by an
	// earlier delete whose second half failed.
	if err := s.vec.remove(ctx, id); err != nil {
		s.integrityIssue("delete", id, nil, err)
		return fmt.Errorf("%w: remove vector: %w", ErrStorageFailure, err)
	}
	if deleted {
		s.log.Debug().Str("id", id).Str("reason", reason).Msg("memory deleted")
	}
	return nil
}

func (s *HybridStore) TouchMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.meta.touch(ctx, ids, s.clock()); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	return nil
}

func (s *HybridStore) Count(ctx context.Context) (int, error) {
	n, err := s.meta.countLive(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	return n, nil
}

// sortColumns maps accepted sort keys to metadata columns.
var sortColumns = map[string]string{
	"id":                "id",
	"content":           "content",
	"category":          "category",
	"confidence":        "confidence",
	"importance":        "importance",
	"createdAt":         "created_at",
	"created_at":        "created_at",
	"updatedAt":         "updated_at",
	"updated_at":        "updated_at",
	"lastAccessedAt":    "last_accessed_at",
	"last_accessed_at":  "last_accessed_at",
	"decayDays":         "decay_days",
	"decay_days":        "decay_days",
	"sourceChannel":     "source_channel",
	"source_channel":    "source_channel",
	"sourceMessageId":   "source_message_id",
	"source_message_id": "source_message_id",
	"tags":              "tags",
	"supersedes":        "supersedes",
}

func (s *HybridStore) List(ctx context.Context, p ListParams) (*ListResult, error) {
	sortBy := p.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	col, ok := sortColumns[sortBy]
	if !ok {
		return nil, fmt.Errorf("%w: unknown sort key %q", ErrInvalidArgument, p.SortBy)
	}
	var desc bool
	switch p.Order {
	case "", Desc:
		desc = true
	case Asc:
	default:
		return nil, fmt.Errorf("%w: unknown sort order %q", ErrInvalidArgument, p.Order)
	}
	if p.Category != "" && !p.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, p.Category)
	}
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}

	total, memories, err := s.meta.list(ctx, metaPage{
		Category: p.Category,
		OrderBy:  col,
		Desc:     desc,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	if memories == nil {
		memories = []model.Memory{}
	}
	return &ListResult{Total: total, Memories: memories}, nil
}

func (s *HybridStore) GetByCategory(ctx context.Context, category model.Category, limit int) ([]model.Memory, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, category)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	_, memories, err := s.meta.list(ctx, metaPage{
		Category:   category,
		OrderBy:    "importance",
		Desc:       true,
		ByRecency:  true,
		Limit:      limit,
		Now:        s.clock(),
		OnlyActive: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	return memories, nil
}

// Close releases the vector index and the metadata database.
func (s *HybridStore) Close() error {
	return errors.Join(s.vec.close(), s.meta.close())
}

// integrityIssue logs a cross-store inconsistency that compensation could not
// repair. Reconcile fixes these after the fact.
func (s *HybridStore) integrityIssue(op, id string, cause, compensation error) {
	ev := s.log.Error().Stack().
		Bool("integrity_issue", true).
		Str("op", op).
		Str("id", id).
		Err(compensation)
	if cause != nil {
		ev = ev.AnErr("cause", cause)
	}
	ev.Msg("compensation failed; stores disagree")
}
