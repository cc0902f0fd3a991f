package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rcliao/hybrid-memory/internal/model"
)

// metadataStore is the relational half of the hybrid store. It owns the
// canonical lifecycle fields.
type metadataStore interface {
	insert(ctx context.Context, m *model.Memory) error
	get(ctx context.Context, id string) (*model.Memory, error)
	resolvePrefix(ctx context.Context, prefix string, liveOnly bool) (string, error)
	update(ctx context.Context, id string, p metaPatch) (bool, error)
	softDelete(ctx context.Context, id string, at time.Time, reason string) (bool, error)
	query(ctx context.Context, f metaFilter) ([]model.Memory, error)
	list(ctx context.Context, p metaPage) (int, []model.Memory, error)
	touch(ctx context.Context, ids []string, at time.Time) error
	countLive(ctx context.Context) (int, error)
	all(ctx context.Context) ([]model.Memory, error)
	stats(ctx context.Context, now time.Time) (*Stats, error)
	close() error
}

// sqliteMeta implements metadataStore using SQLite.
type sqliteMeta struct {
	db   *sql.DB
	path string
}

const memoryColumns = `id, content, category, confidence, importance,
	created_at, updated_at, last_accessed_at, decay_days,
	source_channel, source_message_id, tags, supersedes, deleted_at, delete_reason`

// decayedExpr is true for rows whose decay window has elapsed at the bound time.
const decayedExpr = `(decay_days IS NOT NULL AND created_at + decay_days * 86400000 <= ?)`

// openSQLiteMeta opens or creates a SQLite database at the given path.
func openSQLiteMeta(dbPath string) (*sqliteMeta, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &sqliteMeta{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *sqliteMeta) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id                TEXT PRIMARY KEY,
		content           TEXT NOT NULL,
		category          TEXT NOT NULL,
		confidence        REAL NOT NULL DEFAULT 0.8,
		importance        REAL NOT NULL DEFAULT 0.5,
		created_at        INTEGER NOT NULL,
		updated_at        INTEGER NOT NULL,
		last_accessed_at  INTEGER NOT NULL,
		decay_days        INTEGER,
		source_channel    TEXT,
		source_message_id TEXT,
		tags              TEXT NOT NULL DEFAULT '[]',
		supersedes        TEXT,
		deleted_at        INTEGER,
		delete_reason     TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_memories_category ON memories(category);
	CREATE INDEX IF NOT EXISTS idx_memories_confidence ON memories(confidence);
	CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories(importance);
	CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);
	CREATE INDEX IF NOT EXISTS idx_memories_deleted ON memories(deleted_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *sqliteMeta) insert(ctx context.Context, m *model.Memory) error {
	tags, err := encodeTags(m.Tags)
	if err != nil {
		return err
	}
	var decay *int64
	if m.DecayDays != nil {
		d := int64(*m.DecayDays)
		decay = &d
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memories (`+memoryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL)`,
		m.ID, m.Content, string(m.Category), m.Confidence, m.Importance,
		m.CreatedAt.UnixMilli(), m.UpdatedAt.UnixMilli(), m.LastAccessedAt.UnixMilli(), decay,
		nullString(m.SourceChannel), nullString(m.SourceMessageID), tags, nullString(m.Supersedes))
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// get returns nil, nil when no row has the id.
func (s *sqliteMeta) get(ctx context.Context, id string) (*model.Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// resolvePrefix returns the oldest id starting with prefix, or "" when none.
func (s *sqliteMeta) resolvePrefix(ctx context.Context, prefix string, liveOnly bool) (string, error) {
	query := `SELECT id FROM memories WHERE substr(id, 1, ?) = ?`
	if liveOnly {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY created_at ASC, id ASC LIMIT 1`

	var id string
	err := s.db.QueryRowContext(ctx, query, len(prefix), prefix).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve prefix: %w", err)
	}
	return id, nil
}

// metaPatch stages column updates. Nil fields are left unchanged.
type metaPatch struct {
	Content    *string
	Confidence *float64
	Importance *float64
	DecayDays  *int
	ClearDecay bool
	Tags       []string
	UpdatedAt  time.Time
}

// update applies p to a live row and reports whether one matched.
func (s *sqliteMeta) update(ctx context.Context, id string, p metaPatch) (bool, error) {
	sets := []string{"updated_at = ?"}
	args := []interface{}{p.UpdatedAt.UnixMilli()}

	if p.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *p.Content)
	}
	if p.Confidence != nil {
		sets = append(sets, "confidence = ?")
		args = append(args, *p.Confidence)
	}
	if p.Importance != nil {
		sets = append(sets, "importance = ?")
		args = append(args, *p.Importance)
	}
	if p.ClearDecay {
		sets = append(sets, "decay_days = NULL")
	} else if p.DecayDays != nil {
		sets = append(sets, "decay_days = ?")
		args = append(args, *p.DecayDays)
	}
	if p.Tags != nil {
		tags, err := encodeTags(p.Tags)
		if err != nil {
			return false, err
		}
		sets = append(sets, "tags = ?")
		args = append(args, tags)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET `+strings.Join(sets, ", ")+` WHERE id = ? AND deleted_at IS NULL`, args...)
	if err != nil {
		return false, fmt.Errorf("update memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// softDelete marks a live row deleted. Already-deleted rows keep their
// original deleted_at and delete_reason.
func (s *sqliteMeta) softDelete(ctx context.Context, id string, at time.Time, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET deleted_at = ?, delete_reason = ? WHERE id = ? AND deleted_at IS NULL`,
		at.UnixMilli(), nullString(reason), id)
	if err != nil {
		return false, fmt.Errorf("soft delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// metaFilter is the structured half of a search. Soft-deleted rows are
// always excluded.
type metaFilter struct {
	IDs            []string
	RestrictIDs    bool
	Category       model.Category
	MinConfidence  *float64
	MinImportance  *float64
	Tags           []string
	ExcludeDecayed bool
	Now            time.Time
	Limit          int // 0 means unbounded
}

func (f metaFilter) where() (string, []interface{}) {
	where := []string{"deleted_at IS NULL"}
	var args []interface{}

	if f.RestrictIDs {
		if len(f.IDs) == 0 {
			where = append(where, "0")
		} else {
			where = append(where, "id IN ("+placeholders(len(f.IDs))+")")
			for _, id := range f.IDs {
				args = append(args, id)
			}
		}
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.MinConfidence != nil {
		where = append(where, "confidence >= ?")
		args = append(args, *f.MinConfidence)
	}
	if f.MinImportance != nil {
		where = append(where, "importance >= ?")
		args = append(args, *f.MinImportance)
	}
	// Tags match exactly and case-sensitively.
	for _, tag := range f.Tags {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(memories.tags) WHERE json_each.value = ?)")
		args = append(args, tag)
	}
	if f.ExcludeDecayed {
		where = append(where, "NOT "+decayedExpr)
		args = append(args, f.Now.UnixMilli())
	}
	return strings.Join(where, " AND "), args
}

func (s *sqliteMeta) query(ctx context.Context, f metaFilter) ([]model.Memory, error) {
	where, args := f.where()
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE ` + where + ` ORDER BY created_at DESC, id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return s.queryMemories(ctx, query, args...)
}

// metaPage describes one page of an ordered listing.
type metaPage struct {
	Category   model.Category
	OrderBy    string // a column from sortColumns
	Desc       bool
	Limit      int
	Offset     int
	Now        time.Time
	OnlyActive bool // also drop decayed rows
	ByRecency  bool // secondary order created_at DESC before id
}

func (s *sqliteMeta) list(ctx context.Context, p metaPage) (int, []model.Memory, error) {
	f := metaFilter{Category: p.Category, ExcludeDecayed: p.OnlyActive, Now: p.Now}
	where, args := f.where()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE `+where, args...).Scan(&total); err != nil {
		return 0, nil, fmt.Errorf("count memories: %w", err)
	}

	dir := "ASC"
	if p.Desc {
		dir = "DESC"
	}
	order := p.OrderBy + " " + dir
	if p.ByRecency {
		order += ", created_at DESC"
	}
	order += ", id ASC"

	query := `SELECT ` + memoryColumns + ` FROM memories WHERE ` + where + ` ORDER BY ` + order + ` LIMIT ? OFFSET ?`
	args = append(args, p.Limit, p.Offset)
	memories, err := s.queryMemories(ctx, query, args...)
	if err != nil {
		return 0, nil, err
	}
	return total, memories, nil
}

func (s *sqliteMeta) touch(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := []interface{}{at.UnixMilli()}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE memories SET last_accessed_at = ? WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return fmt.Errorf("touch memories: %w", err)
	}
	return nil
}

func (s *sqliteMeta) countLive(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE deleted_at IS NULL`).Scan(&n)
	return n, err
}

// all returns every row, soft-deleted included, oldest first.
func (s *sqliteMeta) all(ctx context.Context) ([]model.Memory, error) {
	return s.queryMemories(ctx, `SELECT `+memoryColumns+` FROM memories ORDER BY created_at ASC, id ASC`)
}

func (s *sqliteMeta) stats(ctx context.Context, now time.Time) (*Stats, error) {
	st := &Stats{DBPath: s.path}

	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN deleted_at IS NULL THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN deleted_at IS NULL AND `+decayedExpr+` THEN 1 ELSE 0 END), 0)
		FROM memories`, now.UnixMilli()).Scan(&st.TotalMemories, &st.LiveMemories, &st.ExpiredMemories)
	if err != nil {
		return nil, fmt.Errorf("count memories: %w", err)
	}
	st.DeletedMemories = st.TotalMemories - st.LiveMemories

	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*) AS cnt
		FROM memories WHERE deleted_at IS NULL
		GROUP BY category ORDER BY cnt DESC, category ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c CategoryStats
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, err
		}
		st.Categories = append(st.Categories, c)
	}
	return st, rows.Err()
}

func (s *sqliteMeta) close() error {
	return s.db.Close()
}

func (s *sqliteMeta) queryMemories(ctx context.Context, query string, args ...interface{}) ([]model.Memory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanMemory decodes one row in memoryColumns order. Rows that violate the
// schema (unknown category, malformed tags) are rejected.
func scanMemory(row scanner) (model.Memory, error) {
	var m model.Memory
	var category, tags string
	var createdAt, updatedAt, lastAccessed int64
	var decay, deletedAt sql.NullInt64
	var sourceChannel, sourceMessage, supersedes, deleteReason sql.NullString

	err := row.Scan(
		&m.ID, &m.Content, &category, &m.Confidence, &m.Importance,
		&createdAt, &updatedAt, &lastAccessed, &decay,
		&sourceChannel, &sourceMessage, &tags, &supersedes, &deletedAt, &deleteReason,
	)
	if err != nil {
		return m, err
	}

	if m.ID == "" {
		return m, fmt.Errorf("decode memory: empty id")
	}
	m.Category = model.Category(category)
	if !m.Category.Valid() {
		return m, fmt.Errorf("decode memory %s: unknown category %q", m.ID, category)
	}
	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
		return m, fmt.Errorf("decode memory %s: tags: %w", m.ID, err)
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}

	m.CreatedAt = time.UnixMilli(createdAt).UTC()
	m.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	m.LastAccessedAt = time.UnixMilli(lastAccessed).UTC()
	if decay.Valid {
		d := int(decay.Int64)
		m.DecayDays = &d
	}
	m.SourceChannel = sourceChannel.String
	m.SourceMessageID = sourceMessage.String
	m.Supersedes = supersedes.String
	if deletedAt.Valid {
		t := time.UnixMilli(deletedAt.Int64).UTC()
		m.DeletedAt = &t
	}
	m.DeleteReason = deleteReason.String

	return m, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tags); err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
