// Package store provides the hybrid memory store: a SQLite metadata table and
// a chromem-go vector index kept consistent behind one entity API.
package store

import (
	"context"

	"github.com/rcliao/hybrid-memory/internal/model"
)

// ShortIDLength is the length of an id prefix accepted in place of a full id.
const ShortIDLength = 8

const (
	// DefaultSearchLimit applies when SearchParams.Limit is unset.
	DefaultSearchLimit = 10
	// DefaultListLimit applies when ListParams.Limit is unset.
	DefaultListLimit = 20
	// DefaultDuplicateThreshold is the similarity at or above which content
	// counts as a duplicate.
	DefaultDuplicateThreshold = 0.95

	// overFetch leaves room for structured filters to discard vector hits.
	overFetch = 2
)

// CreateParams holds parameters for storing a memory. Nil pointers take the
// column defaults.
type CreateParams struct {
	Content         string
	Category        model.Category
	Confidence      *float64
	Importance      *float64
	DecayDays       *int
	Tags            []string
	SourceChannel   string
	SourceMessageID string
	Supersedes      string
}

// UpdateParams holds the fields to change. Nil fields are left alone; a nil
// Tags slice keeps the tags while an empty non-nil slice clears them.
type UpdateParams struct {
	Content    *string
	Confidence *float64
	Importance *float64
	DecayDays  *int
	ClearDecay bool
	Tags       []string
}

// SearchParams holds parameters for a combined structured and semantic search.
type SearchParams struct {
	Query         string
	Category      model.Category
	MinConfidence *float64
	MinImportance *float64
	Tags          []string
	Limit         int
	// IncludeDecayed returns expired memories too.
	IncludeDecayed bool
}

// SortOrder is the direction of a listing.
type SortOrder string

const (
	Desc SortOrder = "desc"
	Asc  SortOrder = "asc"
)

// ListParams holds parameters for a paginated listing.
type ListParams struct {
	Category model.Category
	SortBy   string // a Memory attribute; default created_at
	Order    SortOrder
	Limit    int
	Offset   int
}

// ListResult is one page of a listing plus the total matching count.
type ListResult struct {
	Total    int            `json:"total"`
	Memories []model.Memory `json:"memories"`
}

// Store defines the hybrid memory store contract.
type Store interface {
	// Create embeds and stores a new memory in both stores.
	Create(ctx context.Context, p CreateParams) (*model.Memory, error)

	// Get looks up a memory by full id or 8-character prefix. Soft-deleted
	// and expired memories are returned too.
	Get(ctx context.Context, ref string) (*model.Memory, error)

	// Update changes a live memory, re-embedding only when content changes.
	Update(ctx context.Context, ref string, p UpdateParams) (*model.Memory, error)

	// Delete soft-deletes a live memory and drops its vector. Deleting an
	// unknown or already-deleted id succeeds.
	Delete(ctx context.Context, ref, reason string) error

	// Search runs a filtered, optionally semantic, query.
	Search(ctx context.Context, p SearchParams) ([]model.SearchResult, error)

	// FindDuplicates returns the nearest live memory when its score reaches
	// threshold. A threshold <= 0 uses the store default.
	FindDuplicates(ctx context.Context, content string, threshold float64) ([]model.SearchResult, error)

	// List returns a page of live memories.
	List(ctx context.Context, p ListParams) (*ListResult, error)

	// TouchMany sets last_accessed_at for the given ids.
	TouchMany(ctx context.Context, ids []string) error

	// Count returns the number of live memories.
	Count(ctx context.Context) (int, error)

	// GetByCategory returns live, unexpired memories of one category by
	// importance, then recency.
	GetByCategory(ctx context.Context, category model.Category, limit int) ([]model.Memory, error)

	// Close releases both underlying stores.
	Close() error
}
