package store

import (
	"context"
	"fmt"
)

// Stats holds database statistics.
type Stats struct {
	DBPath          string          `json:"db_path"`
	DBSizeBytes     int64           `json:"db_size_bytes"`
	TotalMemories   int             `json:"total_memories"`
	LiveMemories    int             `json:"live_memories"`
	ExpiredMemories int             `json:"expired_memories"`
	DeletedMemories int             `json:"deleted_memories"`
	VectorEntries   int             `json:"vector_entries"`
	Categories      []CategoryStats `json:"categories"`
}

// CategoryStats holds the live count for one category.
type CategoryStats struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Stats returns row counts from the metadata table and the vector index size.
// VectorEntries differs from LiveMemories only when the stores have drifted.
func (s *HybridStore) Stats(ctx context.Context) (*Stats, error) {
	st, err := s.meta.stats(ctx, s.clock())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	n, err := s.vec.count(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	st.VectorEntries = n
	if st.Categories == nil {
		st.Categories = []CategoryStats{}
	}
	return st, nil
}
