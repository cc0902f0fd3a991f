package store

import (
	"context"
	"fmt"
)

// ReconcileResult reports the repairs a reconcile pass made.
type ReconcileResult struct {
	Reembedded int `json:"reembedded"`
	Removed    int `json:"removed"`
}

// Reconcile brings the vector index back in line with the metadata table:
// live rows with a missing or stale vector entry are re-embedded, and entries
// without a live row are removed. It repairs what a failed compensation left
// behind and is safe to run at any time.
func (s *HybridStore) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	rows, err := s.meta.all(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	live := make(map[string]bool, len(rows))
	res := &ReconcileResult{}

	for _, m := range rows {
		if m.Deleted() {
			continue
		}
		live[m.ID] = true

		entry, err := s.vec.get(ctx, m.ID)
		if err != nil {
			return res, fmt.Errorf("%w: %w", ErrStorageFailure, err)
		}
		if entry != nil && entry.Text == m.Content {
			continue
		}
		v, err := s.embed(ctx, m.Content)
		if err != nil {
			return res, err
		}
		if err := s.vec.upsert(ctx, vectorEntry{ID: m.ID, Vector: v, Text: m.Content}); err != nil {
			return res, fmt.Errorf("%w: %w", ErrStorageFailure, err)
		}
		s.log.Info().Str("id", m.ID).Bool("missing", entry == nil).Msg("vector re-embedded")
		res.Reembedded++
	}

	ids, err := s.vec.ids(ctx)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	for _, id := range ids {
		if live[id] {
			continue
		}
		if err := s.vec.remove(ctx, id); err != nil {
			return res, fmt.Errorf("%w: %w", ErrStorageFailure, err)
		}
		s.log.Info().Str("id", id).Msg("orphan vector removed")
		res.Removed++
	}
	return res, nil
}
