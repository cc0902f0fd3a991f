package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/hybrid-memory/internal/model"
)

// Search combines a vector lookup with the structured filter. Without a query
// it degrades to a filtered listing, newest first, with every score 1.0.
func (s *HybridStore) Search(ctx context.Context, p SearchParams) ([]model.SearchResult, error) {
	if p.Category != "" && !p.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, p.Category)
	}
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	f := metaFilter{
		Category:       p.Category,
		MinConfidence:  p.MinConfidence,
		MinImportance:  p.MinImportance,
		Tags:           p.Tags,
		ExcludeDecayed: !p.IncludeDecayed,
		Now:            s.clock(),
	}

	query := strings.TrimSpace(p.Query)
	if query == "" {
		f.Limit = limit
		rows, err := s.meta.query(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
		}
		results := make([]model.SearchResult, len(rows))
		for i, m := range rows {
			results[i] = model.SearchResult{Memory: m, Score: 1.0}
		}
		return results, nil
	}

	qv, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.vec.nearest(ctx, qv, limit*overFetch)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	if len(hits) == 0 {
		return []model.SearchResult{}, nil
	}

	f.RestrictIDs = true
	f.IDs = make([]string, len(hits))
	for i, h := range hits {
		f.IDs[i] = h.ID
	}
	rows, err := s.meta.query(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}

	score := make(map[string]float64, len(hits))
	for _, h := range hits {
		score[h.ID] = h.Score
	}
	results := make([]model.SearchResult, len(rows))
	for i, m := range rows {
		results[i] = model.SearchResult{Memory: m, Score: score[m.ID]}
	}
	orderByRank(results, hits)
	if dropped := len(hits) - len(rows); dropped > 0 {
		s.log.Debug().Int("hits", len(hits)).Int("dropped", dropped).Msg("vector hits filtered out")
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// FindDuplicates is the dedup gate callers run before Create.
func (s *HybridStore) FindDuplicates(ctx context.Context, content string, threshold float64) ([]model.SearchResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content", ErrMissingParameter)
	}
	v, err := s.embed(ctx, content)
	if err != nil {
		return nil, err
	}
	return s.duplicatesOf(ctx, v, threshold)
}

func (s *HybridStore) duplicatesOf(ctx context.Context, v []float32, threshold float64) ([]model.SearchResult, error) {
	if threshold <= 0 {
		threshold = s.dupThreshold
	}
	hits, err := s.vec.nearest(ctx, v, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	if len(hits) == 0 || hits[0].Score < threshold {
		return []model.SearchResult{}, nil
	}

	m, err := s.meta.get(ctx, hits[0].ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	if m == nil || m.Deleted() {
		s.log.Debug().Str("id", hits[0].ID).Msg("nearest duplicate has no live row")
		return []model.SearchResult{}, nil
	}
	return []model.SearchResult{{Memory: *m, Score: hits[0].Score}}, nil
}
