package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/hybrid-memory/internal/model"
)

const (
	// DefaultForgetThreshold is the score a single query match needs before
	// it is deleted without confirmation.
	DefaultForgetThreshold = 0.9
	// DefaultForgetCandidates caps the candidates returned for confirmation.
	DefaultForgetCandidates = 5

	// candidateFloor drops query matches too weak to offer as candidates.
	candidateFloor = 0.5
)

// ForgetParams selects a memory to forget by id or by free-text query.
type ForgetParams struct {
	ID            string
	Query         string
	Reason        string
	Threshold     float64
	MaxCandidates int
}

// ForgetResult holds either the deleted memory or the candidates a caller
// should confirm.
type ForgetResult struct {
	Deleted    *model.Memory        `json:"deleted,omitempty"`
	Candidates []model.SearchResult `json:"candidates,omitempty"`
}

// Forget deletes by id, or by query when the only plausible match is also a
// confident one. Any other query outcome returns candidates and deletes nothing.
// Short ids resolve against live memories only.
func (s *HybridStore) Forget(ctx context.Context, p ForgetParams) (*ForgetResult, error) {
	if p.ID != "" {
		id, err := s.resolve(ctx, p.ID, true)
		if err != nil {
			return nil, err
		}
		if id == "" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p.ID)
		}
		m, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if m.Deleted() {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p.ID)
		}
		if err := s.Delete(ctx, m.ID, p.Reason); err != nil {
			return nil, err
		}
		return &ForgetResult{Deleted: m}, nil
	}

	if strings.TrimSpace(p.Query) == "" {
		return nil, fmt.Errorf("%w: id or query", ErrMissingParameter)
	}
	threshold := p.Threshold
	if threshold <= 0 {
		threshold = DefaultForgetThreshold
	}
	maxCandidates := p.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = DefaultForgetCandidates
	}

	results, err := s.Search(ctx, SearchParams{Query: p.Query, Limit: maxCandidates})
	if err != nil {
		return nil, err
	}

	floor := min(candidateFloor, threshold)
	var confident, plausible []model.SearchResult
	for _, r := range results {
		if r.Score >= threshold {
			confident = append(confident, r)
		}
		if r.Score >= floor {
			plausible = append(plausible, r)
		}
	}

	if len(confident) == 1 && len(plausible) == 1 {
		m := confident[0].Memory
		if err := s.Delete(ctx, m.ID, p.Reason); err != nil {
			return nil, err
		}
		return &ForgetResult{Deleted: &m}, nil
	}
	if len(plausible) == 0 {
		return nil, fmt.Errorf("%w: no memory matches %q", ErrMissingParameter, p.Query)
	}
	return &ForgetResult{Candidates: plausible}, nil
}
