package store

import (
	"context"
	"fmt"

	"github.com/rcliao/hybrid-memory/internal/model"
)

// ImportResult reports what an import did.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// ExportAll returns every memory, soft-deleted ones included, oldest first.
func (s *HybridStore) ExportAll(ctx context.Context) ([]model.Memory, error) {
	memories, err := s.meta.all(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	if memories == nil {
		memories = []model.Memory{}
	}
	return memories, nil
}

// Import stores the live memories of an export under fresh ids, keeping their
// original creation time. Soft-deleted entries are skipped, as are entries the
// duplicate gate catches unless force is set. Contents are embedded in one
// batch before anything is written.
func (s *HybridStore) Import(ctx context.Context, memories []model.Memory, force bool) (*ImportResult, error) {
	res := &ImportResult{}

	var pending []model.Memory
	for _, m := range memories {
		if m.Deleted() {
			res.Skipped++
			continue
		}
		p := createParamsOf(m)
		if err := validateCreate(p); err != nil {
			return res, fmt.Errorf("import %s: %w", m.ID, err)
		}
		pending = append(pending, m)
	}
	if len(pending) == 0 {
		return res, nil
	}

	texts := make([]string, len(pending))
	for i, m := range pending {
		texts[i] = m.Content
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrProviderFailure, err)
	}
	if len(vectors) != len(pending) {
		return res, fmt.Errorf("%w: got %d vectors for %d texts", ErrProviderFailure, len(vectors), len(pending))
	}

	for i, m := range pending {
		if !force {
			dups, err := s.duplicatesOf(ctx, vectors[i], 0)
			if err != nil {
				return res, err
			}
			if len(dups) > 0 {
				s.log.Debug().Str("source_id", m.ID).Str("duplicate_of", dups[0].ID).Msg("import skipped duplicate")
				res.Skipped++
				continue
			}
		}
		if _, err := s.createWithVector(ctx, createParamsOf(m), vectors[i], m.CreatedAt); err != nil {
			return res, fmt.Errorf("import %s: %w", m.ID, err)
		}
		res.Imported++
	}
	return res, nil
}

// createParamsOf maps an exported memory back to create input. A zero
// confidence or importance is read as absent and takes the default, since
// hand-written import files often omit both.
func createParamsOf(m model.Memory) CreateParams {
	return CreateParams{
		Content:         m.Content,
		Category:        m.Category,
		Confidence:      nonZero(m.Confidence),
		Importance:      nonZero(m.Importance),
		DecayDays:       m.DecayDays,
		Tags:            m.Tags,
		SourceChannel:   m.SourceChannel,
		SourceMessageID: m.SourceMessageID,
		Supersedes:      m.Supersedes,
	}
}

func nonZero(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}
