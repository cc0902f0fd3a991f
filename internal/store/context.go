package store

import (
	"context"
	"math"
	"sort"
	"unicode/utf8"

	"github.com/rcliao/hybrid-memory/internal/model"
)

// DefaultContextBudget is the token budget used when ContextParams.Budget is unset.
const DefaultContextBudget = 4000

// contextCandidates is how many search results are scored for packing.
const contextCandidates = 50

// ContextParams holds parameters for context assembly.
type ContextParams struct {
	Query    string
	Category model.Category
	Tags     []string
	Budget   int // max tokens in output (rough proxy: 1 token ≈ 4 chars)
}

// ContextMemory is a scored memory for context output.
type ContextMemory struct {
	ID       string         `json:"id"`
	Category model.Category `json:"category"`
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Excerpt  bool           `json:"excerpt,omitempty"`
}

// ContextResult is the assembled context response.
type ContextResult struct {
	Budget   int             `json:"budget"`
	Used     int             `json:"used"`
	Memories []ContextMemory `json:"memories"`
}

// Context assembles the most useful live memories that fit in a token budget
// and touches the ones it returns.
func (s *HybridStore) Context(ctx context.Context, p ContextParams) (*ContextResult, error) {
	budget := p.Budget
	if budget <= 0 {
		budget = DefaultContextBudget
	}
	charBudget := budget * 4

	results, err := s.Search(ctx, SearchParams{
		Query:    p.Query,
		Category: p.Category,
		Tags:     p.Tags,
		Limit:    contextCandidates,
	})
	if err != nil {
		return nil, err
	}
	result := &ContextResult{Budget: budget, Memories: []ContextMemory{}}
	if len(results) == 0 {
		return result, nil
	}

	now := s.clock()
	type scored struct {
		memory model.Memory
		score  float64
	}
	candidates := make([]scored, 0, len(results))
	for _, r := range results {
		// Recency: exponential decay, roughly a 7-day half-life.
		age := now.Sub(r.CreatedAt).Hours() / 24.0
		recency := math.Exp(-0.1 * age)

		score := r.Score*0.4 + recency*0.2 + r.Importance*0.2 + r.Confidence*0.2
		candidates = append(candidates, scored{memory: r.Memory, score: score})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	used := 0
	var touched []string
	for _, c := range candidates {
		contentLen := len(c.memory.Content)
		if used+contentLen <= charBudget {
			result.Memories = append(result.Memories, ContextMemory{
				ID:       c.memory.ID,
				Category: c.memory.Category,
				Content:  c.memory.Content,
				Score:    math.Round(c.score*100) / 100,
			})
			used += contentLen
			touched = append(touched, c.memory.ID)
			continue
		}
		if remaining := charBudget - used; remaining >= 100 {
			excerpt := truncateBytes(c.memory.Content, remaining) + "..."
			result.Memories = append(result.Memories, ContextMemory{
				ID:       c.memory.ID,
				Category: c.memory.Category,
				Content:  excerpt,
				Score:    math.Round(c.score*100) / 100,
				Excerpt:  true,
			})
			used += len(excerpt)
			touched = append(touched, c.memory.ID)
		}
		break
	}
	result.Used = used / 4

	if err := s.TouchMany(ctx, touched); err != nil {
		return nil, err
	}
	return result, nil
}

// truncateBytes cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
