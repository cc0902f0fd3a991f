// Package model defines the core memory data types.
package model

import "time"

// MillisPerDay is the length of one decay day in milliseconds.
const MillisPerDay int64 = 86_400_000

// Default attribute values applied when a caller leaves them unset.
const (
	DefaultConfidence = 0.8
	DefaultImportance = 0.5
)

// Category classifies a memory. The set is closed; see ValidCategories.
type Category string

const (
	CategoryFact         Category = "fact"
	CategoryPreference   Category = "preference"
	CategoryEvent        Category = "event"
	CategoryRelationship Category = "relationship"
	CategoryContext      Category = "context"
	CategoryInstruction  Category = "instruction"
	CategoryDecision     Category = "decision"
	CategoryEntity       Category = "entity"
)

// ValidCategories are the allowed memory categories.
var ValidCategories = map[Category]bool{
	CategoryFact:         true,
	CategoryPreference:   true,
	CategoryEvent:        true,
	CategoryRelationship: true,
	CategoryContext:      true,
	CategoryInstruction:  true,
	CategoryDecision:     true,
	CategoryEntity:       true,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool { return ValidCategories[c] }

// Memory represents a stored memory entry.
type Memory struct {
	ID              string     `json:"id"`
	Content         string     `json:"content"`
	Category        Category   `json:"category"`
	Confidence      float64    `json:"confidence"`
	Importance      float64    `json:"importance"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	LastAccessedAt  time.Time  `json:"last_accessed_at"`
	DecayDays       *int       `json:"decay_days,omitempty"`
	SourceChannel   string     `json:"source_channel,omitempty"`
	SourceMessageID string     `json:"source_message_id,omitempty"`
	Tags            []string   `json:"tags"`
	Supersedes      string     `json:"supersedes,omitempty"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
	DeleteReason    string     `json:"delete_reason,omitempty"`
}

// Deleted reports whether the memory has been soft-deleted.
func (m *Memory) Deleted() bool { return m.DeletedAt != nil }

// ExpiresAt returns the instant the memory decays, or nil for permanent memories.
func (m *Memory) ExpiresAt() *time.Time {
	if m.DecayDays == nil {
		return nil
	}
	t := time.UnixMilli(m.CreatedAt.UnixMilli() + int64(*m.DecayDays)*MillisPerDay).UTC()
	return &t
}

// Expired reports whether the memory has decayed at now. The boundary is
// inclusive: a memory whose expiry instant equals now is expired.
func (m *Memory) Expired(now time.Time) bool {
	exp := m.ExpiresAt()
	return exp != nil && exp.UnixMilli() <= now.UnixMilli()
}

// SearchResult pairs a memory with its relevance score in [0,1].
type SearchResult struct {
	Memory
	Score float64 `json:"score"`
}
