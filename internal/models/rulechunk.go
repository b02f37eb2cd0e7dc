// internal/models/rulechunk.go
package models

// RuleChunk is one span of rulebook text with its citation and embedding.
// Chunks are immutable after index build.
type RuleChunk struct {
	ID      string    `json:"id"`
	Text    string    `json:"text"`
	Page    int       `json:"page"`
	Section string    `json:"section,omitempty"`
	Vector  []float32 `json:"vector,omitempty"`
}

// Citation returns the chunk's citation with its verbatim text as excerpt.
func (c RuleChunk) Citation() Citation {
	return Citation{
		ChunkID: c.ID,
		Page:    c.Page,
		Section: c.Section,
		Excerpt: c.Text,
	}
}
