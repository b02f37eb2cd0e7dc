// internal/ruleindex/chunker.go
package ruleindex

import (
	"fmt"
	"strings"

	"admissions-pipeline/internal/models"
)

// Page is one page of the source rulebook with its already-extracted text.
// PDF text-extraction mechanics are a collaborator concern.
type Page struct {
	Number  int
	Section string
	Text    string
}

// Rulebook is the source document the index is built from.
type Rulebook struct {
	Source string
	Pages  []Page
}

// Chunker splits page text into overlapping fixed-size spans. Boundaries snap
// backward to the nearest separator so chunks end on natural breaks.
type Chunker struct {
	Size    int
	Overlap int
}

var separators = []string{"\n\n", "\n", ". ", " "}

// Chunk splits every page into RuleChunks carrying the page citation. Chunk
// ids are deterministic: source, page and position fully determine them, so a
// rebuild from the same rulebook produces the same collection.
func (c Chunker) Chunk(book Rulebook) []models.RuleChunk {
	var chunks []models.RuleChunk

	for _, page := range book.Pages {
		text := strings.TrimSpace(page.Text)
		if text == "" {
			continue
		}

		for i, span := range c.split(text) {
			chunks = append(chunks, models.RuleChunk{
				ID:      fmt.Sprintf("%s-p%d-c%d", sanitizeSource(book.Source), page.Number, i),
				Text:    span,
				Page:    page.Number,
				Section: page.Section,
			})
		}
	}
	return chunks
}

func (c Chunker) split(text string) []string {
	runes := []rune(text)
	if len(runes) <= c.Size {
		return []string{text}
	}

	step := c.Size - c.Overlap
	if step < 1 {
		step = 1
	}

	var spans []string
	for start := 0; start < len(runes); {
		end := start + c.Size
		if end >= len(runes) {
			spans = append(spans, strings.TrimSpace(string(runes[start:])))
			break
		}

		cut := snapToSeparator(runes, start, end)
		spans = append(spans, strings.TrimSpace(string(runes[start:cut])))

		next := cut - c.Overlap
		if next <= start {
			next = start + step
		}
		start = next
	}

	// Drop empty spans produced by separator-heavy input.
	out := spans[:0]
	for _, s := range spans {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// snapToSeparator moves end backward to the closest separator, preferring the
// strongest break. It never moves past the middle of the window.
func snapToSeparator(runes []rune, start, end int) int {
	window := string(runes[start:end])
	floor := len(window) / 2

	for _, sep := range separators {
		if idx := strings.LastIndex(window, sep); idx > floor {
			return start + len([]rune(window[:idx+len(sep)]))
		}
	}
	return end
}

func sanitizeSource(source string) string {
	source = strings.ToLower(strings.TrimSpace(source))
	if source == "" {
		return "rulebook"
	}
	replacer := strings.NewReplacer(" ", "-", "/", "-", ".", "-")
	return replacer.Replace(source)
}
