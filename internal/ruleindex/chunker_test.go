// internal/ruleindex/chunker_test.go
package ruleindex

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_ShortPageIsOneChunk(t *testing.T) {
	chunker := Chunker{Size: 1500, Overlap: 200}

	chunks := chunker.Chunk(Rulebook{
		Source: "Admission Rules 2026",
		Pages: []Page{
			{Number: 3, Section: "Admission", Text: "Abitur grants direct access."},
		},
	})

	require.Len(t, chunks, 1)
	assert.Equal(t, "admission-rules-2026-p3-c0", chunks[0].ID)
	assert.Equal(t, 3, chunks[0].Page)
	assert.Equal(t, "Admission", chunks[0].Section)
	assert.Equal(t, "Abitur grants direct access.", chunks[0].Text)
}

func TestChunker_LongPageOverlaps(t *testing.T) {
	chunker := Chunker{Size: 100, Overlap: 20}

	sentences := make([]string, 40)
	for i := range sentences {
		sentences[i] = "Each applicant must submit certified documents."
	}
	text := strings.Join(sentences, " ")

	chunks := chunker.Chunk(Rulebook{
		Source: "handbook",
		Pages:  []Page{{Number: 1, Text: text}},
	})

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c.Text)), 100)
		assert.NotEmpty(t, c.Text)
	}
}

func TestChunker_DeterministicIDs(t *testing.T) {
	chunker := Chunker{Size: 100, Overlap: 20}
	book := Rulebook{
		Source: "handbook",
		Pages:  []Page{{Number: 1, Text: strings.Repeat("Admission requires a qualification. ", 20)}},
	}

	first := chunker.Chunk(book)
	second := chunker.Chunk(book)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Text, second[i].Text)
	}
}

func TestChunker_SkipsEmptyPages(t *testing.T) {
	chunker := Chunker{Size: 100, Overlap: 20}

	chunks := chunker.Chunk(Rulebook{
		Source: "handbook",
		Pages: []Page{
			{Number: 1, Text: "   "},
			{Number: 2, Text: "Actual content."},
		},
	})

	require.Len(t, chunks, 1)
	assert.Equal(t, 2, chunks[0].Page)
}
