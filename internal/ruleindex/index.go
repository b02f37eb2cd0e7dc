// internal/ruleindex/index.go
package ruleindex

import (
	"context"
	"math"
	"sort"
	"sync/atomic"

	"admissions-pipeline/internal/common/errors"
	"admissions-pipeline/internal/common/logger"
	"admissions-pipeline/internal/common/metrics"
	"admissions-pipeline/internal/models"
)

// ScoredChunk is one retrieval hit ranked by cosine similarity.
type ScoredChunk struct {
	Chunk models.RuleChunk
	Score float64
}

// snapshot is an immutable built index generation. Queries read whichever
// snapshot was active when they started; Rebuild swaps the pointer atomically
// and never touches a published snapshot.
type snapshot struct {
	chunks []models.RuleChunk
}

// Index is the read-mostly store of rulebook chunks with vector similarity
// search. Safe for concurrent queries; rebuilds are explicit and out-of-band.
type Index struct {
	embedder Embedder
	chunker  Chunker
	persist  ChunkStore
	logger   logger.Logger

	active atomic.Pointer[snapshot]
}

func NewIndex(embedder Embedder, chunker Chunker, persist ChunkStore, log logger.Logger) *Index {
	if persist == nil {
		persist = NoopChunkStore{}
	}
	return &Index{
		embedder: embedder,
		chunker:  chunker,
		persist:  persist,
		logger:   log.WithFields(map[string]interface{}{"component": "rule-index"}),
	}
}

// Ready reports whether an index generation is active.
func (i *Index) Ready() bool {
	return i.active.Load() != nil
}

// Rebuild chunks and embeds the rulebook, persists the chunk collection, and
// atomically swaps the active snapshot. In-flight queries keep reading the
// previous generation.
func (i *Index) Rebuild(ctx context.Context, book Rulebook) error {
	chunks := i.chunker.Chunk(book)
	if len(chunks) == 0 {
		return errors.NewIndexBuildFailedError(errEmptyRulebook)
	}

	texts := make([]string, len(chunks))
	for j, c := range chunks {
		texts[j] = c.Text
	}

	vectors, err := i.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return errors.NewIndexBuildFailedError(err)
	}
	for j := range chunks {
		chunks[j].Vector = vectors[j]
	}

	if err := i.persist.SaveChunks(ctx, chunks); err != nil {
		return errors.NewIndexBuildFailedError(err)
	}

	i.active.Store(&snapshot{chunks: chunks})
	i.logger.Info("rule index rebuilt", map[string]interface{}{
		"source": book.Source,
		"pages":  len(book.Pages),
		"chunks": len(chunks),
	})
	return nil
}

// LoadPersisted restores the last persisted chunk collection, if any, and
// activates it. Returns false when the backing store holds no chunks.
func (i *Index) LoadPersisted(ctx context.Context) (bool, error) {
	chunks, err := i.persist.LoadChunks(ctx)
	if err != nil {
		return false, errors.NewIndexBuildFailedError(err)
	}
	if len(chunks) == 0 {
		return false, nil
	}

	i.active.Store(&snapshot{chunks: chunks})
	i.logger.Info("rule index loaded from persistence", map[string]interface{}{
		"chunks": len(chunks),
	})
	return true, nil
}

// Query returns the k nearest chunks to the query text, ranked by cosine
// similarity. Chunks come back with their citations intact.
func (i *Index) Query(ctx context.Context, text string, k int) ([]ScoredChunk, error) {
	snap := i.active.Load()
	if snap == nil {
		return nil, errors.NewIndexNotReadyError()
	}
	if k <= 0 {
		k = 5
	}

	queryVec, err := i.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, errors.NewRuleQueryFailedError(err)
	}

	metrics.RuleQueries.Inc()

	scored := make([]ScoredChunk, 0, len(snap.chunks))
	for _, chunk := range snap.chunks {
		scored = append(scored, ScoredChunk{
			Chunk: chunk,
			Score: cosineSimilarity(queryVec, chunk.Vector),
		})
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].Score > scored[b].Score
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
