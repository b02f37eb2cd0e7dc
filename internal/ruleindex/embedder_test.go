// internal/ruleindex/embedder_test.go
package ruleindex

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admissions-pipeline/internal/common/logger"
)

func TestHashingEmbedder_Deterministic(t *testing.T) {
	embedder := NewHashingEmbedder(384)

	a, err := embedder.EmbedQuery(context.Background(), "Abitur grants direct access")
	require.NoError(t, err)
	b, err := embedder.EmbedQuery(context.Background(), "Abitur grants direct access")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 384)
}

func TestHashingEmbedder_UnitNorm(t *testing.T) {
	embedder := NewHashingEmbedder(128)

	vec, err := embedder.EmbedQuery(context.Background(), "admission requirements for Finanzmanagement")
	require.NoError(t, err)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sum, 0.001)
}

func TestHashingEmbedder_SharedVocabularyScoresHigher(t *testing.T) {
	embedder := NewHashingEmbedder(384)
	ctx := context.Background()

	doc, _ := embedder.EmbedQuery(ctx, "Allgemeine Hochschulreife grants direct university access")
	near, _ := embedder.EmbedQuery(ctx, "direct university access requirements")
	far, _ := embedder.EmbedQuery(ctx, "cafeteria opening hours and parking")

	assert.Greater(t, cosineSimilarity(doc, near), cosineSimilarity(doc, far))
}

func TestHashingEmbedder_LongQueryRanksSharedVocabularyFirst(t *testing.T) {
	// A profile-derived query shares only a couple of tokens with the one
	// relevant rule chunk; collision noise from the unrelated chunks must not
	// outrank it at any configured dimension.
	query := "admission requirements for Finanzmanagement entity DE applicant with abitur grade 1.58"
	relevant := "Applicants holding the Allgemeine Hochschulreife (Abitur) are granted direct access to the Finanzmanagement program."
	unrelated := []string{
		"Tuition is invoiced per semester and due before enrollment is confirmed.",
		"Campus housing is allocated by lottery and opens in May.",
	}

	ctx := context.Background()
	for _, dim := range []int{128, 256, 384} {
		embedder := NewHashingEmbedder(dim)

		qv, err := embedder.EmbedQuery(ctx, query)
		require.NoError(t, err)
		rv, err := embedder.EmbedQuery(ctx, relevant)
		require.NoError(t, err)

		relevantScore := cosineSimilarity(qv, rv)
		for _, text := range unrelated {
			uv, err := embedder.EmbedQuery(ctx, text)
			require.NoError(t, err)
			assert.Greater(t, relevantScore, cosineSimilarity(qv, uv), "dim %d: %q outranked the relevant chunk", dim, text)
		}
	}
}

func TestHashingEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	embedder := NewHashingEmbedder(64)

	vec, err := embedder.EmbedQuery(context.Background(), "")
	require.NoError(t, err)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

// ==========================
// Cache Tests
// ==========================

func TestCachedEmbedder_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	inner := NewHashingEmbedder(64)
	cached := NewCachedEmbedder(inner, client, time.Hour, logger.NewTestLogger(t))

	ctx := context.Background()
	first, err := cached.EmbedQuery(ctx, "Abitur grants direct access")
	require.NoError(t, err)

	// The vector is now in redis under the text digest.
	keys := mr.Keys()
	require.Len(t, keys, 1)

	second, err := cached.EmbedQuery(ctx, "Abitur grants direct access")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCachedEmbedder_DocumentsPartialHit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	inner := NewHashingEmbedder(64)
	cached := NewCachedEmbedder(inner, client, time.Hour, logger.NewTestLogger(t))

	ctx := context.Background()
	_, err := cached.EmbedQuery(ctx, "warm text")
	require.NoError(t, err)

	vectors, err := cached.EmbedDocuments(ctx, []string{"warm text", "cold text"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)

	want, _ := inner.EmbedQuery(ctx, "cold text")
	assert.Equal(t, want, vectors[1])
	assert.Len(t, mr.Keys(), 2)
}

func TestCachedEmbedder_CacheFailureFallsThrough(t *testing.T) {
	client, mock := redismock.NewClientMock()

	text := "Abitur grants direct access"
	inner := NewHashingEmbedder(64)
	want, _ := inner.EmbedQuery(context.Background(), text)
	data, _ := json.Marshal(want)

	// Both the read and the write fail; the embedder still answers.
	mock.ExpectGet(cacheKey(text)).SetErr(assert.AnError)
	mock.ExpectSet(cacheKey(text), data, time.Hour).SetErr(assert.AnError)

	cached := NewCachedEmbedder(inner, client, time.Hour, logger.NewTestLogger(t))

	got, err := cached.EmbedQuery(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
