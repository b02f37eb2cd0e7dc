// internal/ruleindex/embedder.go
package ruleindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"hash/fnv"
	"math"
	"strings"
	"time"
	"unicode"

	"admissions-pipeline/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

// Embedder turns text into fixed-dimension vectors. The embedding model is a
// swappable capability; HashingEmbedder is the local default.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// HashingEmbedder maps token unigrams and bigrams into a fixed-dimension
// vector via feature hashing. Deterministic, local, and dependency-free: two
// texts sharing vocabulary land near each other under cosine similarity.
type HashingEmbedder struct {
	Dim int
}

// Each feature lands in subHashes buckets: a shared feature contributes that
// many aligned components, while a stray collision contributes a single
// randomly signed one. Bigrams carry less weight than the unigrams they
// repeat.
const (
	subHashes    = 3
	bigramWeight = 0.3
)

func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = 384
	}
	return &HashingEmbedder{Dim: dim}
}

func (e *HashingEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *HashingEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e *HashingEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.Dim)
	tokens := tokenize(text)

	for i, tok := range tokens {
		addFeature(vec, tok, 1)
		if i+1 < len(tokens) {
			addFeature(vec, tok+"_"+tokens[i+1], bigramWeight)
		}
	}

	normalize(vec)
	return vec
}

func addFeature(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	state := h.Sum64()

	for j := 0; j < subHashes; j++ {
		var z uint64
		state, z = mix64(state)
		idx := int(z % uint64(len(vec)))
		// One hash bit decides the sign, keeping hash collisions unbiased.
		if z&(1<<63) != 0 {
			vec[idx] -= weight
		} else {
			vec[idx] += weight
		}
	}
}

// mix64 advances a splitmix64 state and returns the next mixed value. Raw
// FNV output leaves similar features correlated in their low bits, which is
// exactly where the bucket index comes from.
func mix64(state uint64) (uint64, uint64) {
	state += 0x9e3779b97f4a7c15
	z := state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return state, z ^ (z >> 31)
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

// CachedEmbedder fronts another Embedder with a redis cache keyed by text
// digest. Rebuilding the index against an unchanged rulebook then costs no
// embedding calls.
type CachedEmbedder struct {
	inner  Embedder
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedEmbedder(inner Embedder, client *redis.Client, ttl time.Duration, log logger.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "embedding-cache"}),
	}
}

func (c *CachedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if vec, ok := c.lookup(ctx, text); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := c.inner.EmbedDocuments(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range vectors {
		out[missingIdx[j]] = vec
		c.remember(ctx, missing[j], vec)
	}
	return out, nil
}

func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.lookup(ctx, text); ok {
		return vec, nil
	}
	vec, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.remember(ctx, text, vec)
	return vec, nil
}

func (c *CachedEmbedder) lookup(ctx context.Context, text string) ([]float32, bool) {
	val, err := c.client.Get(ctx, cacheKey(text)).Result()
	if err != nil {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal([]byte(val), &vec); err != nil {
		return nil, false
	}
	return vec, true
}

// remember is best-effort: a cache write failure only costs a recompute later.
func (c *CachedEmbedder) remember(ctx context.Context, text string, vec []float32) {
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(text), data, c.ttl).Err(); err != nil {
		c.logger.Debug("embedding cache write failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + hex.EncodeToString(sum[:])
}
