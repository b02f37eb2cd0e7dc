// internal/ruleindex/chunkstore.go
package ruleindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"admissions-pipeline/internal/common/logger"
	"admissions-pipeline/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
)

var errEmptyRulebook = errors.New("rulebook produced no chunks")

// ChunkStore persists the embedded chunk collection keyed by chunk id so a
// restarted process can serve queries without re-embedding the rulebook.
type ChunkStore interface {
	SaveChunks(ctx context.Context, chunks []models.RuleChunk) error
	LoadChunks(ctx context.Context) ([]models.RuleChunk, error)
}

// NoopChunkStore keeps the index memory-only.
type NoopChunkStore struct{}

func (NoopChunkStore) SaveChunks(context.Context, []models.RuleChunk) error { return nil }
func (NoopChunkStore) LoadChunks(context.Context) ([]models.RuleChunk, error) {
	return nil, nil
}

// ElasticsearchChunkStore stores one document per chunk in a dedicated index.
type ElasticsearchChunkStore struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewElasticsearchChunkStore(client *elasticsearch.Client, index string, log logger.Logger) *ElasticsearchChunkStore {
	return &ElasticsearchChunkStore{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "chunk-store", "index": index}),
	}
}

func (s *ElasticsearchChunkStore) SaveChunks(ctx context.Context, chunks []models.RuleChunk) error {
	// Bulk replace: one index action per chunk, ids deterministic, so a rebuild
	// against the same rulebook overwrites in place.
	var buf bytes.Buffer
	for _, chunk := range chunks {
		action := map[string]interface{}{
			"index": map[string]interface{}{"_index": s.index, "_id": chunk.ID},
		}
		if err := json.NewEncoder(&buf).Encode(action); err != nil {
			return err
		}
		if err := json.NewEncoder(&buf).Encode(chunk); err != nil {
			return err
		}
	}

	res, err := s.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		s.client.Bulk.WithContext(ctx),
		s.client.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return fmt.Errorf("bulk index chunks: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("bulk index chunks: %s: %s", res.Status(), string(body))
	}

	s.logger.Info("persisted rule chunks", map[string]interface{}{"count": len(chunks)})
	return nil
}

func (s *ElasticsearchChunkStore) LoadChunks(ctx context.Context) ([]models.RuleChunk, error) {
	query := `{"query":{"match_all":{}},"size":10000,"sort":[{"_id":"asc"}]}`

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(bytes.NewReader([]byte(query))),
	)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		// Index not created yet: nothing persisted.
		return nil, nil
	}
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search chunks: %s: %s", res.Status(), string(body))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source models.RuleChunk `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode chunk search response: %w", err)
	}

	chunks := make([]models.RuleChunk, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		chunks = append(chunks, hit.Source)
	}
	return chunks, nil
}
