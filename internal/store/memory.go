// internal/store/memory.go
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"admissions-pipeline/internal/common/errors"
	"admissions-pipeline/internal/models"
)

// entry pairs a record with its own mutex so mutation is serialized per id
// while distinct applications advance independently.
type entry struct {
	mu  sync.Mutex
	rec *models.ApplicationRecord
}

// MemoryStore is the default ApplicationStore: an indexed map with per-key
// locking. Suitable for a single process; the postgres store covers durability.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry)}
}

func (s *MemoryStore) Create(_ context.Context, record *models.ApplicationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[record.ID]; exists {
		return errors.NewDuplicateApplicationError(record.ID)
	}
	s.entries[record.ID] = &entry{rec: record.Clone()}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.ApplicationRecord, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NewNotFoundError(id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, mutate Mutator) error {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return errors.NewNotFoundError(id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Mutate a copy so a failed mutator leaves the stored record untouched.
	next := e.rec.Clone()
	if err := mutate(next); err != nil {
		return err
	}
	next.UpdatedAt = time.Now().UTC()
	e.rec = next
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]models.ApplicationSummary, error) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	summaries := make([]models.ApplicationSummary, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		summaries = append(summaries, e.rec.Summary())
		e.mu.Unlock()
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	return summaries, nil
}
