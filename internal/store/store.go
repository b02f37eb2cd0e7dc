// internal/store/store.go
package store

import (
	"context"

	"admissions-pipeline/internal/models"
)

// Mutator transforms a record in place under the store's per-id lock. Returning
// an error aborts the update without persisting anything.
type Mutator func(*models.ApplicationRecord) error

// ApplicationStore is the keyed collection of per-application state. The
// orchestrator is the only writer; Get and List serve concurrent readers and
// never expose a record mid-mutation.
type ApplicationStore interface {
	// Create persists a new record. Fails with DUPLICATE_APPLICATION if the id
	// is already taken.
	Create(ctx context.Context, record *models.ApplicationRecord) error

	// Get returns a copy of the record, or APPLICATION_NOT_FOUND.
	Get(ctx context.Context, id string) (*models.ApplicationRecord, error)

	// Update applies mutate atomically: mutation of one id is serialized, and a
	// failed mutate leaves the stored record untouched. Partial writes are
	// never observable.
	Update(ctx context.Context, id string, mutate Mutator) error

	// List returns summaries of every record.
	List(ctx context.Context) ([]models.ApplicationSummary, error)
}
