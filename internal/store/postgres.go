// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"admissions-pipeline/internal/common/errors"
	"admissions-pipeline/internal/models"

	"github.com/lib/pq"
)

// PostgresStore persists ApplicationRecords as JSONB rows. Per-id mutation is
// serialized with SELECT ... FOR UPDATE so the single-writer discipline holds
// across processes too.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the applications table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS applications (
			id            TEXT PRIMARY KEY,
			current_stage TEXT NOT NULL,
			record        JSONB NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL
		)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return errors.NewDatabaseQueryFailedError("migrate", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, record *models.ApplicationRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return errors.NewDatabaseInsertFailedError(err)
	}

	const query = `
		INSERT INTO applications (id, current_stage, record, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err = s.db.ExecContext(ctx, query,
		record.ID, string(record.CurrentStage), payload, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return errors.NewDuplicateApplicationError(record.ID)
		}
		return errors.NewDatabaseInsertFailedError(err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.ApplicationRecord, error) {
	const query = `SELECT record FROM applications WHERE id = $1`

	var payload []byte
	err := s.db.QueryRowContext(ctx, query, id).Scan(&payload)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError(id)
		}
		return nil, errors.NewDatabaseQueryFailedError("get", err)
	}

	var record models.ApplicationRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, errors.NewDatabaseQueryFailedError("decode", err)
	}
	return &record, nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, mutate Mutator) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewDatabaseConnectionFailedError(err)
	}
	defer tx.Rollback()

	const selectQuery = `SELECT record FROM applications WHERE id = $1 FOR UPDATE`

	var payload []byte
	if err := tx.QueryRowContext(ctx, selectQuery, id).Scan(&payload); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.NewNotFoundError(id)
		}
		return errors.NewDatabaseQueryFailedError("lock", err)
	}

	var record models.ApplicationRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return errors.NewDatabaseQueryFailedError("decode", err)
	}

	if err := mutate(&record); err != nil {
		return err
	}
	record.UpdatedAt = time.Now().UTC()

	next, err := json.Marshal(&record)
	if err != nil {
		return errors.NewDatabaseQueryFailedError("encode", err)
	}

	const updateQuery = `
		UPDATE applications
		SET current_stage = $2, record = $3, updated_at = $4
		WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updateQuery,
		id, string(record.CurrentStage), next, record.UpdatedAt,
	); err != nil {
		return errors.NewDatabaseQueryFailedError("update", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewDatabaseQueryFailedError("commit", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]models.ApplicationSummary, error) {
	const query = `SELECT record FROM applications ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.NewDatabaseQueryFailedError("list", err)
	}
	defer rows.Close()

	var summaries []models.ApplicationSummary
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.NewDatabaseQueryFailedError("scan", err)
		}
		var record models.ApplicationRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, errors.NewDatabaseQueryFailedError("decode", err)
		}
		summaries = append(summaries, record.Summary())
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseQueryFailedError("list", err)
	}
	return summaries, nil
}
