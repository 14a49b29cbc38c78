package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/stemsi/exstem-client/internal/model"
)

// AttemptStatusRepository owns the attempt_status_cache table: the
// server-confirmed attempt snapshot kept for offline display.
type AttemptStatusRepository struct {
	db *sql.DB
}

// NewAttemptStatusRepository creates a new AttemptStatusRepository.
func NewAttemptStatusRepository(db *sql.DB) *AttemptStatusRepository {
	return &AttemptStatusRepository{db: db}
}

// Save overwrites the snapshot wholesale. The server is authoritative, so
// snapshots are never merged field-by-field.
func (r *AttemptStatusRepository) Save(ctx context.Context, status model.CachedAttemptStatus) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO attempt_status_cache (assessment_id, user_email, payload_json, fetched_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (assessment_id, user_email) DO UPDATE SET
		   payload_json = excluded.payload_json,
		   fetched_at = excluded.fetched_at`,
		status.AssessmentID, status.UserEmail, string(status.Payload), encodeTime(status.FetchedAt))
	if err != nil {
		return fmt.Errorf("save attempt status: %w", err)
	}
	return nil
}

// Get returns the cached snapshot for one (assessment, user) key.
func (r *AttemptStatusRepository) Get(ctx context.Context, assessmentID int64, userEmail string) (*model.CachedAttemptStatus, error) {
	var (
		status    model.CachedAttemptStatus
		payload   string
		fetchedAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT assessment_id, user_email, payload_json, fetched_at
		 FROM attempt_status_cache
		 WHERE assessment_id = ? AND user_email = ?`,
		assessmentID, userEmail,
	).Scan(&status.AssessmentID, &status.UserEmail, &payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt status: %w", err)
	}

	status.Payload = []byte(payload)
	if status.FetchedAt, err = decodeTime(fetchedAt); err != nil {
		return nil, fmt.Errorf("decode fetched_at: %w", err)
	}
	return &status, nil
}

// DeleteAll removes every cached snapshot across all local accounts.
func (r *AttemptStatusRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM attempt_status_cache`)
	if err != nil {
		return fmt.Errorf("wipe attempt status cache: %w", err)
	}
	return nil
}
