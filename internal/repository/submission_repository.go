package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-client/internal/model"
)

// SubmissionRepository owns the offline_submissions table.
type SubmissionRepository struct {
	db         *sql.DB
	maxRetries int
}

// NewSubmissionRepository creates a new SubmissionRepository. Rows whose
// retry_count reaches maxRetries are excluded from the sync queue but
// retained for audit.
func NewSubmissionRepository(db *sql.DB, maxRetries int) *SubmissionRepository {
	return &SubmissionRepository{db: db, maxRetries: maxRetries}
}

// Create records an offline submission and returns its surrogate ID.
// The row is always created with synced=false; SubmittedAt is stored as
// captured by the caller and never touched again.
func (r *SubmissionRepository) Create(ctx context.Context, sub *model.OfflineSubmission) (string, error) {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	sub.Synced = false

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO offline_submissions
		 (id, assessment_id, user_email, file_uri, original_filename, submitted_at, synced, retry_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?)`,
		sub.ID, sub.AssessmentID, sub.UserEmail, sub.FileURI, sub.OriginalFilename,
		encodeTime(sub.SubmittedAt), encodeTime(sub.CreatedAt))
	if err != nil {
		return "", fmt.Errorf("insert offline submission: %w", err)
	}
	return sub.ID, nil
}

// ListUnsynced returns the user's pending submissions in a stable order so a
// single flush run iterates a consistent snapshot.
func (r *SubmissionRepository) ListUnsynced(ctx context.Context, userEmail string) ([]model.OfflineSubmission, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, assessment_id, user_email, file_uri, original_filename, submitted_at, synced, retry_count, created_at
		 FROM offline_submissions
		 WHERE user_email = ? AND synced = 0 AND retry_count < ?
		 ORDER BY created_at ASC, id ASC`,
		userEmail, r.maxRetries)
	if err != nil {
		return nil, fmt.Errorf("list unsynced submissions: %w", err)
	}
	defer rows.Close()

	var subs []model.OfflineSubmission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// MarkSynced flips the synced flag. Idempotent: marking an already-synced
// row is a no-op, not an error.
func (r *SubmissionRepository) MarkSynced(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE offline_submissions SET synced = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark submission synced: %w", err)
	}
	return nil
}

// IncrementRetry bumps the failure counter after an unsuccessful sync.
func (r *SubmissionRepository) IncrementRetry(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE offline_submissions SET retry_count = retry_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("bump submission retry: %w", err)
	}
	return nil
}

// CountPending returns the queued and stalled (retry ceiling hit) counts.
func (r *SubmissionRepository) CountPending(ctx context.Context, userEmail string) (pending, stalled int, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT
		   COUNT(CASE WHEN retry_count <  ? THEN 1 END),
		   COUNT(CASE WHEN retry_count >= ? THEN 1 END)
		 FROM offline_submissions
		 WHERE user_email = ? AND synced = 0`,
		r.maxRetries, r.maxRetries, userEmail,
	).Scan(&pending, &stalled)
	if err != nil {
		return 0, 0, fmt.Errorf("count pending submissions: %w", err)
	}
	return pending, stalled, nil
}

// DeleteAll removes every submission row across all local accounts.
// Used only by the explicit full-logout wipe.
func (r *SubmissionRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM offline_submissions`)
	if err != nil {
		return fmt.Errorf("wipe offline submissions: %w", err)
	}
	return nil
}

func scanSubmission(rows *sql.Rows) (model.OfflineSubmission, error) {
	var (
		s                      model.OfflineSubmission
		submittedAt, createdAt string
		synced                 int
	)
	if err := rows.Scan(&s.ID, &s.AssessmentID, &s.UserEmail, &s.FileURI, &s.OriginalFilename,
		&submittedAt, &synced, &s.RetryCount, &createdAt); err != nil {
		return model.OfflineSubmission{}, fmt.Errorf("scan submission: %w", err)
	}
	s.Synced = synced != 0

	var err error
	if s.SubmittedAt, err = decodeTime(submittedAt); err != nil {
		return model.OfflineSubmission{}, fmt.Errorf("decode submitted_at: %w", err)
	}
	if s.CreatedAt, err = decodeTime(createdAt); err != nil {
		return model.OfflineSubmission{}, fmt.Errorf("decode created_at: %w", err)
	}
	return s, nil
}
