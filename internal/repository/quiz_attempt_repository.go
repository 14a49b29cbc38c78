package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stemsi/exstem-client/internal/model"
)

// QuizAttemptRepository owns the offline_quiz_attempts table, keyed by
// (assessment_id, user_email).
type QuizAttemptRepository struct {
	db         *sql.DB
	maxRetries int
}

// NewQuizAttemptRepository creates a new QuizAttemptRepository.
func NewQuizAttemptRepository(db *sql.DB, maxRetries int) *QuizAttemptRepository {
	return &QuizAttemptRepository{db: db, maxRetries: maxRetries}
}

// Start records a fresh in-progress attempt. Restarting an existing key
// resets the attempt wholesale (answers, flags, timer).
func (r *QuizAttemptRepository) Start(ctx context.Context, assessmentID int64, userEmail string, startTime time.Time, durationMinutes int) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO offline_quiz_attempts
		 (assessment_id, user_email, answers_json, start_time, end_time, duration_minutes, status, synced, retry_count)
		 VALUES (?, ?, '{}', ?, NULL, ?, ?, 0, 0)
		 ON CONFLICT (assessment_id, user_email) DO UPDATE SET
		   answers_json = '{}',
		   start_time = excluded.start_time,
		   end_time = NULL,
		   duration_minutes = excluded.duration_minutes,
		   status = excluded.status,
		   synced = 0,
		   retry_count = 0`,
		assessmentID, userEmail, encodeTime(startTime), durationMinutes, model.QuizStatusInProgress)
	if err != nil {
		return fmt.Errorf("start quiz attempt: %w", err)
	}
	return nil
}

// SaveAnswer sets or replaces one answer on the in-progress attempt.
// The read-modify-write runs in a transaction so concurrent saves from the
// UI cannot drop each other's answers.
func (r *QuizAttemptRepository) SaveAnswer(ctx context.Context, assessmentID int64, userEmail, questionID string, rec model.AnswerRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save answer: %w", err)
	}
	defer tx.Rollback()

	var answersJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT answers_json FROM offline_quiz_attempts
		 WHERE assessment_id = ? AND user_email = ? AND status = ?`,
		assessmentID, userEmail, model.QuizStatusInProgress,
	).Scan(&answersJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoActiveAttempt
	}
	if err != nil {
		return fmt.Errorf("load answers: %w", err)
	}

	answers := model.AnswerMap{}
	if err := json.Unmarshal([]byte(answersJSON), &answers); err != nil {
		return fmt.Errorf("decode answers: %w", err)
	}
	answers[questionID] = rec

	encoded, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE offline_quiz_attempts SET answers_json = ?
		 WHERE assessment_id = ? AND user_email = ?`,
		string(encoded), assessmentID, userEmail); err != nil {
		return fmt.Errorf("store answers: %w", err)
	}
	return tx.Commit()
}

// Complete transitions the attempt to completed, making it sync-eligible.
// Returns ErrNoActiveAttempt if no in-progress row exists for the key.
func (r *QuizAttemptRepository) Complete(ctx context.Context, assessmentID int64, userEmail string, endTime time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE offline_quiz_attempts
		 SET status = ?, end_time = ?
		 WHERE assessment_id = ? AND user_email = ? AND status = ?`,
		model.QuizStatusCompleted, encodeTime(endTime), assessmentID, userEmail, model.QuizStatusInProgress)
	if err != nil {
		return fmt.Errorf("complete quiz attempt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete quiz attempt: %w", err)
	}
	if affected == 0 {
		return ErrNoActiveAttempt
	}
	return nil
}

// Get retrieves one attempt by its key.
func (r *QuizAttemptRepository) Get(ctx context.Context, assessmentID int64, userEmail string) (*model.OfflineQuizAttempt, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT assessment_id, user_email, answers_json, start_time, end_time, duration_minutes, status, synced, retry_count
		 FROM offline_quiz_attempts
		 WHERE assessment_id = ? AND user_email = ?`,
		assessmentID, userEmail)

	att, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return att, nil
}

// ListUnsynced returns completed, unsynced attempts in a stable order.
// In-progress attempts are never sync-eligible regardless of their flag.
func (r *QuizAttemptRepository) ListUnsynced(ctx context.Context, userEmail string) ([]model.OfflineQuizAttempt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT assessment_id, user_email, answers_json, start_time, end_time, duration_minutes, status, synced, retry_count
		 FROM offline_quiz_attempts
		 WHERE user_email = ? AND status = ? AND synced = 0 AND retry_count < ?
		 ORDER BY start_time ASC, assessment_id ASC`,
		userEmail, model.QuizStatusCompleted, r.maxRetries)
	if err != nil {
		return nil, fmt.Errorf("list unsynced attempts: %w", err)
	}
	defer rows.Close()

	var attempts []model.OfflineQuizAttempt
	for rows.Next() {
		att, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *att)
	}
	return attempts, rows.Err()
}

// MarkSynced flips the synced flag. Idempotent.
func (r *QuizAttemptRepository) MarkSynced(ctx context.Context, assessmentID int64, userEmail string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE offline_quiz_attempts SET synced = 1
		 WHERE assessment_id = ? AND user_email = ?`,
		assessmentID, userEmail)
	if err != nil {
		return fmt.Errorf("mark attempt synced: %w", err)
	}
	return nil
}

// IncrementRetry bumps the failure counter after an unsuccessful sync.
func (r *QuizAttemptRepository) IncrementRetry(ctx context.Context, assessmentID int64, userEmail string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE offline_quiz_attempts SET retry_count = retry_count + 1
		 WHERE assessment_id = ? AND user_email = ?`,
		assessmentID, userEmail)
	if err != nil {
		return fmt.Errorf("bump attempt retry: %w", err)
	}
	return nil
}

// CountPending returns queued and stalled completed-attempt counts.
func (r *QuizAttemptRepository) CountPending(ctx context.Context, userEmail string) (pending, stalled int, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT
		   COUNT(CASE WHEN retry_count <  ? THEN 1 END),
		   COUNT(CASE WHEN retry_count >= ? THEN 1 END)
		 FROM offline_quiz_attempts
		 WHERE user_email = ? AND status = ? AND synced = 0`,
		r.maxRetries, r.maxRetries, userEmail, model.QuizStatusCompleted,
	).Scan(&pending, &stalled)
	if err != nil {
		return 0, 0, fmt.Errorf("count pending attempts: %w", err)
	}
	return pending, stalled, nil
}

// DeleteAll removes every attempt row across all local accounts.
func (r *QuizAttemptRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM offline_quiz_attempts`)
	if err != nil {
		return fmt.Errorf("wipe quiz attempts: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row rowScanner) (*model.OfflineQuizAttempt, error) {
	var (
		att         model.OfflineQuizAttempt
		answersJSON string
		startTime   string
		endTime     sql.NullString
		status      string
		synced      int
	)
	if err := row.Scan(&att.AssessmentID, &att.UserEmail, &answersJSON, &startTime, &endTime,
		&att.DurationMinutes, &status, &synced, &att.RetryCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("scan attempt: %w", err)
	}
	att.Status = model.QuizStatus(status)
	att.Synced = synced != 0

	if err := json.Unmarshal([]byte(answersJSON), &att.Answers); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}

	var err error
	if att.StartTime, err = decodeTime(startTime); err != nil {
		return nil, fmt.Errorf("decode start_time: %w", err)
	}
	if att.EndTime, err = decodeNullTime(endTime); err != nil {
		return nil, fmt.Errorf("decode end_time: %w", err)
	}
	return &att, nil
}
