package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/repository"
)

// Reachability is the slice of the Connectivity Observer the assessment
// flow consults before choosing the online or offline path.
type Reachability interface {
	Online() bool
}

// ErrNoActiveAttempt is re-exported so handlers do not import the
// repository package for control flow.
var ErrNoActiveAttempt = repository.ErrNoActiveAttempt

// AttemptStatusView is a cached snapshot returned to the UI.
type AttemptStatusView struct {
	AssessmentID int64           `json:"assessment_id"`
	Payload      json.RawMessage `json:"payload"`
	FetchedAt    time.Time       `json:"fetched_at"`
	Stale        bool            `json:"stale"`
}

// AssessmentService drives the UI-facing assessment operations: timed quiz
// attempts and assignment submissions, online when possible, queued in the
// Local Store otherwise.
type AssessmentService struct {
	quizzes     *repository.QuizAttemptRepository
	submissions *repository.SubmissionRepository
	statuses    *repository.AttemptStatusRepository
	guard       *TimeGuardService
	sync        *SyncService
	remote      RemoteAPI
	serverClock ServerClock
	conn        Reachability
	log         zerolog.Logger
}

// ServerClock fetches the trusted server time.
type ServerClock interface {
	ServerTime(ctx context.Context) (time.Time, error)
}

// NewAssessmentService creates a new AssessmentService.
func NewAssessmentService(
	quizzes *repository.QuizAttemptRepository,
	submissions *repository.SubmissionRepository,
	statuses *repository.AttemptStatusRepository,
	guard *TimeGuardService,
	sync *SyncService,
	remote RemoteAPI,
	serverClock ServerClock,
	conn Reachability,
	log zerolog.Logger,
) *AssessmentService {
	return &AssessmentService{
		quizzes:     quizzes,
		submissions: submissions,
		statuses:    statuses,
		guard:       guard,
		sync:        sync,
		remote:      remote,
		serverClock: serverClock,
		conn:        conn,
		log:         log.With().Str("component", "assessment").Logger(),
	}
}

// StartQuiz opens an in-progress attempt. The Time-Integrity Guard gates
// the start: a detected clock manipulation refuses the quiz outright
// instead of trusting a tampered deadline.
func (s *AssessmentService) StartQuiz(ctx context.Context, userEmail string, assessmentID int64, durationMinutes int) error {
	check, err := s.guard.CheckIntegrity(ctx, userEmail)
	if err != nil {
		return fmt.Errorf("time integrity check: %w", err)
	}
	if !check.Valid {
		return fmt.Errorf("%w: %s", ErrTimeIntegrity, check.Reason)
	}

	// When reachable, re-anchor against the server clock. A drift beyond
	// tolerance is a hard stop; a fetch failure just means we stay on the
	// previous anchor.
	if s.conn.Online() {
		if serverTime, err := s.serverClock.ServerTime(ctx); err == nil {
			drift, err := s.guard.CheckAgainstServer(ctx, userEmail, serverTime)
			if err != nil {
				return fmt.Errorf("time integrity check: %w", err)
			}
			if !drift.Valid {
				return fmt.Errorf("%w: %s", ErrTimeIntegrity, drift.Reason)
			}
			if err := s.guard.RecordTrustedTime(ctx, userEmail, serverTime); err != nil {
				return fmt.Errorf("record trusted time: %w", err)
			}
		} else {
			s.log.Warn().Err(err).Msg("Server time unavailable at quiz start")
		}
	}

	if err := s.quizzes.Start(ctx, assessmentID, userEmail, time.Now(), durationMinutes); err != nil {
		return err
	}

	s.log.Info().
		Int64("assessment_id", assessmentID).
		Str("user_email", userEmail).
		Int("duration_minutes", durationMinutes).
		Msg("Quiz attempt started")
	return nil
}

// SaveAnswer records one answer on the in-progress attempt.
func (s *AssessmentService) SaveAnswer(ctx context.Context, userEmail string, assessmentID int64, questionID string, rec model.AnswerRecord) error {
	return s.quizzes.SaveAnswer(ctx, assessmentID, userEmail, questionID, rec)
}

// SubmitQuiz completes the attempt, making it sync-eligible, and attempts
// an immediate sync when the API is reachable. The immediate sync is
// best-effort: a failure leaves the attempt queued for the next flush run.
func (s *AssessmentService) SubmitQuiz(ctx context.Context, userEmail string, assessmentID int64) (synced bool, err error) {
	if err := s.quizzes.Complete(ctx, assessmentID, userEmail, time.Now()); err != nil {
		return false, err
	}

	if !s.conn.Online() {
		return false, nil
	}

	att, err := s.quizzes.Get(ctx, assessmentID, userEmail)
	if err != nil {
		return false, err
	}
	if !s.sync.SyncOfflineQuiz(ctx, *att) {
		return false, nil
	}
	if err := s.quizzes.MarkSynced(ctx, assessmentID, userEmail); err != nil {
		return false, err
	}
	return true, nil
}

// RemainingTime reports how long the active attempt may still run. Gated by
// the guard: with a rolled-back clock there is no trustworthy remaining
// duration, so the caller gets ErrTimeIntegrity instead of a number.
func (s *AssessmentService) RemainingTime(ctx context.Context, userEmail string, assessmentID int64) (time.Duration, error) {
	check, err := s.guard.CheckIntegrity(ctx, userEmail)
	if err != nil {
		return 0, fmt.Errorf("time integrity check: %w", err)
	}
	if !check.Valid {
		return 0, fmt.Errorf("%w: %s", ErrTimeIntegrity, check.Reason)
	}

	att, err := s.quizzes.Get(ctx, assessmentID, userEmail)
	if err != nil {
		return 0, err
	}
	if att.Status != model.QuizStatusInProgress {
		return 0, ErrNoActiveAttempt
	}

	deadline := att.StartTime.Add(time.Duration(att.DurationMinutes) * time.Minute)
	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// SubmitAssignment uploads the spooled file directly when reachable. On any
// upload failure — or with no connectivity at all — the submission is
// recorded offline with the client-captured submitted_at preserved for the
// eventual sync. Returns whether the item was queued (true) or delivered
// immediately (false).
func (s *AssessmentService) SubmitAssignment(ctx context.Context, userEmail string, assessmentID int64, filePath, originalFilename string) (queued bool, err error) {
	submittedAt := time.Now()

	if s.conn.Online() {
		if err := s.remote.SubmitAssignment(ctx, assessmentID, filePath, originalFilename, submittedAt); err == nil {
			s.log.Info().
				Int64("assessment_id", assessmentID).
				Str("filename", originalFilename).
				Msg("Assignment submitted directly")
			if err := s.sync.RefreshAttemptStatus(ctx, assessmentID, userEmail); err != nil {
				s.log.Warn().Err(err).Msg("Attempt status refresh failed after direct submit")
			}
			return false, nil
		} else {
			s.log.Warn().Err(err).
				Int64("assessment_id", assessmentID).
				Msg("Direct submit failed, queueing offline")
		}
	}

	id, err := s.submissions.Create(ctx, &model.OfflineSubmission{
		AssessmentID:     assessmentID,
		UserEmail:        userEmail,
		FileURI:          filePath,
		OriginalFilename: originalFilename,
		SubmittedAt:      submittedAt,
	})
	if err != nil {
		return false, err
	}

	s.log.Info().
		Str("submission_id", id).
		Int64("assessment_id", assessmentID).
		Msg("Assignment queued for sync")
	return true, nil
}

// AttemptStatus returns the server snapshot for an assessment. When online
// it refreshes the cache first; offline (or on refresh failure) it serves
// the cached copy marked stale.
func (s *AssessmentService) AttemptStatus(ctx context.Context, userEmail string, assessmentID int64) (*AttemptStatusView, error) {
	stale := true
	if s.conn.Online() {
		if err := s.sync.RefreshAttemptStatus(ctx, assessmentID, userEmail); err == nil {
			stale = false
		} else {
			s.log.Warn().Err(err).Int64("assessment_id", assessmentID).Msg("Attempt status refresh failed")
		}
	}

	cached, err := s.statuses.Get(ctx, assessmentID, userEmail)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &AttemptStatusView{
		AssessmentID: assessmentID,
		Payload:      cached.Payload,
		FetchedAt:    cached.FetchedAt,
		Stale:        stale,
	}, nil
}
