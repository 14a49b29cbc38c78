package service

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/notification"
)

// RunResult is the outcome the host integration reports for one flush run.
type RunResult string

const (
	RunNoData  RunResult = "no_data"
	RunNewData RunResult = "new_data"
	RunFailed  RunResult = "failed"
)

// SchedulerPort is the pluggable registration surface for the OS-level
// periodic trigger. The core scheduler depends on this interface; the
// concrete ticker lives in internal/worker.
type SchedulerPort interface {
	Register() error
	Unregister() error
	IsRegistered() bool
}

// SubmissionQueue is the submission slice of the Local Store the scheduler
// flushes.
type SubmissionQueue interface {
	ListUnsynced(ctx context.Context, userEmail string) ([]model.OfflineSubmission, error)
	MarkSynced(ctx context.Context, id string) error
	IncrementRetry(ctx context.Context, id string) error
}

// QuizQueue is the quiz-attempt slice of the Local Store the scheduler
// flushes.
type QuizQueue interface {
	ListUnsynced(ctx context.Context, userEmail string) ([]model.OfflineQuizAttempt, error)
	MarkSynced(ctx context.Context, assessmentID int64, userEmail string) error
	IncrementRetry(ctx context.Context, assessmentID int64, userEmail string) error
}

// AccountResolver resolves the device's active user for a run.
type AccountResolver interface {
	ActiveUserEmail(ctx context.Context) (string, error)
}

// SchedulerService executes one flush run over the unsynced snapshot:
// Idle → Scanning → Flushing(i) → Idle. Items are flushed sequentially —
// all submissions first, then all quiz attempts — to bound load on the
// remote API and keep partial-failure counts easy to reason about.
type SchedulerService struct {
	submissions SubmissionQueue
	quizzes     QuizQueue
	sync        SyncClient
	accounts    AccountResolver
	conn        Reachability
	notifier    notification.Notifier
	log         zerolog.Logger

	// running makes overlapping invocations a no-op (skip, don't queue).
	running atomic.Bool
}

// NewSchedulerService creates a new SchedulerService.
func NewSchedulerService(
	submissions SubmissionQueue,
	quizzes QuizQueue,
	sync SyncClient,
	accounts AccountResolver,
	conn Reachability,
	notifier notification.Notifier,
	log zerolog.Logger,
) *SchedulerService {
	return &SchedulerService{
		submissions: submissions,
		quizzes:     quizzes,
		sync:        sync,
		accounts:    accounts,
		conn:        conn,
		notifier:    notifier,
		log:         log.With().Str("component", "sync_scheduler").Logger(),
	}
}

// RunOnce performs a single flush run. Safe to call from the periodic
// ticker, a connectivity-recovery trigger and the manual endpoint
// concurrently: only one run executes at a time.
func (s *SchedulerService) RunOnce(ctx context.Context) RunResult {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Debug().Msg("Sync run already in flight, skipping")
		return RunNoData
	}
	defer s.running.Store(false)

	// Without reachability there is nothing to attempt: skipping here keeps
	// retry_count meaning "the server saw and refused this item", so a long
	// offline stretch never pushes queued work over the retry ceiling.
	if !s.conn.Online() {
		s.log.Debug().Msg("Remote unreachable, skipping flush run")
		return RunNoData
	}

	userEmail, err := s.accounts.ActiveUserEmail(ctx)
	if err != nil || userEmail == "" {
		s.log.Debug().Msg("No active account, nothing to sync")
		return RunNoData
	}

	// Scan: snapshot the queue. Items recorded after this point belong to
	// the next run.
	subs, err := s.submissions.ListUnsynced(ctx, userEmail)
	if err != nil {
		s.log.Error().Err(err).Msg("Scanning submissions failed")
		return RunFailed
	}
	quizzes, err := s.quizzes.ListUnsynced(ctx, userEmail)
	if err != nil {
		s.log.Error().Err(err).Msg("Scanning quiz attempts failed")
		return RunFailed
	}

	if len(subs) == 0 && len(quizzes) == 0 {
		return RunNoData
	}

	s.log.Info().
		Str("user_email", userEmail).
		Int("submissions", len(subs)).
		Int("quizzes", len(quizzes)).
		Msg("Flush run started")

	successCount, failCount := 0, 0

	for _, sub := range subs {
		if s.sync.SyncOfflineSubmission(ctx, sub) {
			if err := s.submissions.MarkSynced(ctx, sub.ID); err != nil {
				s.log.Error().Err(err).Str("submission_id", sub.ID).Msg("Mark synced failed")
			}
			successCount++
			continue
		}
		failCount++
		if err := s.submissions.IncrementRetry(ctx, sub.ID); err != nil {
			s.log.Error().Err(err).Str("submission_id", sub.ID).Msg("Retry bump failed")
		}
	}

	for _, att := range quizzes {
		if s.sync.SyncOfflineQuiz(ctx, att) {
			if err := s.quizzes.MarkSynced(ctx, att.AssessmentID, att.UserEmail); err != nil {
				s.log.Error().Err(err).Int64("assessment_id", att.AssessmentID).Msg("Mark synced failed")
			}
			successCount++
			continue
		}
		failCount++
		if err := s.quizzes.IncrementRetry(ctx, att.AssessmentID, att.UserEmail); err != nil {
			s.log.Error().Err(err).Int64("assessment_id", att.AssessmentID).Msg("Retry bump failed")
		}
	}

	s.log.Info().
		Int("synced", successCount).
		Int("failed", failCount).
		Msg("Flush run finished")

	if successCount > 0 {
		s.notifier.SyncCompleted(successCount, failCount)
		return RunNewData
	}
	return RunFailed
}
