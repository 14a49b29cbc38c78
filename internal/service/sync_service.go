package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/apiclient"
	"github.com/stemsi/exstem-client/internal/model"
)

// RemoteAPI is the slice of the remote LMS API the Sync Client uses.
type RemoteAPI interface {
	SubmitAssignment(ctx context.Context, assessmentID int64, filePath, originalFilename string, submittedAt time.Time) error
	SyncOfflineQuiz(ctx context.Context, assessmentID int64, payload apiclient.QuizSyncPayload) error
	AttemptStatus(ctx context.Context, assessmentID int64) (json.RawMessage, error)
}

// AttemptStatusStore is the slice of the Local Store the Sync Client
// writes server snapshots into.
type AttemptStatusStore interface {
	Save(ctx context.Context, status model.CachedAttemptStatus) error
}

// SyncClient uploads queued offline items. Results are boolean only: every
// failure class (network, validation, server) is logged and collapsed to
// false because the retry policy treats them all as "retry next cycle".
type SyncClient interface {
	SyncOfflineSubmission(ctx context.Context, sub model.OfflineSubmission) bool
	SyncOfflineQuiz(ctx context.Context, att model.OfflineQuizAttempt) bool
}

// SyncService is the production SyncClient backed by the remote API.
type SyncService struct {
	api      RemoteAPI
	statuses AttemptStatusStore
	log      zerolog.Logger
}

// NewSyncService creates a new SyncService.
func NewSyncService(api RemoteAPI, statuses AttemptStatusStore, log zerolog.Logger) *SyncService {
	return &SyncService{
		api:      api,
		statuses: statuses,
		log:      log.With().Str("component", "sync_client").Logger(),
	}
}

// SyncOfflineSubmission uploads one queued file submission. The original
// submitted_at travels with the upload so the server records the student's
// intent time, never the upload time.
func (s *SyncService) SyncOfflineSubmission(ctx context.Context, sub model.OfflineSubmission) bool {
	err := s.api.SubmitAssignment(ctx, sub.AssessmentID, sub.FileURI, sub.OriginalFilename, sub.SubmittedAt)
	if err != nil {
		s.log.Warn().Err(err).
			Str("submission_id", sub.ID).
			Int64("assessment_id", sub.AssessmentID).
			Msg("Submission sync failed")
		return false
	}

	s.log.Info().
		Str("submission_id", sub.ID).
		Int64("assessment_id", sub.AssessmentID).
		Msg("Submission synced")
	return true
}

// SyncOfflineQuiz uploads one completed quiz attempt and, on success,
// refreshes the cached authoritative attempt status. A failed refresh is
// logged but never downgrades the sync's own result.
func (s *SyncService) SyncOfflineQuiz(ctx context.Context, att model.OfflineQuizAttempt) bool {
	answers, err := FormatAnswers(att.Answers)
	if err != nil {
		s.log.Warn().Err(err).
			Int64("assessment_id", att.AssessmentID).
			Msg("Quiz answers could not be formatted")
		return false
	}

	completedAt := att.StartTime
	if att.EndTime != nil {
		completedAt = *att.EndTime
	}

	payload := apiclient.QuizSyncPayload{
		Answers:     answers,
		StartedAt:   att.StartTime.UTC().Format(time.RFC3339),
		CompletedAt: completedAt.UTC().Format(time.RFC3339),
		SubmittedAt: completedAt.UTC().Format(time.RFC3339),
	}

	if err := s.api.SyncOfflineQuiz(ctx, att.AssessmentID, payload); err != nil {
		s.log.Warn().Err(err).
			Int64("assessment_id", att.AssessmentID).
			Msg("Quiz sync failed")
		return false
	}

	s.log.Info().
		Int64("assessment_id", att.AssessmentID).
		Int("answers", len(answers)).
		Msg("Quiz attempt synced")

	s.refreshAttemptStatus(ctx, att.AssessmentID, att.UserEmail)
	return true
}

// RefreshAttemptStatus fetches the authoritative snapshot and overwrites
// the local cache wholesale.
func (s *SyncService) RefreshAttemptStatus(ctx context.Context, assessmentID int64, userEmail string) error {
	payload, err := s.api.AttemptStatus(ctx, assessmentID)
	if err != nil {
		return fmt.Errorf("fetch attempt status: %w", err)
	}
	return s.statuses.Save(ctx, model.CachedAttemptStatus{
		AssessmentID: assessmentID,
		UserEmail:    userEmail,
		Payload:      payload,
		FetchedAt:    time.Now(),
	})
}

func (s *SyncService) refreshAttemptStatus(ctx context.Context, assessmentID int64, userEmail string) {
	if err := s.RefreshAttemptStatus(ctx, assessmentID, userEmail); err != nil {
		s.log.Warn().Err(err).
			Int64("assessment_id", assessmentID).
			Msg("Attempt status refresh failed after sync")
	}
}

// FormatAnswers reshapes the locally encoded answer map into the server's
// ordered list. Question IDs are numeric on the wire; entries whose ID
// cannot be coerced abort the transform so the attempt retries verbatim.
func FormatAnswers(answers model.AnswerMap) ([]apiclient.QuizAnswer, error) {
	out := make([]apiclient.QuizAnswer, 0, len(answers))
	for qid, rec := range answers {
		id, err := strconv.ParseInt(qid, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("non-numeric question id %q", qid)
		}
		out = append(out, apiclient.QuizAnswer{
			QuestionID:      id,
			QuestionType:    rec.Type,
			SubmittedAnswer: rec.SubmittedAnswer,
			SelectedOptions: NormalizeSelectedOptions(rec.Answer),
			IsCorrect:       rec.IsCorrect,
			ScoreEarned:     rec.ScoreEarned,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out, nil
}

// NormalizeSelectedOptions coerces a raw captured answer into a numeric
// option-ID array: a scalar becomes a one-element array, an array keeps its
// length with each element coerced, nil becomes an empty array.
func NormalizeSelectedOptions(answer any) []int64 {
	switch v := answer.(type) {
	case nil:
		return []int64{}
	case []any:
		out := make([]int64, 0, len(v))
		for _, item := range v {
			if n, ok := coerceOptionID(item); ok {
				out = append(out, n)
			}
		}
		return out
	case []int:
		out := make([]int64, len(v))
		for i, n := range v {
			out[i] = int64(n)
		}
		return out
	case []int64:
		return append([]int64(nil), v...)
	case []float64:
		out := make([]int64, len(v))
		for i, n := range v {
			out[i] = int64(n)
		}
		return out
	case []string:
		out := make([]int64, 0, len(v))
		for _, s := range v {
			if n, ok := coerceOptionID(s); ok {
				out = append(out, n)
			}
		}
		return out
	default:
		if n, ok := coerceOptionID(v); ok {
			return []int64{n}
		}
		return []int64{}
	}
}

func coerceOptionID(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
