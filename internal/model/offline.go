package model

import (
	"encoding/json"
	"time"
)

// QuizStatus tracks the lifecycle of a locally recorded quiz attempt.
type QuizStatus string

const (
	QuizStatusInProgress QuizStatus = "in_progress"
	QuizStatusCompleted  QuizStatus = "completed"
)

// OfflineSubmission is a file-based assessment submission recorded while the
// device had no connectivity (or while the direct upload failed).
type OfflineSubmission struct {
	ID               string    `json:"id"`
	AssessmentID     int64     `json:"assessment_id"`
	UserEmail        string    `json:"user_email"`
	FileURI          string    `json:"file_uri"`
	OriginalFilename string    `json:"original_filename"`
	// SubmittedAt is captured at the moment the student submitted, not at
	// sync time, and must reach the server unchanged.
	SubmittedAt time.Time `json:"submitted_at"`
	Synced      bool      `json:"synced"`
	RetryCount  int       `json:"retry_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// AnswerRecord is one locally graded answer, keyed by question ID in an
// AnswerMap. Answer holds the raw selection as captured by the UI: a scalar
// option ID, a list of option IDs, or nil for an unanswered question.
type AnswerRecord struct {
	Type            string  `json:"type"`
	Answer          any     `json:"answer,omitempty"`
	SubmittedAnswer string  `json:"submitted_answer"`
	IsCorrect       bool    `json:"is_correct"`
	ScoreEarned     float64 `json:"score_earned"`
}

// AnswerMap maps question identifiers to their recorded answers.
type AnswerMap map[string]AnswerRecord

// OfflineQuizAttempt is a timed quiz taken locally. Only completed attempts
// are eligible for sync.
type OfflineQuizAttempt struct {
	AssessmentID    int64      `json:"assessment_id"`
	UserEmail       string     `json:"user_email"`
	Answers         AnswerMap  `json:"answers"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          QuizStatus `json:"status"`
	Synced          bool       `json:"synced"`
	RetryCount      int        `json:"retry_count"`
}

// CachedAttemptStatus is the server's authoritative attempt/grade snapshot,
// stored opaquely and overwritten wholesale on refresh.
type CachedAttemptStatus struct {
	AssessmentID int64           `json:"assessment_id"`
	UserEmail    string          `json:"user_email"`
	Payload      json.RawMessage `json:"payload"`
	FetchedAt    time.Time       `json:"fetched_at"`
}

// TimeTrustRecord anchors clock-tamper detection: the last server time seen
// for a user together with the device clock reading at that moment.
type TimeTrustRecord struct {
	UserEmail  string    `json:"user_email"`
	ServerTime time.Time `json:"server_time"`
	DeviceTime time.Time `json:"device_time"`
}

// Account is a locally known user. AuthToken is the remote API bearer token
// from the last online login; PasswordHash allows offline re-login.
type Account struct {
	UserEmail    string    `json:"user_email"`
	Name         string    `json:"name"`
	AuthToken    string    `json:"-"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	UpdatedAt    time.Time `json:"updated_at"`
}
