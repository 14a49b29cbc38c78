package model

// Request DTOs for the loopback API, validated through gin binding.

// LoginRequest authenticates against the remote API when reachable, or
// against the cached credentials when offline.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// LogoutRequest optionally wipes every offline account on the device.
// WipeOfflineData is destructive and must be confirmed by the user upstream.
type LogoutRequest struct {
	WipeOfflineData bool `json:"wipe_offline_data"`
}

// StartQuizRequest opens an in-progress attempt for a timed quiz.
type StartQuizRequest struct {
	DurationMinutes int `json:"duration_minutes" binding:"required,min=1"`
}

// SaveAnswerRequest records or replaces a single answer on the active attempt.
type SaveAnswerRequest struct {
	QuestionID      string  `json:"question_id" binding:"required"`
	Type            string  `json:"type" binding:"required"`
	Answer          any     `json:"answer"`
	SubmittedAnswer string  `json:"submitted_answer"`
	IsCorrect       bool    `json:"is_correct"`
	ScoreEarned     float64 `json:"score_earned"`
}
