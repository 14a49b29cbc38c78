package handler

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/middleware"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/repository"
	"github.com/stemsi/exstem-client/internal/response"
	"github.com/stemsi/exstem-client/internal/service"
	"github.com/stemsi/exstem-client/internal/validator"
)

// AssessmentHandler handles the quiz-taking and assignment-submission flow.
type AssessmentHandler struct {
	cfg        *config.Config
	assessment *service.AssessmentService
}

// NewAssessmentHandler creates a new AssessmentHandler.
func NewAssessmentHandler(cfg *config.Config, assessment *service.AssessmentService) *AssessmentHandler {
	return &AssessmentHandler{cfg: cfg, assessment: assessment}
}

// StartQuiz godoc
// POST /api/v1/assessments/:assessment_id/quiz/start
func (h *AssessmentHandler) StartQuiz(c *gin.Context) {
	assessmentID, ok := parseAssessmentID(c)
	if !ok {
		return
	}

	var req model.StartQuizRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	err := h.assessment.StartQuiz(c.Request.Context(), middleware.GetUserEmail(c), assessmentID, req.DurationMinutes)
	if err != nil {
		if errors.Is(err, service.ErrTimeIntegrity) {
			response.Fail(c, http.StatusConflict, response.ErrTimeIntegrity)
			return
		}
		// Failures here span the integrity check and the attempt record,
		// not just the store.
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"started": true})
}

// SaveAnswer godoc
// PUT /api/v1/assessments/:assessment_id/quiz/answers
func (h *AssessmentHandler) SaveAnswer(c *gin.Context) {
	assessmentID, ok := parseAssessmentID(c)
	if !ok {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	rec := model.AnswerRecord{
		Type:            req.Type,
		Answer:          req.Answer,
		SubmittedAnswer: req.SubmittedAnswer,
		IsCorrect:       req.IsCorrect,
		ScoreEarned:     req.ScoreEarned,
	}

	err := h.assessment.SaveAnswer(c.Request.Context(), middleware.GetUserEmail(c), assessmentID, req.QuestionID, rec)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveAttempt) {
			response.Fail(c, http.StatusConflict, response.ErrNoActiveAttempt)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrStorage)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"saved": true})
}

// SubmitQuiz godoc
// POST /api/v1/assessments/:assessment_id/quiz/submit
// Completes the attempt; syncs immediately when reachable, otherwise the
// attempt stays queued for the background flush.
func (h *AssessmentHandler) SubmitQuiz(c *gin.Context) {
	assessmentID, ok := parseAssessmentID(c)
	if !ok {
		return
	}

	synced, err := h.assessment.SubmitQuiz(c.Request.Context(), middleware.GetUserEmail(c), assessmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveAttempt) {
			response.Fail(c, http.StatusConflict, response.ErrNoActiveAttempt)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrStorage)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"completed": true, "synced": synced})
}

// RemainingTime godoc
// GET /api/v1/assessments/:assessment_id/quiz/remaining
func (h *AssessmentHandler) RemainingTime(c *gin.Context) {
	assessmentID, ok := parseAssessmentID(c)
	if !ok {
		return
	}

	remaining, err := h.assessment.RemainingTime(c.Request.Context(), middleware.GetUserEmail(c), assessmentID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTimeIntegrity):
			response.Fail(c, http.StatusConflict, response.ErrTimeIntegrity)
		case errors.Is(err, repository.ErrNoActiveAttempt), errors.Is(err, repository.ErrNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNoActiveAttempt)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrStorage)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"remaining_seconds": int(remaining.Seconds())})
}

// SubmitAssignment godoc
// POST /api/v1/assessments/:assessment_id/assignment
// Accepts a multipart upload from the UI, spools it locally and either
// submits directly or queues it for sync.
func (h *AssessmentHandler) SubmitAssignment(c *gin.Context) {
	assessmentID, ok := parseAssessmentID(c)
	if !ok {
		return
	}

	file, err := c.FormFile("assignment_file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	if file.Size > h.cfg.MaxUploadBytes {
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
		return
	}

	// Spool under a surrogate name; the original filename travels in the
	// submission row so the server still sees it.
	spooled := filepath.Join(h.cfg.SpoolDir, uuid.New().String()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, spooled); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrStorage)
		return
	}

	queued, err := h.assessment.SubmitAssignment(c.Request.Context(), middleware.GetUserEmail(c), assessmentID, spooled, file.Filename)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrStorage)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"queued": queued})
}

// AttemptStatus godoc
// GET /api/v1/assessments/:assessment_id/attempt-status
func (h *AssessmentHandler) AttemptStatus(c *gin.Context) {
	assessmentID, ok := parseAssessmentID(c)
	if !ok {
		return
	}

	view, err := h.assessment.AttemptStatus(c.Request.Context(), middleware.GetUserEmail(c), assessmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrStorage)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": view})
}

func parseAssessmentID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("assessment_id"), 10, 64)
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}
