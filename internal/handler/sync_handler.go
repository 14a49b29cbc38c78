package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-client/internal/middleware"
	"github.com/stemsi/exstem-client/internal/repository"
	"github.com/stemsi/exstem-client/internal/response"
	"github.com/stemsi/exstem-client/internal/service"
)

// SyncHandler exposes the flush machinery to the UI: manual runs, pending
// counts, background registration and the connectivity indicator.
type SyncHandler struct {
	scheduler   *service.SchedulerService
	port        service.SchedulerPort
	conn        *service.ConnectivityService
	submissions *repository.SubmissionRepository
	quizzes     *repository.QuizAttemptRepository
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(
	scheduler *service.SchedulerService,
	port service.SchedulerPort,
	conn *service.ConnectivityService,
	submissions *repository.SubmissionRepository,
	quizzes *repository.QuizAttemptRepository,
) *SyncHandler {
	return &SyncHandler{
		scheduler:   scheduler,
		port:        port,
		conn:        conn,
		submissions: submissions,
		quizzes:     quizzes,
	}
}

// TriggerRun godoc
// POST /api/v1/sync/run
// Runs one flush synchronously and reports the outcome. An overlapping run
// yields no_data by the skip-don't-queue rule.
func (h *SyncHandler) TriggerRun(c *gin.Context) {
	result := h.scheduler.RunOnce(c.Request.Context())
	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// Pending godoc
// GET /api/v1/sync/pending
// Reports queued and stalled (retry ceiling reached) counts per kind.
func (h *SyncHandler) Pending(c *gin.Context) {
	ctx := c.Request.Context()
	userEmail := middleware.GetUserEmail(c)

	subPending, subStalled, err := h.submissions.CountPending(ctx, userEmail)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrStorage)
		return
	}
	quizPending, quizStalled, err := h.quizzes.CountPending(ctx, userEmail)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrStorage)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"submissions": gin.H{"pending": subPending, "stalled": subStalled},
		"quizzes":     gin.H{"pending": quizPending, "stalled": quizStalled},
	})
}

// EnableBackground godoc
// POST /api/v1/sync/schedule
// Registers the periodic background flush. Idempotent.
func (h *SyncHandler) EnableBackground(c *gin.Context) {
	if err := h.port.Register(); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"registered": true})
}

// DisableBackground godoc
// DELETE /api/v1/sync/schedule
// Unregisters the periodic background flush. Idempotent.
func (h *SyncHandler) DisableBackground(c *gin.Context) {
	if err := h.port.Unregister(); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"registered": false})
}

// Network godoc
// GET /api/v1/network
// Returns the connectivity signal; ?refresh=1 forces an immediate probe.
func (h *SyncHandler) Network(c *gin.Context) {
	online := h.conn.Online()
	if c.Query("refresh") == "1" {
		online = h.conn.ForceCheck(c.Request.Context())
	}
	response.Success(c, http.StatusOK, gin.H{
		"online":          online,
		"background_sync": h.port.IsRegistered(),
	})
}
