package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/response"
	"github.com/stemsi/exstem-client/internal/service"
	"github.com/stemsi/exstem-client/internal/validator"
)

// AuthHandler handles login/logout for the local agent.
type AuthHandler struct {
	authService *service.AuthService
	conn        service.Reachability
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, conn service.Reachability) *AuthHandler {
	return &AuthHandler{authService: authService, conn: conn}
}

// Login godoc
// POST /api/v1/auth/login
// Authenticates online when the remote API is reachable, otherwise falls
// back to the cached offline credentials.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctx := c.Request.Context()

	var (
		session *service.Session
		err     error
	)
	if h.conn.Online() {
		session, err = h.authService.LoginOnline(ctx, req.Email, req.Password)
		// A transport failure despite the reachable signal (flapping link)
		// still gets the offline fallback; a rejected password does not.
		if err != nil && !errors.Is(err, service.ErrInvalidCredentials) {
			session, err = h.authService.LoginOffline(ctx, req.Email, req.Password)
		}
	} else {
		session, err = h.authService.LoginOffline(ctx, req.Email, req.Password)
	}

	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		case errors.Is(err, service.ErrOfflineLoginUnavailable):
			response.Fail(c, http.StatusServiceUnavailable, response.ErrOfflineLogin)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// Logout godoc
// POST /api/v1/auth/logout
// Deactivates the current account; optionally wipes all offline data on
// the device (already confirmed by the user in the UI).
func (h *AuthHandler) Logout(c *gin.Context) {
	var req model.LogoutRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.WipeOfflineData); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrStorage)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"logged_out": true, "wiped": req.WipeOfflineData})
}

// Me godoc
// GET /api/v1/auth/me
// Returns the signed-in session, if any.
func (h *AuthHandler) Me(c *gin.Context) {
	session, err := h.authService.ActiveSession(c.Request.Context())
	if errors.Is(err, service.ErrNoActiveAccount) {
		response.Fail(c, http.StatusUnauthorized, response.ErrLoginRequired)
		return
	}
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}
