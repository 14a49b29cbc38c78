package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-client/internal/response"
	"github.com/stemsi/exstem-client/internal/service"
)

const (
	// ContextKeyUserEmail is the Gin context key for the active account.
	ContextKeyUserEmail = "user_email"
)

// RequireActiveAccount resolves the device's signed-in account and rejects
// the request if none exists. Assessment and sync routes all operate in the
// context of the active account.
func RequireActiveAccount(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		email, err := authService.ActiveUserEmail(c.Request.Context())
		if err != nil {
			response.AbortFail(c, http.StatusInternalServerError, response.ErrStorage)
			return
		}
		if email == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrLoginRequired)
			return
		}

		c.Set(ContextKeyUserEmail, email)
		c.Next()
	}
}

// GetUserEmail retrieves the active account email from the Gin context.
func GetUserEmail(c *gin.Context) string {
	val, exists := c.Get(ContextKeyUserEmail)
	if !exists {
		return ""
	}
	email, ok := val.(string)
	if !ok {
		return ""
	}
	return email
}
