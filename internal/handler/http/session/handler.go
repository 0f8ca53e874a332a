package session

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sif-backend/internal/middleware"
	"sif-backend/internal/service/session"
	"sif-backend/pkg/response"
)

// Handler exposes session lifecycle operations over HTTP
type Handler struct {
	sessions *session.Manager
}

// NewHandler creates a new session handler
func NewHandler(sessions *session.Manager) *Handler {
	return &Handler{sessions: sessions}
}

// ForegroundRequest is the client-reported app lifecycle state. It is
// independent of the OS push permission: a user can be foreground with
// push denied, or background with push granted.
type ForegroundRequest struct {
	Foreground *bool `json:"foreground" binding:"required"`
}

// Foreground records whether the client app is currently foreground.
// Banner signals are only emitted while foreground.
// POST /v1/session/foreground
func (h *Handler) Foreground(c *gin.Context) {
	uid, ok := middleware.SessionUID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req ForegroundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	sess, err := h.sessions.Session(uid)
	if err != nil {
		response.AppError(c, err)
		return
	}
	sess.Notifications.SetForeground(*req.Foreground)

	response.Success(c, http.StatusOK, gin.H{
		"foreground": *req.Foreground,
	})
}

// Close tears down the user's session and its remote subscriptions.
// The next authenticated request reopens them.
// DELETE /v1/session
func (h *Handler) Close(c *gin.Context) {
	uid, ok := middleware.SessionUID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	h.sessions.Close(uid)

	response.Success(c, http.StatusOK, gin.H{
		"message": "Session closed",
	})
}
