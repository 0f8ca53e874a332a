package push

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sif-backend/internal/domain"
	"sif-backend/internal/middleware"
	"sif-backend/internal/service/push"
	"sif-backend/pkg/response"
	"sif-backend/pkg/sanitize"
)

// Handler exposes the push registrar over HTTP
type Handler struct {
	registrar *push.Registrar
}

// NewHandler creates a new push handler
func NewHandler(registrar *push.Registrar) *Handler {
	return &Handler{registrar: registrar}
}

// PermissionRequest records the outcome of the OS permission prompt
type PermissionRequest struct {
	Granted bool `json:"granted"`
}

// RecordPermission stores the permission grant state
// POST /v1/push/permission
func (h *Handler) RecordPermission(c *gin.Context) {
	uid, ok := middleware.SessionUID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req PermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	h.registrar.RecordPermission(c.Request.Context(), uid, req.Granted)

	response.Success(c, http.StatusOK, gin.H{
		"granted": req.Granted,
	})
}

// TokenRequest registers a device token
type TokenRequest struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform" binding:"required,oneof=ios android web"`
}

// RegisterToken persists the device token for the session user
// POST /v1/push/token
func (h *Handler) RegisterToken(c *gin.Context) {
	uid, ok := middleware.SessionUID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	err := h.registrar.RegisterToken(c.Request.Context(), uid, sanitize.DeviceToken(req.Token), domain.DevicePlatform(req.Platform))
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Device token registered",
	})
}

// UnregisterToken drops the session user's device token
// DELETE /v1/push/token
func (h *Handler) UnregisterToken(c *gin.Context) {
	uid, ok := middleware.SessionUID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	if err := h.registrar.UnregisterToken(c.Request.Context(), uid); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Device token removed",
	})
}
