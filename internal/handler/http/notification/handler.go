package notification

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sif-backend/internal/domain"
	"sif-backend/internal/middleware"
	"sif-backend/internal/service/session"
	"sif-backend/pkg/response"
	"sif-backend/pkg/sanitize"
)

// Handler exposes the per-user notification store over HTTP
type Handler struct {
	sessions *session.Manager
}

// NewHandler creates a new notification handler
func NewHandler(sessions *session.Manager) *Handler {
	return &Handler{sessions: sessions}
}

// session resolves the authenticated user's live session, opening the
// remote subscriptions on first use. Writes the error response itself.
func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	uid, ok := middleware.SessionUID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return nil, false
	}

	sess, err := h.sessions.Session(uid)
	if err != nil {
		response.AppError(c, err)
		return nil, false
	}
	return sess, true
}

// List returns the user's notification collection, newest first
// GET /v1/notifications
func (h *Handler) List(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"notifications": sess.Notifications.Notifications(),
		"unread_count":  sess.Notifications.UnreadCount(),
		"badge_count":   sess.Notifications.BadgeCount(),
	})
}

// Count returns the unread notification count
// GET /v1/notifications/count
func (h *Handler) Count(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"unread_count": sess.Notifications.UnreadCount(),
	})
}

// CreateRequest is the payload for creating a notification
type CreateRequest struct {
	Title        string                 `json:"title" binding:"required"`
	Body         string                 `json:"body"`
	Type         string                 `json:"type" binding:"required"`
	RecipientUID string                 `json:"recipient_uid" binding:"required"`
	Payload      map[string]interface{} `json:"payload"`
	ScheduledAt  *time.Time             `json:"scheduled_at"`
}

// Create persists a new notification and fans it out to the recipient
// POST /v1/notifications
func (h *Handler) Create(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	n, err := sess.Notifications.Create(c.Request.Context(), &domain.NotificationCreate{
		Title:        sanitize.NotificationText(req.Title),
		Body:         sanitize.NotificationText(req.Body),
		Type:         domain.NotificationType(req.Type),
		Payload:      req.Payload,
		ScheduledAt:  req.ScheduledAt,
		SenderUID:    sess.UID,
		RecipientUID: req.RecipientUID,
	})
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, n)
}

// MarkRead marks a notification as read
// POST /v1/notifications/:id/read
func (h *Handler) MarkRead(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if id == "" {
		response.ValidationError(c, "Notification id required")
		return
	}

	if err := sess.Notifications.MarkRead(c.Request.Context(), id); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Notification marked as read",
	})
}

// MarkAllRead marks every unread notification as read in one batch
// POST /v1/notifications/read-all
func (h *Handler) MarkAllRead(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	if err := sess.Notifications.MarkAllRead(c.Request.Context(), sess.UID); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "All notifications marked as read",
	})
}

// Delete removes a notification
// DELETE /v1/notifications/:id
func (h *Handler) Delete(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if id == "" {
		response.ValidationError(c, "Notification id required")
		return
	}

	if err := sess.Notifications.Delete(c.Request.Context(), id); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Notification deleted",
	})
}

// IngestRequest is an inbound transport notification
type IngestRequest struct {
	ID      string                 `json:"id" binding:"required"`
	Title   string                 `json:"title" binding:"required"`
	Body    string                 `json:"body"`
	Type    string                 `json:"type" binding:"required"`
	Payload map[string]interface{} `json:"payload"`
}

// Ingest gates an inbound notification through the user's preferences
// POST /v1/notifications/ingest
func (h *Handler) Ingest(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	n := domain.Notification{
		ID:           req.ID,
		Title:        sanitize.NotificationText(req.Title),
		Body:         sanitize.NotificationText(req.Body),
		Type:         domain.NotificationType(req.Type),
		Payload:      req.Payload,
		RecipientUID: sess.UID,
		CreatedAt:    time.Now().UTC(),
		State:        domain.StateDelivered,
	}

	if err := sess.Notifications.IngestInbound(c.Request.Context(), n); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{
		"message": "Notification ingested",
	})
}
