package settings

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sif-backend/internal/domain"
	"sif-backend/internal/middleware"
	"sif-backend/internal/service/session"
	"sif-backend/pkg/response"
)

// Handler exposes the per-user settings store over HTTP
type Handler struct {
	sessions *session.Manager
}

// NewHandler creates a new settings handler
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

// Get resolves the user's settings aggregate
// GET /v1/settings
func (h *Handler) Get(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	s, err := sess.Settings.Load(c.Request.Context(), sess.UID)
	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, s)
}

// Save replaces the whole settings aggregate
// PUT /v1/settings
func (h *Handler) Save(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req domain.UserSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}
	// the aggregate always belongs to the session user
	req.UID = sess.UID

	if err := sess.Settings.Save(c.Request.Context(), &req); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, sess.Settings.Current())
}

// UpdateSection replaces exactly one settings section
// PATCH /v1/settings/:section
func (h *Handler) UpdateSection(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	section := domain.SettingsSection(c.Param("section"))

	var value interface{}
	switch section {
	case domain.SectionProfile:
		value = &domain.ProfileSettings{}
	case domain.SectionPrivacy:
		value = &domain.PrivacySettings{}
	case domain.SectionNotifications:
		value = &domain.NotificationPreferences{}
	case domain.SectionAppearance:
		value = &domain.AppearanceSettings{}
	default:
		response.ValidationError(c, "Unknown settings section")
		return
	}

	if err := c.ShouldBindJSON(value); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	var err error
	switch v := value.(type) {
	case *domain.ProfileSettings:
		err = sess.Settings.UpdateSection(c.Request.Context(), sess.UID, section, *v)
	case *domain.PrivacySettings:
		err = sess.Settings.UpdateSection(c.Request.Context(), sess.UID, section, *v)
	case *domain.NotificationPreferences:
		err = sess.Settings.UpdateSection(c.Request.Context(), sess.UID, section, *v)
	case *domain.AppearanceSettings:
		err = sess.Settings.UpdateSection(c.Request.Context(), sess.UID, section, *v)
	}

	if err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, sess.Settings.Current())
}

// Reset restores the aggregate to schema defaults
// POST /v1/settings/reset
func (h *Handler) Reset(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	if err := sess.Settings.ResetToDefaults(c.Request.Context(), sess.UID); err != nil {
		response.AppError(c, err)
		return
	}

	response.Success(c, http.StatusOK, sess.Settings.Current())
}
