// Package preference decides whether and how a notification is surfaced,
// given the user's preference document. Every function here is a pure
// function of its inputs: no I/O, no logging, no clock access beyond the
// caller-supplied reading.
package preference

import (
	"strconv"
	"strings"
	"time"

	"sif-backend/internal/domain"
)

// Evaluator evaluates a single preference document
type Evaluator struct {
	prefs *domain.NotificationPreferences
}

// NewEvaluator creates an evaluator over the given preference document
func NewEvaluator(prefs *domain.NotificationPreferences) Evaluator {
	return Evaluator{prefs: prefs}
}

// Allowed reports whether a notification of type t may be surfaced at all.
// The global toggle, the category override and the type override are
// independent vetoes: any one of them disabled suppresses the notification.
// A missing override entry falls back to the parent toggle.
func (e Evaluator) Allowed(t domain.NotificationType) bool {
	if e.prefs == nil || !e.prefs.Enabled {
		return false
	}
	if o, ok := e.prefs.CategoryOverride(t.Category()); ok && !o.Enabled {
		return false
	}
	if o, ok := e.prefs.TypeOverride(t); ok && !o.Enabled {
		return false
	}
	return true
}

// PlaySound reports whether a notification of type t should play a sound,
// following the same global, category, type cascade as Allowed.
func (e Evaluator) PlaySound(t domain.NotificationType) bool {
	if e.prefs == nil || !e.prefs.Enabled || !e.prefs.SoundEnabled {
		return false
	}
	if o, ok := e.prefs.CategoryOverride(t.Category()); ok && !o.Sound {
		return false
	}
	if o, ok := e.prefs.TypeOverride(t); ok && !o.Sound {
		return false
	}
	return true
}

// ShowBadge reports whether a notification of type t counts toward the badge
func (e Evaluator) ShowBadge(t domain.NotificationType) bool {
	if e.prefs == nil || !e.prefs.Enabled || !e.prefs.BadgeEnabled {
		return false
	}
	if o, ok := e.prefs.CategoryOverride(t.Category()); ok && !o.Badge {
		return false
	}
	if o, ok := e.prefs.TypeOverride(t); ok && !o.Badge {
		return false
	}
	return true
}

// Sound returns the sound to play for type t: the type override's custom
// sound when set, otherwise the platform default.
func (e Evaluator) Sound(t domain.NotificationType) string {
	if e.prefs == nil {
		return "default"
	}
	if o, ok := e.prefs.TypeOverride(t); ok && o.CustomSound != "" {
		return o.CustomSound
	}
	return "default"
}

// QuietHoursActive reports whether the quiet-hours window covers the given
// clock reading. Only hour and minute of day are compared; dates and
// timezone shifts are ignored. A window whose start is later than its end
// wraps past midnight.
func (e Evaluator) QuietHoursActive(now time.Time) bool {
	if e.prefs == nil || !e.prefs.QuietHoursEnabled {
		return false
	}

	start, ok := parseClock(e.prefs.QuietHoursStart)
	if !ok {
		return false
	}
	end, ok := parseClock(e.prefs.QuietHoursEnd)
	if !ok {
		return false
	}

	minute := now.Hour()*60 + now.Minute()
	if start <= end {
		return minute >= start && minute <= end
	}
	// Wrapping window spanning midnight
	return minute >= start || minute <= end
}

// parseClock parses "HH:MM" into minutes of day
func parseClock(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}
