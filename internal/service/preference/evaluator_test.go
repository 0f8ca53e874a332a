package preference

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sif-backend/internal/domain"
)

func prefs() *domain.NotificationPreferences {
	p := domain.DefaultNotificationPreferences()
	return &p
}

func TestAllowed_GlobalToggleVetoes(t *testing.T) {
	p := prefs()
	p.Enabled = false

	e := NewEvaluator(p)

	// global off suppresses everything, even with overrides enabled
	for _, nt := range domain.AllNotificationTypes {
		assert.False(t, e.Allowed(nt), "type %s must be suppressed", nt)
	}
}

func TestAllowed_CategoryOverrideVetoes(t *testing.T) {
	p := prefs()
	p.CategoryOverrides[string(domain.CategoryMessages)] = domain.OverrideSetting{Enabled: false}

	e := NewEvaluator(p)

	assert.False(t, e.Allowed(domain.TypeNewMessage))
	assert.False(t, e.Allowed(domain.TypeIntentReceived))
	assert.True(t, e.Allowed(domain.TypeFriendRequest), "other categories unaffected")
}

func TestAllowed_TypeOverrideVetoes(t *testing.T) {
	p := prefs()
	p.TypeOverrides[string(domain.TypeIntentReminder)] = domain.OverrideSetting{Enabled: false}

	e := NewEvaluator(p)

	assert.False(t, e.Allowed(domain.TypeIntentReminder))
	assert.True(t, e.Allowed(domain.TypeNewMessage))
}

func TestAllowed_TypeOverrideCannotResurrect(t *testing.T) {
	p := prefs()
	p.CategoryOverrides[string(domain.CategorySocial)] = domain.OverrideSetting{Enabled: false}
	p.TypeOverrides[string(domain.TypeFriendRequest)] = domain.OverrideSetting{Enabled: true}

	e := NewEvaluator(p)

	// category veto wins even when the type override is enabled
	assert.False(t, e.Allowed(domain.TypeFriendRequest))
}

func TestAllowed_MissingOverrideFallsBack(t *testing.T) {
	p := prefs()
	delete(p.CategoryOverrides, string(domain.CategorySystem))
	delete(p.TypeOverrides, string(domain.TypeSystem))

	e := NewEvaluator(p)

	assert.True(t, e.Allowed(domain.TypeSystem))
}

func TestAllowed_NilPreferences(t *testing.T) {
	e := NewEvaluator(nil)
	assert.False(t, e.Allowed(domain.TypeNewMessage))
	assert.False(t, e.PlaySound(domain.TypeNewMessage))
	assert.False(t, e.ShowBadge(domain.TypeNewMessage))
	assert.Equal(t, "default", e.Sound(domain.TypeNewMessage))
}

func TestPlaySound_Cascade(t *testing.T) {
	p := prefs()
	e := NewEvaluator(p)
	assert.True(t, e.PlaySound(domain.TypeNewMessage))

	p.SoundEnabled = false
	assert.False(t, NewEvaluator(p).PlaySound(domain.TypeNewMessage))

	p.SoundEnabled = true
	p.TypeOverrides[string(domain.TypeNewMessage)] = domain.OverrideSetting{Enabled: true, Sound: false, Badge: true}
	assert.False(t, NewEvaluator(p).PlaySound(domain.TypeNewMessage))
	assert.True(t, NewEvaluator(p).ShowBadge(domain.TypeNewMessage))
}

func TestShowBadge_Cascade(t *testing.T) {
	p := prefs()
	e := NewEvaluator(p)
	assert.True(t, e.ShowBadge(domain.TypeNewMessage))

	p.BadgeEnabled = false
	assert.False(t, NewEvaluator(p).ShowBadge(domain.TypeNewMessage))

	p.BadgeEnabled = true
	p.TypeOverrides[string(domain.TypeNewMessage)] = domain.OverrideSetting{Enabled: true, Sound: true, Badge: false}
	assert.False(t, NewEvaluator(p).ShowBadge(domain.TypeNewMessage))
	assert.True(t, NewEvaluator(p).PlaySound(domain.TypeNewMessage))

	delete(p.TypeOverrides, string(domain.TypeNewMessage))
	assert.True(t, NewEvaluator(p).ShowBadge(domain.TypeNewMessage))
}

func TestSound_CustomOverride(t *testing.T) {
	p := prefs()
	p.TypeOverrides[string(domain.TypeIntentReceived)] = domain.OverrideSetting{
		Enabled: true, Sound: true, Badge: true, CustomSound: "chime.caf",
	}

	e := NewEvaluator(p)

	assert.Equal(t, "chime.caf", e.Sound(domain.TypeIntentReceived))
	assert.Equal(t, "default", e.Sound(domain.TypeNewMessage))
}

func TestQuietHours(t *testing.T) {
	at := func(hour, minute int) time.Time {
		return time.Date(2026, 3, 14, hour, minute, 0, 0, time.UTC)
	}

	tests := []struct {
		name    string
		enabled bool
		start   string
		end     string
		now     time.Time
		active  bool
	}{
		{"disabled window", false, "22:00", "07:00", at(23, 0), false},
		{"inside same-day window", true, "13:00", "15:00", at(14, 0), true},
		{"outside same-day window", true, "13:00", "15:00", at(16, 0), false},
		{"boundary start inclusive", true, "13:00", "15:00", at(13, 0), true},
		{"boundary end inclusive", true, "13:00", "15:00", at(15, 0), true},
		{"wrap evening side", true, "22:00", "07:00", at(23, 30), true},
		{"wrap morning side", true, "22:00", "07:00", at(6, 59), true},
		{"wrap midday outside", true, "22:00", "07:00", at(12, 0), false},
		{"malformed start", true, "25:00", "07:00", at(23, 0), false},
		{"malformed end", true, "22:00", "seven", at(23, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := prefs()
			p.QuietHoursEnabled = tt.enabled
			p.QuietHoursStart = tt.start
			p.QuietHoursEnd = tt.end

			assert.Equal(t, tt.active, NewEvaluator(p).QuietHoursActive(tt.now))
		})
	}
}
