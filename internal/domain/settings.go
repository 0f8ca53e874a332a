package domain

import "time"

// CurrentSettingsSchemaVersion is the schema version every UserSettings
// document must carry before it is exposed to application code.
// v1: flat notification toggles. v2: per-category and per-type overrides,
// quiet hours. v3: digest settings, appearance sub-document.
const CurrentSettingsSchemaVersion = 3

// SettingsSection names one sub-document of the UserSettings aggregate
type SettingsSection string

const (
	SectionProfile       SettingsSection = "profile"
	SectionPrivacy       SettingsSection = "privacy"
	SectionNotifications SettingsSection = "notifications"
	SectionAppearance    SettingsSection = "appearance"
)

// ProfileSettings holds the user-visible profile sub-document
type ProfileSettings struct {
	DisplayName   string `json:"display_name" firestore:"displayName" validate:"required,min=1,max=100"`
	StatusMessage string `json:"status_message" firestore:"statusMessage" validate:"max=280"`
	AvatarURL     string `json:"avatar_url,omitempty" firestore:"avatarURL,omitempty" validate:"omitempty,url"`
}

// PrivacySettings holds the privacy sub-document
type PrivacySettings struct {
	DiscoverableByEmail bool `json:"discoverable_by_email" firestore:"discoverableByEmail"`
	ShowReadReceipts    bool `json:"show_read_receipts" firestore:"showReadReceipts"`
	ShowOnlineStatus    bool `json:"show_online_status" firestore:"showOnlineStatus"`
}

// AppearanceSettings holds the appearance sub-document
type AppearanceSettings struct {
	Theme     string `json:"theme" firestore:"theme" validate:"oneof=system light dark"`
	FontScale int    `json:"font_scale" firestore:"fontScale" validate:"min=50,max=200"`
}

// OverrideSetting is one per-category or per-type preference override entry
type OverrideSetting struct {
	Enabled     bool     `json:"enabled" firestore:"enabled"`
	Sound       bool     `json:"sound" firestore:"sound"`
	Badge       bool     `json:"badge" firestore:"badge"`
	CustomSound string   `json:"custom_sound,omitempty" firestore:"customSound,omitempty"`
	Actions     []string `json:"actions,omitempty" firestore:"actions,omitempty"`
}

// NotificationPreferences is the per-user notification preference document.
// Top-level toggles compose with per-category and per-type override maps;
// evaluation tolerates a missing entry by falling back to the parent toggle.
type NotificationPreferences struct {
	Enabled            bool `json:"enabled" firestore:"enabled"`
	SoundEnabled       bool `json:"sound_enabled" firestore:"soundEnabled"`
	BadgeEnabled       bool `json:"badge_enabled" firestore:"badgeEnabled"`
	BannerEnabled      bool `json:"banner_enabled" firestore:"bannerEnabled"`
	LockScreenEnabled  bool `json:"lock_screen_enabled" firestore:"lockScreenEnabled"`
	NotifCenterEnabled bool `json:"notification_center_enabled" firestore:"notificationCenterEnabled"`

	CategoryOverrides map[string]OverrideSetting `json:"category_overrides" firestore:"categoryOverrides"`
	TypeOverrides     map[string]OverrideSetting `json:"type_overrides" firestore:"typeOverrides"`

	QuietHoursEnabled bool   `json:"quiet_hours_enabled" firestore:"quietHoursEnabled"`
	QuietHoursStart   string `json:"quiet_hours_start" firestore:"quietHoursStart" validate:"omitempty,len=5"`
	QuietHoursEnd     string `json:"quiet_hours_end" firestore:"quietHoursEnd" validate:"omitempty,len=5"`

	DigestEnabled bool `json:"digest_enabled" firestore:"digestEnabled"`
	DigestHour    int  `json:"digest_hour" firestore:"digestHour" validate:"min=0,max=23"`
	MaxPerHour    int  `json:"max_per_hour" firestore:"maxPerHour" validate:"min=0"`
}

// CategoryOverride returns the override entry for a category, if present
func (p *NotificationPreferences) CategoryOverride(c NotificationCategory) (OverrideSetting, bool) {
	o, ok := p.CategoryOverrides[string(c)]
	return o, ok
}

// TypeOverride returns the override entry for a type, if present
func (p *NotificationPreferences) TypeOverride(t NotificationType) (OverrideSetting, bool) {
	o, ok := p.TypeOverrides[string(t)]
	return o, ok
}

// UserSettings is the aggregate root for all per-user settings.
// It is the sole persistence unit for its sub-documents: section updates
// always rewrite the whole aggregate, never a partial document.
type UserSettings struct {
	UID           string                  `json:"uid" firestore:"uid" validate:"required"`
	Profile       ProfileSettings         `json:"profile" firestore:"profile" validate:"required"`
	Privacy       PrivacySettings         `json:"privacy" firestore:"privacy"`
	Notifications NotificationPreferences `json:"notifications" firestore:"notifications" validate:"required"`
	Appearance    AppearanceSettings      `json:"appearance" firestore:"appearance"`
	Version       int                     `json:"version" firestore:"version" validate:"min=1"`
	LastUpdated   time.Time               `json:"last_updated" firestore:"lastUpdated"`
}

// DefaultNotificationPreferences builds the shipped preference defaults with
// an override entry for every category and every type.
func DefaultNotificationPreferences() NotificationPreferences {
	categories := make(map[string]OverrideSetting, len(AllNotificationCategories))
	for _, c := range AllNotificationCategories {
		categories[string(c)] = OverrideSetting{Enabled: true, Sound: true, Badge: true}
	}
	types := make(map[string]OverrideSetting, len(AllNotificationTypes))
	for _, t := range AllNotificationTypes {
		types[string(t)] = OverrideSetting{Enabled: true, Sound: true, Badge: true}
	}

	return NotificationPreferences{
		Enabled:            true,
		SoundEnabled:       true,
		BadgeEnabled:       true,
		BannerEnabled:      true,
		LockScreenEnabled:  true,
		NotifCenterEnabled: true,
		CategoryOverrides:  categories,
		TypeOverrides:      types,
		QuietHoursEnabled:  false,
		QuietHoursStart:    "22:00",
		QuietHoursEnd:      "08:00",
		DigestEnabled:      false,
		DigestHour:         9,
		MaxPerHour:         0,
	}
}

// DefaultUserSettings builds a schema-default aggregate for a first session
func DefaultUserSettings(uid string) *UserSettings {
	return &UserSettings{
		UID: uid,
		Profile: ProfileSettings{
			DisplayName: "New User",
		},
		Privacy: PrivacySettings{
			DiscoverableByEmail: true,
			ShowReadReceipts:    true,
			ShowOnlineStatus:    true,
		},
		Notifications: DefaultNotificationPreferences(),
		Appearance: AppearanceSettings{
			Theme:     "system",
			FontScale: 100,
		},
		Version:     CurrentSettingsSchemaVersion,
		LastUpdated: time.Now().UTC(),
	}
}

// Clone returns a deep copy of the aggregate so backups and migrations never
// alias the live in-memory value.
func (s *UserSettings) Clone() *UserSettings {
	if s == nil {
		return nil
	}
	out := *s
	out.Notifications.CategoryOverrides = cloneOverrides(s.Notifications.CategoryOverrides)
	out.Notifications.TypeOverrides = cloneOverrides(s.Notifications.TypeOverrides)
	return &out
}

func cloneOverrides(in map[string]OverrideSetting) map[string]OverrideSetting {
	if in == nil {
		return nil
	}
	out := make(map[string]OverrideSetting, len(in))
	for k, v := range in {
		if v.Actions != nil {
			v.Actions = append([]string(nil), v.Actions...)
		}
		out[k] = v
	}
	return out
}
