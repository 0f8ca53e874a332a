// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for most remote operations
	DefaultTimeout = 30 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// JWT-related constants
const (
	// AccessTokenExpiry is the default access token lifetime
	AccessTokenExpiry = 15 * time.Minute

	// RefreshTokenExpiry is the default refresh token lifetime
	RefreshTokenExpiry = 24 * time.Hour
)

// Firestore collection names
const (
	// NotificationsCollection holds per-user notification documents
	NotificationsCollection = "notifications"

	// TokensCollection holds one device token document per user
	TokensCollection = "notification_tokens"

	// SettingsCollection holds the user_settings aggregate, one document per user
	SettingsCollection = "user_settings"
)

// Notification collection limits
const (
	// MaxRetainedNotifications caps the subscription result set; older
	// notifications are evicted from local state, not deleted remotely
	MaxRetainedNotifications = 50

	// MaxTitleLength is the maximum allowed notification title length
	MaxTitleLength = 200

	// MaxBodyLength is the maximum allowed notification body length
	MaxBodyLength = 2000
)

// Settings cache constants
const (
	// SettingsCacheTTL is how long a loaded settings aggregate stays cached
	SettingsCacheTTL = 10 * time.Minute

	// SettingsCacheMaxEntries bounds the per-process settings cache
	SettingsCacheMaxEntries = 1000

	// OfflineSnapshotExpiry is how long an offline settings snapshot is
	// trusted before the user must sync against the remote store again
	OfflineSnapshotExpiry = 7 * 24 * time.Hour
)

// Push notification constants
const (
	// PushTokenExpiry is the validity period for the cached device token mirror
	PushTokenExpiry = 30 * 24 * time.Hour // 30 days

	// BadgeMirrorExpiry is the validity period for the local badge-count mirror
	BadgeMirrorExpiry = 30 * 24 * time.Hour
)

// Banner signal constants
const (
	// BannerBufferSize bounds the in-process banner channel; when the
	// presentation layer is not draining, oldest signals are dropped
	BannerBufferSize = 16
)
