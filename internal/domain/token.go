package domain

import "time"

// DevicePlatform tags which push transport a token belongs to
type DevicePlatform string

const (
	PlatformIOS     DevicePlatform = "ios"
	PlatformAndroid DevicePlatform = "android"
	PlatformWeb     DevicePlatform = "web"
)

// DeviceToken is the push token record for a user, keyed by user id.
// Overwrite semantics: one active record per user; a new device replaces
// the previous one. Records are appended or overwritten, never deleted
// by the sync core.
type DeviceToken struct {
	Token       string         `json:"token" firestore:"token"`
	UserID      string         `json:"user_id" firestore:"userId"`
	Platform    DevicePlatform `json:"platform" firestore:"platform"`
	LastUpdated time.Time      `json:"last_updated" firestore:"lastUpdated"`
	Active      bool           `json:"active" firestore:"active"`
}
