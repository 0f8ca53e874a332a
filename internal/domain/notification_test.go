package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sif-backend/pkg/errors"
)

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    NotificationState
		to      NotificationState
		allowed bool
	}{
		{"pending to sent", StatePending, StateSent, true},
		{"pending to failed", StatePending, StateFailed, true},
		{"pending to cancelled", StatePending, StateCancelled, true},
		{"sent to delivered", StateSent, StateDelivered, true},
		{"delivered to read", StateDelivered, StateRead, true},
		{"delivered to archived", StateDelivered, StateArchived, true},
		{"read to archived", StateRead, StateArchived, true},
		{"failed back to pending", StateFailed, StatePending, true},
		{"pending to delivered skips sent", StatePending, StateDelivered, false},
		{"pending to read skips delivery", StatePending, StateRead, false},
		{"sent to read skips delivered", StateSent, StateRead, false},
		{"read back to delivered", StateRead, StateDelivered, false},
		{"cancelled is terminal", StateCancelled, StatePending, false},
		{"archived is terminal", StateArchived, StateRead, false},
		{"sent cannot be cancelled", StateSent, StateCancelled, false},
		{"delivered cannot fail", StateDelivered, StateFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.from.Transition(tt.to)
			if tt.allowed {
				assert.NoError(t, err)
				assert.Equal(t, tt.to, got)
			} else {
				assert.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidTransition))
				assert.Equal(t, tt.from, got, "state must not change on a rejected transition")
			}
		})
	}
}

func TestStateCapabilities(t *testing.T) {
	assert.True(t, StateFailed.CanRetry())
	assert.False(t, StatePending.CanRetry())
	assert.False(t, StateCancelled.CanRetry())

	assert.True(t, StatePending.CanCancel())
	assert.False(t, StateSent.CanCancel())

	assert.True(t, StateRead.CanArchive())
	assert.True(t, StateDelivered.CanArchive())
	assert.False(t, StatePending.CanArchive())
	assert.False(t, StateArchived.CanArchive())
}

func TestTypeClassification(t *testing.T) {
	assert.Equal(t, CategoryMessages, TypeNewMessage.Category())
	assert.Equal(t, CategoryMessages, TypeIntentReceived.Category())
	assert.Equal(t, CategoryReminders, TypeIntentReminder.Category())
	assert.Equal(t, CategorySocial, TypeFriendRequest.Category())
	assert.Equal(t, CategorySocial, TypeFriendAccepted.Category())
	assert.Equal(t, CategorySystem, TypeSystem.Category())

	// unknown types fall into the system bucket
	assert.Equal(t, CategorySystem, NotificationType("mystery").Category())

	assert.Equal(t, PriorityHigh, TypeNewMessage.DefaultPriority())
	assert.Equal(t, PriorityHigh, TypeIntentReceived.DefaultPriority())
	assert.Equal(t, PriorityNormal, TypeIntentReminder.DefaultPriority())
	assert.Equal(t, PriorityLow, TypeSystem.DefaultPriority())
}

func TestDefaultUserSettings(t *testing.T) {
	s := DefaultUserSettings("user-1")

	assert.Equal(t, "user-1", s.UID)
	assert.Equal(t, CurrentSettingsSchemaVersion, s.Version)
	assert.True(t, s.Notifications.Enabled)

	// every category and type ships with an override entry
	assert.Len(t, s.Notifications.CategoryOverrides, len(AllNotificationCategories))
	assert.Len(t, s.Notifications.TypeOverrides, len(AllNotificationTypes))

	for _, c := range AllNotificationCategories {
		override, ok := s.Notifications.CategoryOverride(c)
		assert.True(t, ok)
		assert.True(t, override.Enabled)
	}
}

func TestUserSettingsClone(t *testing.T) {
	original := DefaultUserSettings("user-1")
	clone := original.Clone()

	clone.Profile.DisplayName = "changed"
	clone.Notifications.TypeOverrides[string(TypeSystem)] = OverrideSetting{Enabled: false}

	assert.NotEqual(t, original.Profile.DisplayName, clone.Profile.DisplayName)
	override, _ := original.Notifications.TypeOverride(TypeSystem)
	assert.True(t, override.Enabled, "mutating the clone must not touch the original")
}
