package domain

import (
	"time"

	"sif-backend/pkg/errors"
)

// NotificationType classifies what a notification is about
type NotificationType string

const (
	TypeNewMessage     NotificationType = "new_message"
	TypeIntentReceived NotificationType = "intent_received"
	TypeIntentReminder NotificationType = "intent_reminder"
	TypeFriendRequest  NotificationType = "friend_request"
	TypeFriendAccepted NotificationType = "friend_accepted"
	TypeSystem         NotificationType = "system"
)

// AllNotificationTypes lists every shipped notification type.
// Preference documents carry a default override entry for each of these.
var AllNotificationTypes = []NotificationType{
	TypeNewMessage,
	TypeIntentReceived,
	TypeIntentReminder,
	TypeFriendRequest,
	TypeFriendAccepted,
	TypeSystem,
}

// NotificationCategory groups types for preference overrides
type NotificationCategory string

const (
	CategoryMessages  NotificationCategory = "messages"
	CategoryReminders NotificationCategory = "reminders"
	CategorySocial    NotificationCategory = "social"
	CategorySystem    NotificationCategory = "system"
)

// AllNotificationCategories lists every shipped notification category
var AllNotificationCategories = []NotificationCategory{
	CategoryMessages,
	CategoryReminders,
	CategorySocial,
	CategorySystem,
}

// Category returns the category a notification type belongs to
func (t NotificationType) Category() NotificationCategory {
	switch t {
	case TypeNewMessage, TypeIntentReceived:
		return CategoryMessages
	case TypeIntentReminder:
		return CategoryReminders
	case TypeFriendRequest, TypeFriendAccepted:
		return CategorySocial
	default:
		return CategorySystem
	}
}

// NotificationPriority represents delivery priority on the push transport
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
)

// DefaultPriority returns the classification-derived priority for a type
func (t NotificationType) DefaultPriority() NotificationPriority {
	switch t {
	case TypeNewMessage, TypeIntentReceived:
		return PriorityHigh
	case TypeIntentReminder, TypeFriendRequest:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

// NotificationState represents the lifecycle state of a notification
type NotificationState string

const (
	StatePending   NotificationState = "pending"
	StateSent      NotificationState = "sent"
	StateDelivered NotificationState = "delivered"
	StateRead      NotificationState = "read"
	StateFailed    NotificationState = "failed"
	StateCancelled NotificationState = "cancelled"
	StateArchived  NotificationState = "archived"
)

// stateTransitions enumerates every legal lifecycle transition.
// Anything not listed here is rejected, never silently applied.
var stateTransitions = map[NotificationState][]NotificationState{
	StatePending:   {StateSent, StateFailed, StateCancelled},
	StateSent:      {StateDelivered},
	StateDelivered: {StateRead, StateArchived},
	StateRead:      {StateArchived},
	StateFailed:    {StatePending},
	StateCancelled: {},
	StateArchived:  {},
}

// CanTransitionTo reports whether moving from s to next is a legal transition
func (s NotificationState) CanTransitionTo(next NotificationState) bool {
	for _, allowed := range stateTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition returns next if the move is legal, or an invalid-transition error
func (s NotificationState) Transition(next NotificationState) (NotificationState, error) {
	if !s.CanTransitionTo(next) {
		return s, errors.InvalidTransitionError(string(s), string(next))
	}
	return next, nil
}

// CanRetry holds only in the failed state
func (s NotificationState) CanRetry() bool {
	return s == StateFailed
}

// CanCancel holds only in the pending state
func (s NotificationState) CanCancel() bool {
	return s == StatePending
}

// CanArchive holds only in the read or delivered states
func (s NotificationState) CanArchive() bool {
	return s == StateRead || s == StateDelivered
}

// IsTerminal reports whether no further transitions exist from s
func (s NotificationState) IsTerminal() bool {
	return len(stateTransitions[s]) == 0
}

// NotificationAction is a user-facing action attached to a notification
type NotificationAction struct {
	ID          string `json:"id" firestore:"id"`
	Title       string `json:"title" firestore:"title"`
	Destructive bool   `json:"destructive" firestore:"destructive"`
}

// Notification represents a single notification document.
// ID is server-assigned and empty until the document is persisted.
type Notification struct {
	ID           string                 `json:"id" firestore:"-"`
	Title        string                 `json:"title" firestore:"title"`
	Body         string                 `json:"body" firestore:"body"`
	Type         NotificationType       `json:"type" firestore:"type"`
	Payload      map[string]interface{} `json:"payload,omitempty" firestore:"payload,omitempty"`
	CreatedAt    time.Time              `json:"created_at" firestore:"createdAt,serverTimestamp"`
	ScheduledAt  *time.Time             `json:"scheduled_at,omitempty" firestore:"scheduledAt,omitempty"`
	IsRead       bool                   `json:"is_read" firestore:"isRead"`
	State        NotificationState      `json:"state" firestore:"state"`
	SenderUID    string                 `json:"sender_uid,omitempty" firestore:"senderUID,omitempty"`
	RecipientUID string                 `json:"recipient_uid" firestore:"recipientUID"`
	Priority     NotificationPriority   `json:"priority" firestore:"priority"`
	Actions      []NotificationAction   `json:"actions,omitempty" firestore:"actions,omitempty"`
}

// NotificationCreate represents data needed to create a notification.
// State, priority and category defaults are derived from the type.
type NotificationCreate struct {
	Title        string
	Body         string
	Type         NotificationType
	Payload      map[string]interface{}
	ScheduledAt  *time.Time
	SenderUID    string
	RecipientUID string
	Actions      []NotificationAction
}
