// Package push sends notifications to device tokens through FCM or APNs.
// The sync core only registers tokens and fans out newly created
// notifications; delivery guarantees belong to the transport itself.
package push

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"sif-backend/pkg/logger"
)

// Provider defines the interface for sending push notifications
type Provider interface {
	Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error)
}

// SendResult contains the result of a push notification send operation
type SendResult struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
	Errors        []error
}

// Notification represents a push notification payload
type Notification struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority,omitempty"` // high, normal, low
	Sound    string            `json:"sound,omitempty"`
	Badge    *int              `json:"badge,omitempty"`
	Category string            `json:"category,omitempty"`
}

// MockProvider is a mock implementation for development and testing
type MockProvider struct {
	// SendErr, when set, makes every Send call fail with this error
	SendErr error

	mu   sync.Mutex
	Sent []*Notification
}

// Send implements the Provider interface, recording the notification and
// reporting success for every token.
func (m *MockProvider) Send(_ context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	if m.SendErr != nil {
		return nil, m.SendErr
	}

	m.mu.Lock()
	m.Sent = append(m.Sent, notification)
	m.mu.Unlock()

	logger.Debug("MockProvider: sending notification",
		zap.String("title", notification.Title),
		zap.Int("token_count", len(tokens)))

	return &SendResult{
		SuccessCount: len(tokens),
	}, nil
}

// SentCount returns how many notifications have been sent through the mock
func (m *MockProvider) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// maskToken returns a safe masked version of a push token for logging.
// Shows only the first and last 8 characters.
func maskToken(token string) string {
	if len(token) <= 16 {
		return "********"
	}
	return token[:8] + "..." + token[len(token)-8:]
}
