package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"sif-backend/internal/domain"
	"sif-backend/internal/service/preference"
	"sif-backend/pkg/constants"
	"sif-backend/pkg/errors"
	"sif-backend/pkg/logger"
	"sif-backend/pkg/metrics"
	"sif-backend/pkg/push"
	"sif-backend/pkg/resilience"
)

// Subscription delivers full remote result sets, newest first
type Subscription interface {
	Snapshots() <-chan []domain.Notification
	Err() error
	Stop()
}

// Repository is the remote persistence contract for notifications
type Repository interface {
	Create(ctx context.Context, n *domain.Notification) (string, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, ids []string) error
	UpdateState(ctx context.Context, id string, state domain.NotificationState) error
	Delete(ctx context.Context, id string) error
	Subscribe(ctx context.Context, recipientUID string, limit int) (Subscription, error)
}

// TokenSource resolves the recipient's registered device token for fan-out
type TokenSource interface {
	Get(ctx context.Context, uid string) (*domain.DeviceToken, error)
}

// BadgeMirror persists the badge count derived from unread notifications
// and reads it back when a push payload needs the recipient's current badge
type BadgeMirror interface {
	SetBadge(ctx context.Context, uid string, count int) error
	GetBadge(ctx context.Context, uid string) (int, error)
}

// PreferenceResolver looks up a recipient's notification preferences so
// fan-out can honor them. Unlike the evaluator installed via SetEvaluator,
// which belongs to the session owner, this resolves preferences for
// arbitrary recipients.
type PreferenceResolver interface {
	NotificationPreferences(ctx context.Context, uid string) (*domain.NotificationPreferences, error)
}

// PermissionSource reports whether a recipient may receive push delivery
type PermissionSource interface {
	PushAllowed(uid string) bool
}

// Store owns the ordered in-memory notification collection for the active
// session. Remote state is authoritative: every local mutation happens only
// after the corresponding remote write is acknowledged, and every remote
// snapshot fully replaces local state.
type Store struct {
	repo        Repository
	tokens      TokenSource
	badges      BadgeMirror
	provider    push.Provider
	metrics     *metrics.Metrics
	breaker     *resilience.PushResilience
	prefs       PreferenceResolver
	permissions PermissionSource

	mu            sync.RWMutex
	notifications []domain.Notification
	sub           Subscription
	userID        string
	foreground    bool
	lastErr       error

	banner chan domain.Notification

	evaluatorMu sync.RWMutex
	evaluator   *preference.Evaluator
}

// NewStore creates a new notification store. tokens, badges, provider and
// metrics may be nil; the corresponding side effects are skipped.
func NewStore(repo Repository, tokens TokenSource, badges BadgeMirror, provider push.Provider, m *metrics.Metrics) *Store {
	return &Store{
		repo:     repo,
		tokens:   tokens,
		badges:   badges,
		provider: provider,
		metrics:  m,
		banner:   make(chan domain.Notification, constants.BannerBufferSize),
	}
}

// SetResilience installs the circuit breaker guarding push transport calls.
// Without one, sends go to the provider directly.
func (s *Store) SetResilience(b *resilience.PushResilience) {
	s.breaker = b
}

// SetPreferenceResolver installs the recipient preference lookup used
// during fan-out. Without one, fan-out skips preference checks.
func (s *Store) SetPreferenceResolver(r PreferenceResolver) {
	s.prefs = r
}

// SetPermissionSource installs the push permission lookup used during
// fan-out. Without one, every recipient is assumed reachable.
func (s *Store) SetPermissionSource(p PermissionSource) {
	s.permissions = p
}

// SetEvaluator installs the preference evaluator used to gate inbound
// notifications. Called whenever the settings aggregate changes.
func (s *Store) SetEvaluator(e *preference.Evaluator) {
	s.evaluatorMu.Lock()
	s.evaluator = e
	s.evaluatorMu.Unlock()
}

// SetForeground records whether the session is foreground. Banner signals
// are only emitted in the foreground.
func (s *Store) SetForeground(foreground bool) {
	s.mu.Lock()
	s.foreground = foreground
	s.mu.Unlock()
}

// Banner exposes the in-process banner signal channel
func (s *Store) Banner() <-chan domain.Notification {
	return s.banner
}

// Err returns the store's current error value, set by the most recent
// failed operation and cleared by the next successful one.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *Store) setErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// Notifications returns a copy of the ordered collection, newest first
func (s *Store) Notifications() []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

// UnreadCount returns the number of unread notifications
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unreadLocked()
}

func (s *Store) unreadLocked() int {
	count := 0
	for i := range s.notifications {
		if !s.notifications[i].IsRead {
			count++
		}
	}
	return count
}

// BadgeCount mirrors the unread count
func (s *Store) BadgeCount() int {
	return s.UnreadCount()
}

// Subscribe opens the remote snapshot subscription for userID, tearing
// down any previous subscription first. Calling it twice for the same user
// is safe and leaves exactly one live listener.
func (s *Store) Subscribe(ctx context.Context, userID string) error {
	s.Unsubscribe()

	sub, err := s.repo.Subscribe(ctx, userID, constants.MaxRetainedNotifications)
	if err != nil {
		appErr := errors.ListenerError("notifications", err)
		s.setErr(appErr)
		return appErr
	}

	s.mu.Lock()
	s.sub = sub
	s.userID = userID
	s.mu.Unlock()

	go s.consume(ctx, sub)
	return nil
}

// Unsubscribe tears down the remote subscription and clears local state
func (s *Store) Unsubscribe() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.userID = ""
	s.notifications = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Stop()
	}
}

// consume applies each remote snapshot as the new local truth
func (s *Store) consume(ctx context.Context, sub Subscription) {
	for snapshot := range sub.Snapshots() {
		s.applySnapshot(ctx, snapshot)
	}
	if err := sub.Err(); err != nil {
		s.setErr(errors.ListenerError("notifications", err))
		logger.Error("Notification subscription terminated", zap.Error(err))
	}
}

func (s *Store) applySnapshot(ctx context.Context, snapshot []domain.Notification) {
	s.mu.Lock()
	s.notifications = snapshot
	s.lastErr = nil
	unread := s.unreadLocked()
	userID := s.userID
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordSnapshotApplied(constants.NotificationsCollection)
		s.metrics.SetUnreadCount(unread)
	}
	s.mirrorBadge(ctx, userID, unread)
}

func (s *Store) mirrorBadge(ctx context.Context, userID string, unread int) {
	if s.badges == nil || userID == "" {
		return
	}
	if err := s.badges.SetBadge(ctx, userID, unread); err != nil {
		logger.Warn("Failed to mirror badge count",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

// Create persists a new notification in the pending state. Priority and
// category derive from the type unless the input overrides them. The local
// collection is not touched; the subscription echo inserts the document.
// After a successful persist the notification fans out to the recipient's
// registered device token.
func (s *Store) Create(ctx context.Context, input *domain.NotificationCreate) (*domain.Notification, error) {
	if input.Title == "" || input.RecipientUID == "" {
		return nil, errors.InvalidInputError("notification requires a title and a recipient")
	}
	if len(input.Title) > constants.MaxTitleLength || len(input.Body) > constants.MaxBodyLength {
		return nil, errors.InvalidInputError("notification title or body too long")
	}

	n := &domain.Notification{
		Title:        input.Title,
		Body:         input.Body,
		Type:         input.Type,
		Payload:      input.Payload,
		ScheduledAt:  input.ScheduledAt,
		SenderUID:    input.SenderUID,
		RecipientUID: input.RecipientUID,
		State:        domain.StatePending,
		Priority:     input.Type.DefaultPriority(),
		Actions:      input.Actions,
	}

	id, err := s.repo.Create(ctx, n)
	if err != nil {
		appErr := errors.WriteError("notification", err)
		s.setErr(appErr)
		return nil, appErr
	}
	n.ID = id
	s.setErr(nil)

	s.fanOut(ctx, n)
	return n, nil
}

// fanOut delivers the notification to the recipient's device token and
// advances the remote state to sent. The recipient's push permission and
// notification preferences gate delivery: a revoked permission, a disabled
// type or category, or an active quiet-hours window leaves the document
// pending without contacting the transport. Push failures mark the
// document failed so it can be retried; they do not fail the create.
func (s *Store) fanOut(ctx context.Context, n *domain.Notification) {
	if s.provider == nil || s.tokens == nil {
		return
	}

	if s.permissions != nil && !s.permissions.PushAllowed(n.RecipientUID) {
		logger.Debug("Skipping fan-out, push permission revoked",
			zap.String("recipient_uid", n.RecipientUID),
			zap.String("notification_id", n.ID))
		return
	}

	ev := s.recipientEvaluator(ctx, n.RecipientUID)
	if ev != nil && (!ev.Allowed(n.Type) || ev.QuietHoursActive(time.Now())) {
		if s.metrics != nil {
			s.metrics.RecordNotificationSuppressed(string(n.Type))
		}
		logger.Debug("Fan-out suppressed by recipient preferences",
			zap.String("recipient_uid", n.RecipientUID),
			zap.String("type", string(n.Type)))
		return
	}

	token, err := s.tokens.Get(ctx, n.RecipientUID)
	if err != nil || token == nil || !token.Active {
		if err != nil {
			logger.Warn("Failed to resolve device token for fan-out",
				zap.String("recipient_uid", n.RecipientUID),
				zap.Error(err))
		}
		return
	}

	payload := &push.Notification{
		Title:    n.Title,
		Body:     n.Body,
		Priority: string(n.Priority),
		Category: string(n.Type.Category()),
		Data: map[string]string{
			"notification_id": n.ID,
			"type":            string(n.Type),
		},
	}
	if ev != nil {
		if ev.PlaySound(n.Type) {
			payload.Sound = ev.Sound(n.Type)
		}
		if ev.ShowBadge(n.Type) && s.badges != nil {
			if current, badgeErr := s.badges.GetBadge(ctx, n.RecipientUID); badgeErr == nil {
				next := current + 1
				payload.Badge = &next
			}
		}
	}

	var result *push.SendResult
	if s.breaker != nil {
		err = s.breaker.Execute(ctx, "send", func() error {
			var sendErr error
			result, sendErr = s.provider.Send(ctx, payload, []string{token.Token})
			return sendErr
		})
	} else {
		result, err = s.provider.Send(ctx, payload, []string{token.Token})
	}
	if err != nil || result == nil || result.FailureCount > 0 {
		if s.metrics != nil {
			s.metrics.RecordPushSend("failure")
		}
		logger.Warn("Push delivery failed",
			zap.String("notification_id", n.ID),
			zap.Error(err))
		if stateErr := s.transitionRemote(ctx, n, domain.StateFailed); stateErr != nil {
			logger.Warn("Failed to mark notification failed", zap.Error(stateErr))
		}
		return
	}

	if s.metrics != nil {
		s.metrics.RecordPushSend("success")
	}
	if stateErr := s.transitionRemote(ctx, n, domain.StateSent); stateErr != nil {
		logger.Warn("Failed to mark notification sent", zap.Error(stateErr))
	}
}

// recipientEvaluator builds an evaluator over the recipient's stored
// preferences. A lookup failure degrades to no gating rather than
// blocking delivery.
func (s *Store) recipientEvaluator(ctx context.Context, uid string) *preference.Evaluator {
	if s.prefs == nil {
		return nil
	}
	prefs, err := s.prefs.NotificationPreferences(ctx, uid)
	if err != nil {
		logger.Warn("Failed to resolve recipient preferences for fan-out",
			zap.String("recipient_uid", uid),
			zap.Error(err))
		return nil
	}
	if prefs == nil {
		return nil
	}
	ev := preference.NewEvaluator(prefs)
	return &ev
}

func (s *Store) transitionRemote(ctx context.Context, n *domain.Notification, next domain.NotificationState) error {
	state, err := n.State.Transition(next)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateState(ctx, n.ID, state); err != nil {
		return errors.WriteError("notification", err)
	}
	n.State = state
	return nil
}

// MarkRead flips the read flag of a notification, remote write first.
// The delivery state is left untouched; read status is orthogonal to the
// delivery lifecycle.
func (s *Store) MarkRead(ctx context.Context, id string) error {
	n, ok := s.find(id)
	if !ok {
		return errors.NotFoundError("notification")
	}
	if n.IsRead {
		return nil
	}

	if err := s.repo.MarkRead(ctx, id); err != nil {
		appErr := errors.WriteError("notification", err)
		s.setErr(appErr)
		return appErr
	}

	s.mu.Lock()
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications[i].IsRead = true
			break
		}
	}
	s.lastErr = nil
	unread := s.unreadLocked()
	userID := s.userID
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetUnreadCount(unread)
	}
	s.mirrorBadge(ctx, userID, unread)
	return nil
}

// MarkAllRead flips the read flag of every unread notification in one
// atomic remote batch, leaving delivery states untouched. Local state
// changes only after the whole batch commits.
func (s *Store) MarkAllRead(ctx context.Context, userID string) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.notifications))
	for i := range s.notifications {
		if !s.notifications[i].IsRead {
			ids = append(ids, s.notifications[i].ID)
		}
	}
	s.mu.RUnlock()

	if len(ids) == 0 {
		return nil
	}

	if err := s.repo.MarkAllRead(ctx, ids); err != nil {
		appErr := errors.BatchWriteError("notifications", err)
		s.setErr(appErr)
		return appErr
	}

	s.mu.Lock()
	for i := range s.notifications {
		if !s.notifications[i].IsRead {
			s.notifications[i].IsRead = true
		}
	}
	s.lastErr = nil
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetUnreadCount(0)
	}
	s.mirrorBadge(ctx, userID, 0)
	return nil
}

// Delete removes a notification, remote delete first
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		appErr := errors.DeleteError("notification", err)
		s.setErr(appErr)
		return appErr
	}

	s.mu.Lock()
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			break
		}
	}
	s.lastErr = nil
	unread := s.unreadLocked()
	userID := s.userID
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetUnreadCount(unread)
	}
	s.mirrorBadge(ctx, userID, unread)
	return nil
}

// IngestInbound gates an inbound notification through the preference
// evaluator and, when allowed, inserts it at the head of the collection.
// Duplicates by id are ignored. A banner signal is emitted when the
// session is foreground.
func (s *Store) IngestInbound(ctx context.Context, n domain.Notification) error {
	s.evaluatorMu.RLock()
	evaluator := s.evaluator
	s.evaluatorMu.RUnlock()

	if evaluator != nil && !evaluator.Allowed(n.Type) {
		if s.metrics != nil {
			s.metrics.RecordNotificationSuppressed(string(n.Type))
		}
		logger.Debug("Inbound notification suppressed by preferences",
			zap.String("notification_id", n.ID),
			zap.String("type", string(n.Type)))
		return nil
	}

	s.mu.Lock()
	for i := range s.notifications {
		if s.notifications[i].ID == n.ID {
			s.mu.Unlock()
			return nil
		}
	}
	s.notifications = append([]domain.Notification{n}, s.notifications...)
	if len(s.notifications) > constants.MaxRetainedNotifications {
		s.notifications = s.notifications[:constants.MaxRetainedNotifications]
	}
	unread := s.unreadLocked()
	foreground := s.foreground
	userID := s.userID
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordNotificationIngested(string(n.Type))
		s.metrics.SetUnreadCount(unread)
	}
	s.mirrorBadge(ctx, userID, unread)

	if foreground {
		select {
		case s.banner <- n:
		default:
			// presentation layer is not draining, drop the oldest signal
			select {
			case <-s.banner:
			default:
			}
			select {
			case s.banner <- n:
			default:
			}
		}
	}
	return nil
}

func (s *Store) find(id string) (domain.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			return s.notifications[i], true
		}
	}
	return domain.Notification{}, false
}

// Retry moves a failed notification back to pending and re-runs fan-out
func (s *Store) Retry(ctx context.Context, id string) error {
	n, ok := s.find(id)
	if !ok {
		return errors.NotFoundError("notification")
	}
	if !n.State.CanRetry() {
		return errors.InvalidTransitionError(string(n.State), string(domain.StatePending))
	}

	if err := s.transitionRemote(ctx, &n, domain.StatePending); err != nil {
		s.setErr(err)
		return err
	}
	s.setErr(nil)

	s.fanOut(ctx, &n)
	return nil
}

// Cancel cancels a pending notification
func (s *Store) Cancel(ctx context.Context, id string) error {
	return s.terminalTransition(ctx, id, domain.StateCancelled, func(state domain.NotificationState) bool {
		return state.CanCancel()
	})
}

// Archive archives a read or delivered notification
func (s *Store) Archive(ctx context.Context, id string) error {
	return s.terminalTransition(ctx, id, domain.StateArchived, func(state domain.NotificationState) bool {
		return state.CanArchive()
	})
}

func (s *Store) terminalTransition(ctx context.Context, id string, next domain.NotificationState, allowed func(domain.NotificationState) bool) error {
	n, ok := s.find(id)
	if !ok {
		return errors.NotFoundError("notification")
	}
	if !allowed(n.State) {
		return errors.InvalidTransitionError(string(n.State), string(next))
	}

	if err := s.transitionRemote(ctx, &n, next); err != nil {
		s.setErr(err)
		return fmt.Errorf("failed to transition notification %s: %w", id, err)
	}

	s.mu.Lock()
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications[i].State = next
			break
		}
	}
	s.lastErr = nil
	s.mu.Unlock()
	return nil
}
