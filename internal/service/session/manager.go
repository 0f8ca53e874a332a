// Package session scopes the sync stores to individual users. Each
// authenticated user gets their own settings and notification stores with
// live remote subscriptions; shared infrastructure (repositories, cache,
// push transport) is injected once and reused across sessions.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"sif-backend/internal/domain"
	"sif-backend/internal/service/notification"
	"sif-backend/internal/service/preference"
	"sif-backend/internal/service/settings"
	"sif-backend/pkg/cache"
	"sif-backend/pkg/logger"
	"sif-backend/pkg/metrics"
	"sif-backend/pkg/push"
	"sif-backend/pkg/resilience"
)

// Deps carries the shared infrastructure every session is built from.
// Migrator, Cache and the repositories are required; the rest may be nil.
type Deps struct {
	SettingsRepo     settings.Repository
	Offline          settings.OfflineStore
	Cache            *cache.SettingsCache
	Migrator         *settings.Migrator
	NotificationRepo notification.Repository
	Tokens           notification.TokenSource
	Badges           notification.BadgeMirror
	Provider         push.Provider
	Breaker          *resilience.PushResilience
	Permissions      notification.PermissionSource
	Metrics          *metrics.Metrics
}

// Session is one user's live sync state: a settings store mirroring their
// aggregate and a notification store consuming their snapshot subscription.
type Session struct {
	UID           string
	Settings      *settings.Store
	Notifications *notification.Store
}

// Manager lazily opens and caches one Session per user id. Subscriptions
// run on the manager's base context so they outlive individual requests.
type Manager struct {
	deps Deps
	ctx  context.Context

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager. ctx must stay alive for the
// process lifetime; cancelling it tears down every session's listeners.
func NewManager(ctx context.Context, deps Deps) *Manager {
	return &Manager{
		deps:     deps,
		ctx:      ctx,
		sessions: make(map[string]*Session),
	}
}

// Session returns the live session for uid, opening one on first use.
// Opening starts the settings listener and the notification subscription;
// if either fails the session is not cached and the error is returned so
// the next request retries.
func (m *Manager) Session(uid string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.sessions[uid]; ok {
		return sess, nil
	}

	sess, err := m.open(uid)
	if err != nil {
		return nil, err
	}
	m.sessions[uid] = sess
	m.recordCount()

	logger.Info("Session opened", zap.String("uid", uid))
	return sess, nil
}

func (m *Manager) open(uid string) (*Session, error) {
	set := settings.NewStore(m.deps.SettingsRepo, m.deps.Offline, m.deps.Cache, m.deps.Migrator, m.deps.Metrics)
	notif := notification.NewStore(m.deps.NotificationRepo, m.deps.Tokens, m.deps.Badges, m.deps.Provider, m.deps.Metrics)

	if m.deps.Breaker != nil {
		notif.SetResilience(m.deps.Breaker)
	}
	if m.deps.Permissions != nil {
		notif.SetPermissionSource(m.deps.Permissions)
	}
	notif.SetPreferenceResolver(set)

	// The session owner's preferences gate only their own inbound ingest;
	// recipients of fan-out are resolved through the preference resolver.
	set.OnChange(func(s *domain.UserSettings) {
		ev := preference.NewEvaluator(&s.Notifications)
		notif.SetEvaluator(&ev)
	})

	if _, err := set.Load(m.ctx, uid); err != nil {
		logger.Warn("Initial settings load failed, listener will backfill",
			zap.String("uid", uid),
			zap.Error(err))
	}
	if err := set.StartListener(m.ctx, uid); err != nil {
		return nil, err
	}
	if err := notif.Subscribe(m.ctx, uid); err != nil {
		set.StopListener()
		return nil, err
	}

	return &Session{UID: uid, Settings: set, Notifications: notif}, nil
}

// Close tears down uid's session, if open. The next request reopens it.
func (m *Manager) Close(uid string) {
	m.mu.Lock()
	sess, ok := m.sessions[uid]
	delete(m.sessions, uid)
	m.recordCount()
	m.mu.Unlock()

	if !ok {
		return
	}
	sess.Notifications.Unsubscribe()
	sess.Settings.StopListener()
	logger.Info("Session closed", zap.String("uid", uid))
}

// CloseAll tears down every open session. Called on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.recordCount()
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Notifications.Unsubscribe()
		sess.Settings.StopListener()
	}
}

func (m *Manager) recordCount() {
	if m.deps.Metrics != nil {
		m.deps.Metrics.SetActiveSessions(len(m.sessions))
	}
}
