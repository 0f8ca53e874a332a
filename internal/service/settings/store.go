package settings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"sif-backend/internal/domain"
	"sif-backend/pkg/cache"
	"sif-backend/pkg/constants"
	"sif-backend/pkg/errors"
	"sif-backend/pkg/logger"
	"sif-backend/pkg/metrics"
)

// Subscription delivers out-of-band settings changes from the remote store
type Subscription interface {
	Updates() <-chan *domain.UserSettings
	Err() error
	Stop()
}

// Repository is the remote persistence contract for the settings aggregate
type Repository interface {
	Get(ctx context.Context, uid string) (*domain.UserSettings, error)
	GetRaw(ctx context.Context, uid string) (map[string]interface{}, error)
	Set(ctx context.Context, settings *domain.UserSettings) error
	SetRaw(ctx context.Context, uid string, doc map[string]interface{}) error
	Listen(ctx context.Context, uid string) (Subscription, error)
}

// OfflineStore persists a device-local snapshot for reads while the remote
// store is unreachable
type OfflineStore interface {
	Save(ctx context.Context, settings *domain.UserSettings) error
	Get(ctx context.Context, uid string) (*domain.UserSettings, error)
	Delete(ctx context.Context, uid string) error
}

// Store owns the authoritative settings aggregate for the active session.
// Writes always cover the whole aggregate; section updates replace one
// sub-document and rewrite everything else unchanged.
type Store struct {
	repo     Repository
	offline  OfflineStore
	cache    *cache.SettingsCache
	migrator *Migrator
	metrics  *metrics.Metrics
	validate *validator.Validate

	mu        sync.RWMutex
	current   *domain.UserSettings
	previous  *domain.UserSettings
	sub       Subscription
	listeners []func(*domain.UserSettings)
}

// NewStore creates a new settings store. metrics may be nil.
func NewStore(repo Repository, offline OfflineStore, settingsCache *cache.SettingsCache, migrator *Migrator, m *metrics.Metrics) *Store {
	return &Store{
		repo:     repo,
		offline:  offline,
		cache:    settingsCache,
		migrator: migrator,
		metrics:  m,
		validate: validator.New(),
	}
}

// OnChange registers a callback invoked whenever the in-memory aggregate
// changes, whether from a local save or an out-of-band remote update.
func (s *Store) OnChange(fn func(*domain.UserSettings)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Current returns the in-memory aggregate, or nil before the first Load
func (s *Store) Current() *domain.UserSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	return s.current.Clone()
}

// Load resolves the settings aggregate for uid: cache first, then the
// remote store. An absent remote document is seeded with schema defaults.
// A stale document is migrated, persisted and reloaded once. When the
// remote store is unreachable the offline snapshot serves the read.
func (s *Store) Load(ctx context.Context, uid string) (*domain.UserSettings, error) {
	if cached, ok := s.cache.Get(uid); ok {
		if s.metrics != nil {
			s.metrics.RecordSettingsCacheHit()
		}
		s.setCurrent(cached)
		return cached, nil
	}
	if s.metrics != nil {
		s.metrics.RecordSettingsCacheMiss()
	}

	settings, err := s.loadRemote(ctx, uid)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeMigrationFailed) {
			return nil, err
		}
		snap, offErr := s.offline.Get(ctx, uid)
		if offErr == nil && snap != nil {
			logger.Warn("Serving settings from offline snapshot",
				zap.String("uid", uid),
				zap.Error(err))
			s.setCurrent(snap)
			return snap, nil
		}
		return nil, err
	}

	s.commit(ctx, settings)
	return settings, nil
}

// loadRemote performs the remote fetch, seeding defaults or migrating as
// needed. The post-migration reload is a single extra hop, never recursive.
func (s *Store) loadRemote(ctx context.Context, uid string) (*domain.UserSettings, error) {
	settings, err := s.repo.Get(ctx, uid)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return s.seedDefaults(ctx, uid)
		}
		return nil, errors.ReadError("user settings", err)
	}

	if !s.migrator.NeedsMigration(settings.Version) {
		return settings, nil
	}

	if err := s.migrate(ctx, uid, settings.Version); err != nil {
		return nil, err
	}

	migrated, err := s.repo.Get(ctx, uid)
	if err != nil {
		return nil, errors.ReadError("user settings", err)
	}
	if s.migrator.NeedsMigration(migrated.Version) {
		return nil, errors.MigrationError(migrated.Version, domain.CurrentSettingsSchemaVersion,
			fmt.Errorf("document still stale after migration"))
	}
	return migrated, nil
}

func (s *Store) seedDefaults(ctx context.Context, uid string) (*domain.UserSettings, error) {
	defaults := domain.DefaultUserSettings(uid)
	if err := s.repo.Set(ctx, defaults); err != nil {
		return nil, errors.WriteError("user settings", err)
	}
	logger.Info("Seeded default settings", zap.String("uid", uid))
	return defaults, nil
}

func (s *Store) migrate(ctx context.Context, uid string, version int) error {
	raw, err := s.repo.GetRaw(ctx, uid)
	if err != nil {
		return errors.ReadError("user settings", err)
	}

	migrated, result, err := s.migrator.Migrate(raw, version)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordSettingsMigration("failed")
		}
		return err
	}
	if result == MigrationNotNeeded {
		return nil
	}

	if err := s.repo.SetRaw(ctx, uid, migrated); err != nil {
		if s.metrics != nil {
			s.metrics.RecordSettingsMigration("write_failed")
		}
		return errors.WriteError("user settings", err)
	}

	if s.metrics != nil {
		s.metrics.RecordSettingsMigration("applied")
	}
	logger.Info("Settings schema migrated",
		zap.String("uid", uid),
		zap.Int("from_version", version),
		zap.Int("to_version", domain.CurrentSettingsSchemaVersion))
	return nil
}

// Save validates and persists the full aggregate, then updates cache,
// in-memory state and the offline snapshot together. Validation failures
// reject the write outright with the violating fields listed.
func (s *Store) Save(ctx context.Context, settings *domain.UserSettings) error {
	if err := s.validate.Struct(settings); err != nil {
		return errors.ValidationError("settings validation failed", fieldViolations(err))
	}

	settings.Version = domain.CurrentSettingsSchemaVersion
	settings.LastUpdated = time.Now().UTC()

	s.mu.RLock()
	prev := s.current
	s.mu.RUnlock()

	if err := s.repo.Set(ctx, settings); err != nil {
		return errors.WriteError("user settings", err)
	}

	s.mu.Lock()
	s.previous = prev
	s.mu.Unlock()

	s.commit(ctx, settings)
	return nil
}

// UpdateSection replaces exactly one sub-document and saves the whole
// aggregate. value must match the section's settings type.
func (s *Store) UpdateSection(ctx context.Context, uid string, section domain.SettingsSection, value interface{}) error {
	settings, err := s.Load(ctx, uid)
	if err != nil {
		return err
	}

	updated := settings.Clone()
	switch section {
	case domain.SectionProfile:
		v, ok := value.(domain.ProfileSettings)
		if !ok {
			return errors.InvalidInputError("profile section requires ProfileSettings")
		}
		updated.Profile = v
	case domain.SectionPrivacy:
		v, ok := value.(domain.PrivacySettings)
		if !ok {
			return errors.InvalidInputError("privacy section requires PrivacySettings")
		}
		updated.Privacy = v
	case domain.SectionNotifications:
		v, ok := value.(domain.NotificationPreferences)
		if !ok {
			return errors.InvalidInputError("notifications section requires NotificationPreferences")
		}
		updated.Notifications = v
	case domain.SectionAppearance:
		v, ok := value.(domain.AppearanceSettings)
		if !ok {
			return errors.InvalidInputError("appearance section requires AppearanceSettings")
		}
		updated.Appearance = v
	default:
		return errors.InvalidInputError(fmt.Sprintf("unknown settings section: %s", section))
	}

	return s.Save(ctx, updated)
}

// ResetToDefaults replaces the aggregate with schema defaults, keeping uid
func (s *Store) ResetToDefaults(ctx context.Context, uid string) error {
	return s.Save(ctx, domain.DefaultUserSettings(uid))
}

// NotificationPreferences is a read-only lookup of a user's notification
// preferences, used when fanning out a notification to a recipient other
// than the session owner. It never mutates the session aggregate and never
// seeds or migrates the remote document; an absent document resolves to
// schema defaults.
func (s *Store) NotificationPreferences(ctx context.Context, uid string) (*domain.NotificationPreferences, error) {
	if cached, ok := s.cache.Get(uid); ok {
		prefs := cached.Notifications
		return &prefs, nil
	}

	settings, err := s.repo.Get(ctx, uid)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			prefs := domain.DefaultUserSettings(uid).Notifications
			return &prefs, nil
		}
		return nil, errors.ReadError("user settings", err)
	}

	prefs := settings.Notifications
	return &prefs, nil
}

// StartListener opens the standing remote subscription that mirrors
// out-of-band changes into cache and in-memory state. The newest remote
// value always wins, even over unsaved local edits.
func (s *Store) StartListener(ctx context.Context, uid string) error {
	s.StopListener()

	sub, err := s.repo.Listen(ctx, uid)
	if err != nil {
		return errors.ListenerError("user settings", err)
	}

	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()

	go func() {
		for settings := range sub.Updates() {
			s.commit(ctx, settings)
			logger.Debug("Applied out-of-band settings update",
				zap.String("uid", settings.UID))
		}
		if err := sub.Err(); err != nil {
			logger.Error("Settings listener terminated", zap.Error(err))
		}
	}()

	return nil
}

// StopListener tears down the standing subscription, if any
func (s *Store) StopListener() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Stop()
	}
}

// Previous returns the aggregate as it was before the last Save
func (s *Store) Previous() *domain.UserSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.previous == nil {
		return nil
	}
	return s.previous.Clone()
}

// commit updates cache, in-memory state and offline snapshot together
func (s *Store) commit(ctx context.Context, settings *domain.UserSettings) {
	if err := s.cache.Put(settings.UID, settings, constants.SettingsCacheTTL); err != nil {
		logger.Warn("Failed to cache settings", zap.String("uid", settings.UID), zap.Error(err))
	}
	s.setCurrent(settings)
	if err := s.offline.Save(ctx, settings); err != nil {
		logger.Warn("Failed to save offline snapshot", zap.String("uid", settings.UID), zap.Error(err))
	}
}

func (s *Store) setCurrent(settings *domain.UserSettings) {
	s.mu.Lock()
	s.current = settings.Clone()
	listeners := make([]func(*domain.UserSettings), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(settings.Clone())
	}
}

// fieldViolations flattens validator errors into the response shape
func fieldViolations(err error) []errors.FieldViolation {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []errors.FieldViolation{{Field: "settings", Reason: err.Error()}}
	}

	violations := make([]errors.FieldViolation, 0, len(verrs))
	for _, fe := range verrs {
		violations = append(violations, errors.FieldViolation{
			Field:  fe.Namespace(),
			Reason: fmt.Sprintf("failed %s validation", fe.Tag()),
		})
	}
	return violations
}
