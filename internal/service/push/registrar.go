package push

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"sif-backend/internal/domain"
	"sif-backend/pkg/errors"
	"sif-backend/pkg/logger"
	"sif-backend/pkg/metrics"
)

// TokenRepository persists device tokens in the remote store
type TokenRepository interface {
	Save(ctx context.Context, token *domain.DeviceToken) error
	Get(ctx context.Context, uid string) (*domain.DeviceToken, error)
	Delete(ctx context.Context, uid string) error
}

// TokenMirror caches the token device-locally
type TokenMirror interface {
	StoreToken(ctx context.Context, token *domain.DeviceToken) error
	GetToken(ctx context.Context, uid string) (*domain.DeviceToken, error)
	DeleteToken(ctx context.Context, uid string) error
}

// Registrar records push permission grants and persists device tokens.
// One active token per user: registering from a new device overwrites the
// previous device's record.
type Registrar struct {
	repo    TokenRepository
	mirror  TokenMirror
	metrics *metrics.Metrics

	mu      sync.RWMutex
	granted map[string]bool
	lastErr error
}

// NewRegistrar creates a new push registrar. mirror and metrics may be nil.
func NewRegistrar(repo TokenRepository, mirror TokenMirror, m *metrics.Metrics) *Registrar {
	return &Registrar{
		repo:    repo,
		mirror:  mirror,
		metrics: m,
		granted: make(map[string]bool),
	}
}

// RecordPermission stores the outcome of the OS permission prompt
func (r *Registrar) RecordPermission(ctx context.Context, userID string, granted bool) {
	r.mu.Lock()
	r.granted[userID] = granted
	r.mu.Unlock()

	logger.Info("Push permission recorded",
		zap.String("user_id", userID),
		zap.Bool("granted", granted))
}

// PushAllowed reports whether push delivery to userID is permitted.
// A user with no recorded permission has simply never reported their OS
// permission state, so delivery is allowed until an explicit revocation
// is recorded.
func (r *Registrar) PushAllowed(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	granted, known := r.granted[userID]
	return !known || granted
}

// RegisterToken persists the device token keyed by user id and mirrors it
// into the device-local cache
func (r *Registrar) RegisterToken(ctx context.Context, userID, token string, platform domain.DevicePlatform) error {
	if token == "" {
		return errors.InvalidInputError("device token must not be empty")
	}

	record := &domain.DeviceToken{
		Token:       token,
		UserID:      userID,
		Platform:    platform,
		LastUpdated: time.Now().UTC(),
		Active:      true,
	}

	if err := r.repo.Save(ctx, record); err != nil {
		appErr := errors.TokenPersistenceError(err)
		r.setErr(appErr)
		return appErr
	}
	r.setErr(nil)

	if r.metrics != nil {
		r.metrics.RecordTokenPersisted()
	}

	if r.mirror != nil {
		if err := r.mirror.StoreToken(ctx, record); err != nil {
			logger.Warn("Failed to mirror device token",
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}

	logger.Info("Device token registered",
		zap.String("user_id", userID),
		zap.String("platform", string(platform)))
	return nil
}

// CurrentToken returns the user's token, mirror first, then the remote store
func (r *Registrar) CurrentToken(ctx context.Context, userID string) (*domain.DeviceToken, error) {
	if r.mirror != nil {
		token, err := r.mirror.GetToken(ctx, userID)
		if err == nil && token != nil {
			return token, nil
		}
	}
	return r.repo.Get(ctx, userID)
}

// UnregisterToken removes the user's token from the remote store and mirror
func (r *Registrar) UnregisterToken(ctx context.Context, userID string) error {
	if err := r.repo.Delete(ctx, userID); err != nil {
		appErr := errors.TokenPersistenceError(err)
		r.setErr(appErr)
		return appErr
	}
	r.setErr(nil)

	if r.mirror != nil {
		if err := r.mirror.DeleteToken(ctx, userID); err != nil {
			logger.Warn("Failed to drop token mirror",
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}
	return nil
}

// RegistrationFailed wraps and records a transport-level registration
// failure. There is no retry; the next app launch re-registers.
func (r *Registrar) RegistrationFailed(err error) error {
	appErr := errors.RegistrationFailedError(err)
	r.setErr(appErr)
	logger.Error("Push registration failed", zap.Error(err))
	return appErr
}

// Err returns the registrar's current error value
func (r *Registrar) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

func (r *Registrar) setErr(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
}
