package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sif-backend/internal/database"
	"sif-backend/internal/domain"
	"sif-backend/pkg/constants"
	"sif-backend/pkg/logger"
)

// offlineSnapshot wraps the settings aggregate with the identity it was
// captured for. A snapshot left by a previously signed-in user must never
// leak into another user's session.
type offlineSnapshot struct {
	UID      string               `json:"uid"`
	SavedAt  int64                `json:"saved_at"`
	Settings *domain.UserSettings `json:"settings"`
}

// OfflineSettingsRepository persists the last-known settings aggregate so
// the sync core can serve reads while the remote store is unreachable.
type OfflineSettingsRepository struct {
	db *database.RedisClient
}

// NewOfflineSettingsRepository creates a new offline settings repository
func NewOfflineSettingsRepository(db *database.RedisClient) *OfflineSettingsRepository {
	return &OfflineSettingsRepository{db: db}
}

func offlineSettingsKey(uid string) string {
	return fmt.Sprintf("settings:offline:%s", uid)
}

// Save stores a snapshot of the aggregate for offline reads
func (r *OfflineSettingsRepository) Save(ctx context.Context, settings *domain.UserSettings) error {
	snap := offlineSnapshot{
		UID:      settings.UID,
		SavedAt:  time.Now().Unix(),
		Settings: settings,
	}

	data, err := json.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("failed to marshal offline snapshot: %w", err)
	}

	if err := r.db.SafeSet(ctx, offlineSettingsKey(settings.UID), data, constants.OfflineSnapshotExpiry).Err(); err != nil {
		return fmt.Errorf("failed to store offline snapshot: %w", err)
	}

	logger.Debug("Offline settings snapshot saved",
		zap.String("uid", settings.UID))
	return nil
}

// Get returns the snapshot for uid, or nil when none exists. A snapshot
// recorded for a different identity is discarded rather than returned.
func (r *OfflineSettingsRepository) Get(ctx context.Context, uid string) (*domain.UserSettings, error) {
	data, err := r.db.SafeGet(ctx, offlineSettingsKey(uid)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get offline snapshot: %w", err)
	}

	var snap offlineSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal offline snapshot: %w", err)
	}

	if snap.UID != uid {
		logger.Warn("Discarding offline snapshot for mismatched identity",
			zap.String("expected_uid", uid),
			zap.String("snapshot_uid", snap.UID))
		r.db.SafeDel(ctx, offlineSettingsKey(uid))
		return nil, nil
	}

	return snap.Settings, nil
}

// Delete removes the snapshot, typically on sign-out
func (r *OfflineSettingsRepository) Delete(ctx context.Context, uid string) error {
	if err := r.db.SafeDel(ctx, offlineSettingsKey(uid)).Err(); err != nil {
		return fmt.Errorf("failed to delete offline snapshot: %w", err)
	}
	return nil
}
