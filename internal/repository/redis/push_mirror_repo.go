package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sif-backend/internal/database"
	"sif-backend/internal/domain"
	"sif-backend/pkg/constants"
	"sif-backend/pkg/logger"
)

// PushMirrorRepository keeps fast local mirrors of push state: the device
// token last written to the remote store, and the badge count last pushed
// to the device. Both are best-effort caches; the remote store is the
// source of truth.
type PushMirrorRepository struct {
	db *database.RedisClient
}

// NewPushMirrorRepository creates a new push mirror repository
func NewPushMirrorRepository(db *database.RedisClient) *PushMirrorRepository {
	return &PushMirrorRepository{db: db}
}

func tokenMirrorKey(uid string) string {
	return fmt.Sprintf("push:token:%s", uid)
}

func badgeMirrorKey(uid string) string {
	return fmt.Sprintf("badge:%s", uid)
}

// StoreToken mirrors the device token keyed by user
func (r *PushMirrorRepository) StoreToken(ctx context.Context, token *domain.DeviceToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := r.db.SafeSet(ctx, tokenMirrorKey(token.UserID), data, constants.PushTokenExpiry).Err(); err != nil {
		return fmt.Errorf("failed to mirror token: %w", err)
	}

	logger.Debug("Push token mirrored",
		zap.String("user_id", token.UserID),
		zap.String("platform", string(token.Platform)))
	return nil
}

// GetToken returns the mirrored token for uid, or nil on a miss
func (r *PushMirrorRepository) GetToken(ctx context.Context, uid string) (*domain.DeviceToken, error) {
	data, err := r.db.SafeGet(ctx, tokenMirrorKey(uid)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get mirrored token: %w", err)
	}

	var token domain.DeviceToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mirrored token: %w", err)
	}
	return &token, nil
}

// DeleteToken drops the token mirror, typically after a registration failure
func (r *PushMirrorRepository) DeleteToken(ctx context.Context, uid string) error {
	if err := r.db.SafeDel(ctx, tokenMirrorKey(uid)).Err(); err != nil {
		return fmt.Errorf("failed to delete mirrored token: %w", err)
	}
	return nil
}

// SetBadge records the badge count last derived from unread notifications
func (r *PushMirrorRepository) SetBadge(ctx context.Context, uid string, count int) error {
	if err := r.db.SafeSet(ctx, badgeMirrorKey(uid), count, constants.BadgeMirrorExpiry).Err(); err != nil {
		return fmt.Errorf("failed to set badge mirror: %w", err)
	}
	return nil
}

// GetBadge returns the mirrored badge count, or 0 on a miss
func (r *PushMirrorRepository) GetBadge(ctx context.Context, uid string) (int, error) {
	val, err := r.db.SafeGet(ctx, badgeMirrorKey(uid)).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get badge mirror: %w", err)
	}

	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid badge mirror value: %w", err)
	}
	return count, nil
}
