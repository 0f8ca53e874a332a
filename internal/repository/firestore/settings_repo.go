package firestore

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"sif-backend/internal/domain"
	"sif-backend/pkg/constants"
	"sif-backend/pkg/errors"
	"sif-backend/pkg/logger"

	"go.uber.org/zap"
)

// SettingsRepository handles user_settings aggregate documents in Firestore.
// One document per user, always written as a whole.
type SettingsRepository struct {
	client *firestore.Client
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(client *firestore.Client) *SettingsRepository {
	return &SettingsRepository{client: client}
}

func (r *SettingsRepository) doc(uid string) *firestore.DocumentRef {
	return r.client.Collection(constants.SettingsCollection).Doc(uid)
}

// Get reads and decodes a user's settings aggregate
func (r *SettingsRepository) Get(ctx context.Context, uid string) (*domain.UserSettings, error) {
	snap, err := r.doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFoundError("user settings")
		}
		return nil, fmt.Errorf("failed to get settings for %s: %w", uid, err)
	}

	var settings domain.UserSettings
	if err := snap.DataTo(&settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings for %s: %w", uid, err)
	}
	return &settings, nil
}

// GetRaw reads a user's settings document without decoding, for migration
func (r *SettingsRepository) GetRaw(ctx context.Context, uid string) (map[string]interface{}, error) {
	snap, err := r.doc(uid).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFoundError("user settings")
		}
		return nil, fmt.Errorf("failed to get raw settings for %s: %w", uid, err)
	}
	return snap.Data(), nil
}

// Set writes the full aggregate, overwriting the previous document
func (r *SettingsRepository) Set(ctx context.Context, settings *domain.UserSettings) error {
	if _, err := r.doc(settings.UID).Set(ctx, settings); err != nil {
		return fmt.Errorf("failed to write settings for %s: %w", settings.UID, err)
	}
	return nil
}

// SetRaw writes a raw document, used to persist a migrated aggregate before
// it is reloaded through the normal decode path.
func (r *SettingsRepository) SetRaw(ctx context.Context, uid string, doc map[string]interface{}) error {
	if _, err := r.doc(uid).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to write raw settings for %s: %w", uid, err)
	}
	return nil
}

// SettingsSubscription mirrors out-of-band changes to a settings document
type SettingsSubscription struct {
	updates chan *domain.UserSettings
	stop    func()
	once    sync.Once

	mu  sync.Mutex
	err error
}

// Updates returns the channel of decoded aggregates. Closed on stop or failure.
func (s *SettingsSubscription) Updates() <-chan *domain.UserSettings {
	return s.updates
}

// Err returns the terminal listener error, if any
func (s *SettingsSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop tears down the subscription. Safe to call more than once.
func (s *SettingsSubscription) Stop() {
	s.once.Do(s.stop)
}

func (s *SettingsSubscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Listen opens a document snapshot subscription for out-of-band settings
// changes (another device writing the same aggregate).
func (r *SettingsRepository) Listen(ctx context.Context, uid string) (*SettingsSubscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	iter := r.doc(uid).Snapshots(ctx)

	sub := &SettingsSubscription{
		updates: make(chan *domain.UserSettings, 1),
		stop: func() {
			iter.Stop()
			cancel()
		},
	}

	go func() {
		defer close(sub.updates)
		for {
			snap, err := iter.Next()
			if err != nil {
				if ctx.Err() == nil {
					sub.setErr(fmt.Errorf("settings listener failed: %w", err))
					logger.Error("Settings snapshot listener failed",
						zap.String("uid", uid),
						zap.Error(err))
				}
				return
			}
			if !snap.Exists() {
				continue
			}

			var settings domain.UserSettings
			if err := snap.DataTo(&settings); err != nil {
				logger.Warn("Skipping undecodable settings snapshot",
					zap.String("uid", uid),
					zap.Error(err))
				continue
			}

			select {
			case sub.updates <- &settings:
			case <-ctx.Done():
				return
			}
		}
	}()

	return sub, nil
}
