package firestore

import (
	"context"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"

	"sif-backend/internal/domain"
	"sif-backend/pkg/constants"
	"sif-backend/pkg/logger"

	"go.uber.org/zap"
)

// NotificationRepository handles notification documents in Firestore
type NotificationRepository struct {
	client *firestore.Client
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(client *firestore.Client) *NotificationRepository {
	return &NotificationRepository{client: client}
}

func (r *NotificationRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(constants.NotificationsCollection)
}

// Create persists a notification and returns its server-assigned id.
// CreatedAt is stamped by the server when zero.
func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) (string, error) {
	doc := r.collection().NewDoc()
	if _, err := doc.Set(ctx, n); err != nil {
		return "", fmt.Errorf("failed to create notification: %w", err)
	}
	return doc.ID, nil
}

// MarkRead flips a single notification's read flag. Delivery state is
// never written here; read status and delivery lifecycle are independent.
func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	_, err := r.collection().Doc(id).Update(ctx, []firestore.Update{
		{Path: "isRead", Value: true},
	})
	if err != nil {
		return fmt.Errorf("failed to mark notification %s as read: %w", id, err)
	}
	return nil
}

// MarkAllRead flips the read flag of the given notifications in one
// atomic batch. The batch either fully commits or nothing is written.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	batch := r.client.Batch()
	for _, id := range ids {
		batch.Update(r.collection().Doc(id), []firestore.Update{
			{Path: "isRead", Value: true},
		})
	}
	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit mark-all-read batch: %w", err)
	}
	return nil
}

// UpdateState writes a new lifecycle state for a notification
func (r *NotificationRepository) UpdateState(ctx context.Context, id string, state domain.NotificationState) error {
	_, err := r.collection().Doc(id).Update(ctx, []firestore.Update{
		{Path: "state", Value: string(state)},
	})
	if err != nil {
		return fmt.Errorf("failed to update notification %s state: %w", id, err)
	}
	return nil
}

// Delete removes a notification document
func (r *NotificationRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.collection().Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete notification %s: %w", id, err)
	}
	return nil
}

// Subscription is a standing query subscription. Every change to the
// matching result set re-emits the full set on Snapshots; the previous
// result set is superseded entirely.
type Subscription struct {
	snapshots chan []domain.Notification
	stop      func()
	once      sync.Once

	mu  sync.Mutex
	err error
}

// Snapshots returns the channel of full result sets. The channel is closed
// when the subscription stops or fails; check Err afterwards.
func (s *Subscription) Snapshots() <-chan []domain.Notification {
	return s.snapshots
}

// Err returns the terminal listener error, if any
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop tears down the subscription. Safe to call more than once.
func (s *Subscription) Stop() {
	s.once.Do(s.stop)
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Subscribe opens a snapshot subscription over the recipient's notifications,
// most recent first, capped at limit.
func (r *NotificationRepository) Subscribe(ctx context.Context, recipientUID string, limit int) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	query := r.collection().
		Where("recipientUID", "==", recipientUID).
		OrderBy("createdAt", firestore.Desc).
		Limit(limit)

	iter := query.Snapshots(ctx)

	sub := &Subscription{
		snapshots: make(chan []domain.Notification, 1),
		stop: func() {
			iter.Stop()
			cancel()
		},
	}

	go func() {
		defer close(sub.snapshots)
		for {
			snap, err := iter.Next()
			if err != nil {
				if ctx.Err() == nil {
					sub.setErr(fmt.Errorf("notification listener failed: %w", err))
					logger.Error("Notification snapshot listener failed",
						zap.String("recipient_uid", recipientUID),
						zap.Error(err))
				}
				return
			}

			docs, err := snap.Documents.GetAll()
			if err != nil {
				sub.setErr(fmt.Errorf("failed to read snapshot documents: %w", err))
				return
			}

			notifications := make([]domain.Notification, 0, len(docs))
			for _, doc := range docs {
				var n domain.Notification
				if err := doc.DataTo(&n); err != nil {
					logger.Warn("Skipping undecodable notification document",
						zap.String("doc_id", doc.Ref.ID),
						zap.Error(err))
					continue
				}
				n.ID = doc.Ref.ID
				notifications = append(notifications, n)
			}

			select {
			case sub.snapshots <- notifications:
			case <-ctx.Done():
				return
			}
		}
	}()

	return sub, nil
}
