package notification

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sif-backend/internal/domain"
	"sif-backend/internal/service/preference"
	"sif-backend/pkg/errors"
	"sif-backend/pkg/push"
)

// Mocks

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, n *domain.Notification) (string, error) {
	args := m.Called(ctx, n)
	return args.String(0), args.Error(1)
}

func (m *MockRepository) MarkRead(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) MarkAllRead(ctx context.Context, ids []string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockRepository) UpdateState(ctx context.Context, id string, state domain.NotificationState) error {
	args := m.Called(ctx, id, state)
	return args.Error(0)
}

func (m *MockRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) Subscribe(ctx context.Context, recipientUID string, limit int) (Subscription, error) {
	args := m.Called(ctx, recipientUID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Subscription), args.Error(1)
}

type MockTokenSource struct {
	mock.Mock
}

func (m *MockTokenSource) Get(ctx context.Context, uid string) (*domain.DeviceToken, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DeviceToken), args.Error(1)
}

type MockBadgeMirror struct {
	mock.Mock
}

func (m *MockBadgeMirror) SetBadge(ctx context.Context, uid string, count int) error {
	args := m.Called(ctx, uid, count)
	return args.Error(0)
}

func (m *MockBadgeMirror) GetBadge(ctx context.Context, uid string) (int, error) {
	args := m.Called(ctx, uid)
	return args.Int(0), args.Error(1)
}

// stubResolver answers every recipient lookup with the same preferences
type stubResolver struct {
	prefs *domain.NotificationPreferences
	err   error
}

func (s stubResolver) NotificationPreferences(context.Context, string) (*domain.NotificationPreferences, error) {
	return s.prefs, s.err
}

// stubPermissions answers every push permission check with the same verdict
type stubPermissions struct {
	allowed bool
}

func (s stubPermissions) PushAllowed(string) bool { return s.allowed }

// fakeSubscription feeds scripted snapshots
type fakeSubscription struct {
	ch  chan []domain.Notification
	err error

	mu      sync.Mutex
	stopped bool
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{ch: make(chan []domain.Notification, 4)}
}

func (f *fakeSubscription) Snapshots() <-chan []domain.Notification { return f.ch }
func (f *fakeSubscription) Err() error                              { return f.err }

func (f *fakeSubscription) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopped {
		f.stopped = true
		close(f.ch)
	}
}

func (f *fakeSubscription) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func sample(id string, unread bool, state domain.NotificationState) domain.Notification {
	return domain.Notification{
		ID:           id,
		Title:        "Title " + id,
		Type:         domain.TypeNewMessage,
		RecipientUID: "user-1",
		IsRead:       !unread,
		State:        state,
	}
}

func TestSubscribe_SnapshotReplacesLocalState(t *testing.T) {
	repo := new(MockRepository)
	store := NewStore(repo, nil, nil, nil, nil)
	ctx := context.Background()

	sub := newFakeSubscription()
	repo.On("Subscribe", ctx, "user-1", mock.AnythingOfType("int")).Return(sub, nil)

	require.NoError(t, store.Subscribe(ctx, "user-1"))

	sub.ch <- []domain.Notification{
		sample("n1", true, domain.StateDelivered),
		sample("n2", false, domain.StateRead),
	}

	assert.Eventually(t, func() bool {
		return len(store.Notifications()) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, store.UnreadCount())
	assert.Equal(t, store.UnreadCount(), store.BadgeCount())

	// the next snapshot fully replaces local state, including entries
	// that disappeared remotely
	sub.ch <- []domain.Notification{
		sample("n3", true, domain.StateDelivered),
	}

	assert.Eventually(t, func() bool {
		ns := store.Notifications()
		return len(ns) == 1 && ns[0].ID == "n3"
	}, time.Second, 10*time.Millisecond)

	store.Unsubscribe()
}

func TestSubscribe_TearsDownPreviousSubscription(t *testing.T) {
	repo := new(MockRepository)
	store := NewStore(repo, nil, nil, nil, nil)
	ctx := context.Background()

	first := newFakeSubscription()
	second := newFakeSubscription()
	repo.On("Subscribe", ctx, "user-1", mock.AnythingOfType("int")).Return(first, nil).Once()
	repo.On("Subscribe", ctx, "user-1", mock.AnythingOfType("int")).Return(second, nil).Once()

	require.NoError(t, store.Subscribe(ctx, "user-1"))
	require.NoError(t, store.Subscribe(ctx, "user-1"))

	assert.True(t, first.isStopped(), "resubscribing must stop the previous listener")
	assert.False(t, second.isStopped())

	store.Unsubscribe()
	assert.True(t, second.isStopped())
}

func TestCreate_PendingStateNoLocalInsert(t *testing.T) {
	repo := new(MockRepository)
	store := NewStore(repo, nil, nil, nil, nil)
	ctx := context.Background()

	var persisted *domain.Notification
	repo.On("Create", ctx, mock.AnythingOfType("*domain.Notification")).Run(func(args mock.Arguments) {
		persisted = args.Get(1).(*domain.Notification)
	}).Return("generated-id", nil)

	n, err := store.Create(ctx, &domain.NotificationCreate{
		Title:        "New message",
		Body:         "hello",
		Type:         domain.TypeNewMessage,
		RecipientUID: "user-1",
	})

	require.NoError(t, err)
	assert.Equal(t, "generated-id", n.ID)
	assert.Equal(t, domain.StatePending, persisted.State)
	assert.Equal(t, domain.PriorityHigh, persisted.Priority, "priority derives from the type")
	assert.Empty(t, store.Notifications(), "local insert waits for the subscription echo")
}

func TestCreate_RejectsMissingFields(t *testing.T) {
	store := NewStore(new(MockRepository), nil, nil, nil, nil)

	_, err := store.Create(context.Background(), &domain.NotificationCreate{Body: "no title"})
	require.Error(t, err)

	_, err = store.Create(context.Background(), &domain.NotificationCreate{Title: "no recipient"})
	require.Error(t, err)
}

func TestCreate_FansOutToDeviceToken(t *testing.T) {
	repo := new(MockRepository)
	tokens := new(MockTokenSource)
	provider := &push.MockProvider{}
	store := NewStore(repo, tokens, nil, provider, nil)
	ctx := context.Background()

	repo.On("Create", ctx, mock.Anything).Return("n1", nil)
	tokens.On("Get", ctx, "user-1").Return(&domain.DeviceToken{
		Token:    "device-token",
		UserID:   "user-1",
		Platform: domain.PlatformIOS,
		Active:   true,
	}, nil)
	repo.On("UpdateState", ctx, "n1", domain.StateSent).Return(nil)

	_, err := store.Create(ctx, &domain.NotificationCreate{
		Title:        "New message",
		Type:         domain.TypeNewMessage,
		RecipientUID: "user-1",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, provider.SentCount())
	repo.AssertExpectations(t)
}

func TestCreate_PushFailureMarksFailed(t *testing.T) {
	repo := new(MockRepository)
	tokens := new(MockTokenSource)
	provider := &push.MockProvider{SendErr: fmt.Errorf("transport down")}
	store := NewStore(repo, tokens, nil, provider, nil)
	ctx := context.Background()

	repo.On("Create", ctx, mock.Anything).Return("n1", nil)
	tokens.On("Get", ctx, "user-1").Return(&domain.DeviceToken{
		Token: "device-token", UserID: "user-1", Active: true,
	}, nil)
	repo.On("UpdateState", ctx, "n1", domain.StateFailed).Return(nil)

	n, err := store.Create(ctx, &domain.NotificationCreate{
		Title:        "New message",
		Type:         domain.TypeNewMessage,
		RecipientUID: "user-1",
	})

	require.NoError(t, err, "push failure must not fail the create")
	assert.Equal(t, domain.StateFailed, n.State)
	repo.AssertExpectations(t)
}

func TestCreate_FanOutSkippedWhenPushRevoked(t *testing.T) {
	repo := new(MockRepository)
	tokens := new(MockTokenSource)
	provider := &push.MockProvider{}
	store := NewStore(repo, tokens, nil, provider, nil)
	store.SetPermissionSource(stubPermissions{allowed: false})
	ctx := context.Background()

	repo.On("Create", ctx, mock.Anything).Return("n1", nil)

	n, err := store.Create(ctx, &domain.NotificationCreate{
		Title:        "New message",
		Type:         domain.TypeNewMessage,
		RecipientUID: "user-1",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, n.State, "undeliverable notifications stay pending")
	assert.Zero(t, provider.SentCount())
	tokens.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestCreate_FanOutSuppressedByRecipientPreferences(t *testing.T) {
	prefs := domain.DefaultNotificationPreferences()
	prefs.CategoryOverrides[string(domain.CategoryMessages)] = domain.OverrideSetting{Enabled: false}

	repo := new(MockRepository)
	tokens := new(MockTokenSource)
	provider := &push.MockProvider{}
	store := NewStore(repo, tokens, nil, provider, nil)
	store.SetPreferenceResolver(stubResolver{prefs: &prefs})
	ctx := context.Background()

	repo.On("Create", ctx, mock.Anything).Return("n1", nil)

	n, err := store.Create(ctx, &domain.NotificationCreate{
		Title:        "New message",
		Type:         domain.TypeNewMessage,
		RecipientUID: "user-1",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.StatePending, n.State)
	assert.Zero(t, provider.SentCount())
	repo.AssertNotCalled(t, "UpdateState", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreate_FanOutSuppressedDuringQuietHours(t *testing.T) {
	prefs := domain.DefaultNotificationPreferences()
	prefs.QuietHoursEnabled = true
	prefs.QuietHoursStart = "00:00"
	prefs.QuietHoursEnd = "23:59"

	repo := new(MockRepository)
	provider := &push.MockProvider{}
	store := NewStore(repo, new(MockTokenSource), nil, provider, nil)
	store.SetPreferenceResolver(stubResolver{prefs: &prefs})
	ctx := context.Background()

	repo.On("Create", ctx, mock.Anything).Return("n1", nil)

	_, err := store.Create(ctx, &domain.NotificationCreate{
		Title:        "New message",
		Type:         domain.TypeNewMessage,
		RecipientUID: "user-1",
	})

	require.NoError(t, err)
	assert.Zero(t, provider.SentCount(), "quiet hours hold delivery back")
}

func TestCreate_FanOutCarriesSoundAndBadge(t *testing.T) {
	prefs := domain.DefaultNotificationPreferences()
	prefs.TypeOverrides[string(domain.TypeNewMessage)] = domain.OverrideSetting{
		Enabled: true, Sound: true, Badge: true, CustomSound: "chime.caf",
	}

	repo := new(MockRepository)
	tokens := new(MockTokenSource)
	badges := new(MockBadgeMirror)
	provider := &push.MockProvider{}
	store := NewStore(repo, tokens, badges, provider, nil)
	store.SetPreferenceResolver(stubResolver{prefs: &prefs})
	ctx := context.Background()

	repo.On("Create", ctx, mock.Anything).Return("n1", nil)
	tokens.On("Get", ctx, "user-1").Return(&domain.DeviceToken{
		Token: "device-token", UserID: "user-1", Active: true,
	}, nil)
	badges.On("GetBadge", ctx, "user-1").Return(4, nil)
	repo.On("UpdateState", ctx, "n1", domain.StateSent).Return(nil)

	_, err := store.Create(ctx, &domain.NotificationCreate{
		Title:        "New message",
		Type:         domain.TypeNewMessage,
		RecipientUID: "user-1",
	})

	require.NoError(t, err)
	require.Equal(t, 1, provider.SentCount())
	sent := provider.Sent[0]
	assert.Equal(t, "chime.caf", sent.Sound)
	require.NotNil(t, sent.Badge)
	assert.Equal(t, 5, *sent.Badge, "badge is the mirrored count plus this notification")
}

func TestCreate_FanOutResolverFailureStillDelivers(t *testing.T) {
	repo := new(MockRepository)
	tokens := new(MockTokenSource)
	provider := &push.MockProvider{}
	store := NewStore(repo, tokens, nil, provider, nil)
	store.SetPreferenceResolver(stubResolver{err: fmt.Errorf("unavailable")})
	ctx := context.Background()

	repo.On("Create", ctx, mock.Anything).Return("n1", nil)
	tokens.On("Get", ctx, "user-1").Return(&domain.DeviceToken{
		Token: "device-token", UserID: "user-1", Active: true,
	}, nil)
	repo.On("UpdateState", ctx, "n1", domain.StateSent).Return(nil)

	_, err := store.Create(ctx, &domain.NotificationCreate{
		Title:        "New message",
		Type:         domain.TypeNewMessage,
		RecipientUID: "user-1",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, provider.SentCount(), "a preference lookup failure never blocks delivery")
}

func TestMarkRead_RemoteWriteFirst(t *testing.T) {
	repo := new(MockRepository)
	store := NewStore(repo, nil, nil, nil, nil)
	ctx := context.Background()

	sub := newFakeSubscription()
	repo.On("Subscribe", ctx, "user-1", mock.AnythingOfType("int")).Return(sub, nil)
	require.NoError(t, store.Subscribe(ctx, "user-1"))
	sub.ch <- []domain.Notification{sample("n1", true, domain.StateDelivered)}
	require.Eventually(t, func() bool { return store.UnreadCount() == 1 }, time.Second, 10*time.Millisecond)

	repo.On("MarkRead", ctx, "n1").Return(nil)

	require.NoError(t, store.MarkRead(ctx, "n1"))
	assert.Equal(t, 0, store.UnreadCount())
	assert.True(t, store.Notifications()[0].IsRead)
	assert.NoError(t, store.Err())
}

func TestMarkRead_RemoteFailureLeavesLocalUnchanged(t *testing.T) {
	repo := new(MockRepository)
	store := NewStore(repo, nil, nil, nil, nil)
	ctx := context.Background()

	sub := newFakeSubscription()
	repo.On("Subscribe", ctx, "user-1", mock.AnythingOfType("int")).Return(sub, nil)
	require.NoError(t, store.Subscribe(ctx, "user-1"))
	sub.ch <- []domain.Notification{sample("n1", true, domain.StateDelivered)}
	require.Eventually(t, func() bool { return store.UnreadCount() == 1 }, time.Second, 10*time.Millisecond)

	repo.On("MarkRead", ctx, "n1").Return(fmt.Errorf("unavailable"))

	err := store.MarkRead(ctx, "n1")

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeWriteFailed))
	assert.Equal(t, 1, store.UnreadCount(), "local flip waits for remote acknowledgment")
	assert.Error(t, store.Err())
}

func TestMarkRead_KeepsDeliveryState(t *testing.T) {
	repo := new(MockRepository)
	store := NewStore(repo, nil, nil, nil, nil)
	ctx := context.Background()

	sub := newFakeSubscription()
	repo.On("Subscribe", ctx, "user-1", mock.AnythingOfType("int")).Return(sub, nil)
	require.NoError(t, store.Subscribe(ctx, "user-1"))
	sub.ch <- []domain.Notification{sample("n-sent", true, domain.StateSent)}
	require.Eventually(t, func() bool { return store.UnreadCount() == 1 }, time.Second, 10*time.Millisecond)

	repo.On("MarkRead", ctx, "n-sent").Return(nil)

	// a sent notification, one nobody has opened the app for yet, is the
	// normal mark-read target and must not be rejected
	require.NoError(t, store.MarkRead(ctx, "n-sent"))

	n := store.Notifications()[0]
	assert.True(t, n.IsRead)
	assert.Equal(t, domain.StateSent, n.State, "read flag is independent of delivery state")
}

func TestMarkAllRead_KeepsDeliveryStates(t *testing.T) {
	repo := new(MockRepository)
	store := NewStore(repo, nil, nil, nil, nil)
	ctx := context.Background()

	sub := newFakeSubscription()
	repo.On("Subscribe", ctx, "user-1", mock.AnythingOfType("int")).Return(sub, nil)
	require.NoError(t, store.Subscribe(ctx, "user-1"))
	sub.ch <- []domain.Notification{
		sample("n1", true, domain.StateSent),
		sample("n2", true, domain.StateDelivered),
	}
	require.Eventually(t, func() bool { return store.UnreadCount() == 2 }, time.Second, 10*time.Millisecond)

	repo.On("MarkAllRead", ctx, []string{"n1", "n2"}).Return(nil)

	require.NoError(t, store.MarkAllRead(ctx, "user-1"))

	ns := store.Notifications()
	assert.True(t, ns[0].IsRead)
	assert.True(t, ns[1].IsRead)
	assert.Equal(t, domain.StateSent, ns[0].State)
	assert.Equal(t, domain.StateDelivered, ns[1].State)
}

func TestMarkAllRead_BatchesUnreadOnly(t *testing.T) {
	repo := new(MockRepository)
	store := NewStore(repo, nil, nil, nil, nil)
	ctx := context.Background()

	sub := newFakeSubscription()
	repo.On("Subscribe", ctx, "user-1", mock.AnythingOfType("int")).Return(sub, nil)
	require.NoError(t, store.Subscribe(ctx, "user-1"))
	sub.ch <- []domain.Notification{
		sample("n1", true, domain.StateDelivered),
		sample("n2", false, domain.StateRead),
		sample("n3", true, domain.StateDelivered),
	}
	require.Eventually(t, func() bool { return store.UnreadCount() == 2 }, time.Second, 10*time.Millisecond)

	repo.On("MarkAllRead", ctx, []string{"n1", "n3"}).Return(nil)

	require.NoError(t, store.MarkAllRead(ctx, "user-1"))
	assert.Equal(t, 0, store.UnreadCount())
	repo.AssertExpectations(t)
}

func TestMarkAllRead_NoUnreadIsNoOp(t *testing.T) {
	repo := new(MockRepository)
	store := NewStore(repo, nil, nil, nil, nil)

	require.NoError(t, store.MarkAllRead(context.Background(), "user-1"))
	repo.AssertNotCalled(t, "MarkAllRead", mock.Anything, mock.Anything)
}

func TestMarkAllRead_BatchFailureKeepsLocalState(t *testing.T) {
	repo := new(MockRepository)
	store := NewStore(repo, nil, nil, nil, nil)
	ctx := context.Background()

	sub := newFakeSubscription()
	repo.On("Subscribe", ctx, "user-1", mock.AnythingOfType("int")).Return(sub, nil)
	require.NoError(t, store.Subscribe(ctx, "user-1"))
	sub.ch <- []domain.Notification{
		sample("n1", true, domain.StateDelivered),
		sample("n2", true, domain.StateDelivered),
	}
	require.Eventually(t, func() bool { return store.UnreadCount() == 2 }, time.Second, 10*time.Millisecond)

	repo.On("MarkAllRead", ctx, mock.Anything).Return(fmt.Errorf("batch aborted"))

	err := store.MarkAllRead(ctx, "user-1")

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBatchWriteFailed))
	assert.Equal(t, 2, store.UnreadCount(), "partial flips are never applied")
}

func TestIngestInbound_SuppressedByPreferences(t *testing.T) {
	store := NewStore(new(MockRepository), nil, nil, nil, nil)

	prefs := domain.DefaultNotificationPreferences()
	prefs.Enabled = false
	evaluator := preference.NewEvaluator(&prefs)
	store.SetEvaluator(&evaluator)

	require.NoError(t, store.IngestInbound(context.Background(), sample("n1", true, domain.StateDelivered)))
	assert.Empty(t, store.Notifications(), "disallowed notifications are dropped entirely")
}

func TestIngestInbound_HeadInsertAndDedup(t *testing.T) {
	store := NewStore(new(MockRepository), nil, nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, store.IngestInbound(ctx, sample("n1", true, domain.StateDelivered)))
	require.NoError(t, store.IngestInbound(ctx, sample("n2", true, domain.StateDelivered)))
	require.NoError(t, store.IngestInbound(ctx, sample("n1", true, domain.StateDelivered)))

	ns := store.Notifications()
	require.Len(t, ns, 2, "duplicate ids are ignored")
	assert.Equal(t, "n2", ns[0].ID, "newest notification sits at the head")
	assert.Equal(t, 2, store.UnreadCount())
}

func TestIngestInbound_BannerOnlyInForeground(t *testing.T) {
	store := NewStore(new(MockRepository), nil, nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, store.IngestInbound(ctx, sample("bg", true, domain.StateDelivered)))
	select {
	case <-store.Banner():
		t.Fatal("background ingest must not emit a banner signal")
	default:
	}

	store.SetForeground(true)
	require.NoError(t, store.IngestInbound(ctx, sample("fg", true, domain.StateDelivered)))

	select {
	case n := <-store.Banner():
		assert.Equal(t, "fg", n.ID)
	case <-time.After(time.Second):
		t.Fatal("expected a banner signal for foreground ingest")
	}
}

func TestDelete_RemoteFirst(t *testing.T) {
	repo := new(MockRepository)
	store := NewStore(repo, nil, nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, store.IngestInbound(ctx, sample("n1", true, domain.StateDelivered)))

	repo.On("Delete", ctx, "n1").Return(fmt.Errorf("unavailable")).Once()
	err := store.Delete(ctx, "n1")
	require.Error(t, err)
	assert.Len(t, store.Notifications(), 1, "failed remote delete keeps the local entry")

	repo.On("Delete", ctx, "n1").Return(nil).Once()
	require.NoError(t, store.Delete(ctx, "n1"))
	assert.Empty(t, store.Notifications())
}

func TestRetryCancelArchiveGuards(t *testing.T) {
	repo := new(MockRepository)
	store := NewStore(repo, nil, nil, nil, nil)
	ctx := context.Background()

	require.NoError(t, store.IngestInbound(ctx, sample("delivered", true, domain.StateDelivered)))
	require.NoError(t, store.IngestInbound(ctx, sample("pending", true, domain.StatePending)))

	// retry only applies to failed notifications
	err := store.Retry(ctx, "pending")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidTransition))

	// cancel only applies to pending notifications
	err = store.Cancel(ctx, "delivered")
	require.Error(t, err)

	repo.On("UpdateState", ctx, "pending", domain.StateCancelled).Return(nil)
	require.NoError(t, store.Cancel(ctx, "pending"))

	repo.On("UpdateState", ctx, "delivered", domain.StateArchived).Return(nil)
	require.NoError(t, store.Archive(ctx, "delivered"))
}
