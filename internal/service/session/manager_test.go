package session

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
	"sif-backend/internal/service/notification"
	"sif-backend/internal/service/settings"
	"sif-backend/pkg/cache"
	"sif-backend/pkg/constants"
)

// Mocks

type MockSettingsRepo struct {
	mock.Mock
}

func (m *MockSettingsRepo) Get(ctx context.Context, uid string) (*domain.UserSettings, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserSettings), args.Error(1)
}

func (m *MockSettingsRepo) GetRaw(ctx context.Context, uid string) (map[string]interface{}, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

func (m *MockSettingsRepo) Set(ctx context.Context, s *domain.UserSettings) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSettingsRepo) SetRaw(ctx context.Context, uid string, doc map[string]interface{}) error {
	args := m.Called(ctx, uid, doc)
	return args.Error(0)
}

func (m *MockSettingsRepo) Listen(ctx context.Context, uid string) (settings.Subscription, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(settings.Subscription), args.Error(1)
}

type MockOfflineStore struct {
	mock.Mock
}

func (m *MockOfflineStore) Save(ctx context.Context, s *domain.UserSettings) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockOfflineStore) Get(ctx context.Context, uid string) (*domain.UserSettings, error) {
	args := m.Called(ctx, uid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserSettings), args.Error(1)
}

func (m *MockOfflineStore) Delete(ctx context.Context, uid string) error {
	args := m.Called(ctx, uid)
	return args.Error(0)
}

type MockNotificationRepo struct {
	mock.Mock
}

func (m *MockNotificationRepo) Create(ctx context.Context, n *domain.Notification) (string, error) {
	args := m.Called(ctx, n)
	return args.String(0), args.Error(1)
}

func (m *MockNotificationRepo) MarkRead(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockNotificationRepo) MarkAllRead(ctx context.Context, ids []string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockNotificationRepo) UpdateState(ctx context.Context, id string, state domain.NotificationState) error {
	args := m.Called(ctx, id, state)
	return args.Error(0)
}

func (m *MockNotificationRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockNotificationRepo) Subscribe(ctx context.Context, recipientUID string, limit int) (notification.Subscription, error) {
	args := m.Called(ctx, recipientUID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(notification.Subscription), args.Error(1)
}

type fakeSettingsSub struct {
	ch chan *domain.UserSettings

	mu      sync.Mutex
	stopped bool
}

func newFakeSettingsSub() *fakeSettingsSub {
	return &fakeSettingsSub{ch: make(chan *domain.UserSettings, 1)}
}

func (f *fakeSettingsSub) Updates() <-chan *domain.UserSettings { return f.ch }
func (f *fakeSettingsSub) Err() error                           { return nil }

func (f *fakeSettingsSub) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopped {
		f.stopped = true
		close(f.ch)
	}
}

func (f *fakeSettingsSub) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type fakeNotificationSub struct {
	ch chan []domain.Notification

	mu      sync.Mutex
	stopped bool
}

func newFakeNotificationSub() *fakeNotificationSub {
	return &fakeNotificationSub{ch: make(chan []domain.Notification, 4)}
}

func (f *fakeNotificationSub) Snapshots() <-chan []domain.Notification { return f.ch }
func (f *fakeNotificationSub) Err() error                              { return nil }

func (f *fakeNotificationSub) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.stopped {
		f.stopped = true
		close(f.ch)
	}
}

func (f *fakeNotificationSub) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type testEnv struct {
	setRepo   *MockSettingsRepo
	offline   *MockOfflineStore
	notifRepo *MockNotificationRepo
	manager   *Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		setRepo:   new(MockSettingsRepo),
		offline:   new(MockOfflineStore),
		notifRepo: new(MockNotificationRepo),
	}
	env.manager = NewManager(context.Background(), Deps{
		SettingsRepo:     env.setRepo,
		Offline:          env.offline,
		Cache:            cache.NewSettingsCache(constants.SettingsCacheTTL, constants.SettingsCacheMaxEntries),
		Migrator:         settings.NewMigrator(),
		NotificationRepo: env.notifRepo,
	})
	return env
}

// expectOpen scripts a successful session open for uid
func (env *testEnv) expectOpen(uid string, userSettings *domain.UserSettings) (*fakeSettingsSub, *fakeNotificationSub) {
	setSub := newFakeSettingsSub()
	notifSub := newFakeNotificationSub()
	env.setRepo.On("Get", mock.Anything, uid).Return(userSettings, nil)
	env.offline.On("Save", mock.Anything, mock.Anything).Return(nil)
	env.setRepo.On("Listen", mock.Anything, uid).Return(setSub, nil)
	env.notifRepo.On("Subscribe", mock.Anything, uid, mock.AnythingOfType("int")).Return(notifSub, nil)
	return setSub, notifSub
}

func TestSession_OpensOncePerUser(t *testing.T) {
	env := newTestEnv(t)
	env.expectOpen("user-1", domain.DefaultUserSettings("user-1"))

	first, err := env.manager.Session("user-1")
	require.NoError(t, err)

	second, err := env.manager.Session("user-1")
	require.NoError(t, err)

	assert.Same(t, first, second, "repeated requests reuse the live session")
	env.setRepo.AssertNumberOfCalls(t, "Listen", 1)
	env.notifRepo.AssertNumberOfCalls(t, "Subscribe", 1)
}

func TestSession_StoresAreScopedPerUser(t *testing.T) {
	env := newTestEnv(t)
	_, aliceSub := env.expectOpen("alice", domain.DefaultUserSettings("alice"))
	env.expectOpen("bob", domain.DefaultUserSettings("bob"))

	alice, err := env.manager.Session("alice")
	require.NoError(t, err)
	bob, err := env.manager.Session("bob")
	require.NoError(t, err)

	require.NotSame(t, alice.Notifications, bob.Notifications)

	aliceSub.ch <- []domain.Notification{{
		ID: "n1", Title: "hi", Type: domain.TypeNewMessage, RecipientUID: "alice",
		State: domain.StateDelivered,
	}}

	assert.Eventually(t, func() bool {
		return len(alice.Notifications.Notifications()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Empty(t, bob.Notifications.Notifications(), "one user's snapshot never leaks into another session")
}

func TestSession_OwnPreferencesGateOwnIngest(t *testing.T) {
	env := newTestEnv(t)

	muted := domain.DefaultUserSettings("alice")
	muted.Notifications.Enabled = false
	env.expectOpen("alice", muted)
	env.expectOpen("bob", domain.DefaultUserSettings("bob"))

	alice, err := env.manager.Session("alice")
	require.NoError(t, err)
	bob, err := env.manager.Session("bob")
	require.NoError(t, err)

	inbound := domain.Notification{
		ID: "n1", Title: "hi", Type: domain.TypeNewMessage, State: domain.StateDelivered,
	}
	require.NoError(t, alice.Notifications.IngestInbound(context.Background(), inbound))
	require.NoError(t, bob.Notifications.IngestInbound(context.Background(), inbound))

	assert.Empty(t, alice.Notifications.Notifications(), "alice muted everything")
	assert.Len(t, bob.Notifications.Notifications(), 1, "alice's preferences must not gate bob")
}

func TestSession_SubscribeFailureIsNotCached(t *testing.T) {
	env := newTestEnv(t)

	failedSub := newFakeSettingsSub()
	env.setRepo.On("Get", mock.Anything, "user-1").Return(domain.DefaultUserSettings("user-1"), nil)
	env.offline.On("Save", mock.Anything, mock.Anything).Return(nil)
	env.setRepo.On("Listen", mock.Anything, "user-1").Return(failedSub, nil).Once()
	env.notifRepo.On("Subscribe", mock.Anything, "user-1", mock.AnythingOfType("int")).
		Return(nil, fmt.Errorf("unavailable")).Once()

	_, err := env.manager.Session("user-1")
	require.Error(t, err)
	assert.True(t, failedSub.isStopped(), "a half-open session must not leak its settings listener")

	retrySub := newFakeSettingsSub()
	env.setRepo.On("Listen", mock.Anything, "user-1").Return(retrySub, nil).Once()
	env.notifRepo.On("Subscribe", mock.Anything, "user-1", mock.AnythingOfType("int")).
		Return(newFakeNotificationSub(), nil).Once()

	sess, err := env.manager.Session("user-1")
	require.NoError(t, err, "the next request retries the open")
	require.NotNil(t, sess)
}

func TestClose_TearsDownAndReopens(t *testing.T) {
	env := newTestEnv(t)
	setSub, notifSub := env.expectOpen("user-1", domain.DefaultUserSettings("user-1"))

	_, err := env.manager.Session("user-1")
	require.NoError(t, err)

	env.manager.Close("user-1")
	assert.True(t, setSub.isStopped())
	assert.True(t, notifSub.isStopped())

	_, err = env.manager.Session("user-1")
	require.NoError(t, err)
	env.setRepo.AssertNumberOfCalls(t, "Listen", 2)
}

func TestCloseAll_StopsEverySession(t *testing.T) {
	env := newTestEnv(t)
	aliceSet, aliceNotif := env.expectOpen("alice", domain.DefaultUserSettings("alice"))
	bobSet, bobNotif := env.expectOpen("bob", domain.DefaultUserSettings("bob"))

	_, err := env.manager.Session("alice")
	require.NoError(t, err)
	_, err = env.manager.Session("bob")
	require.NoError(t, err)

	env.manager.CloseAll()

	assert.True(t, aliceSet.isStopped())
	assert.True(t, aliceNotif.isStopped())
	assert.True(t, bobSet.isStopped())
	assert.True(t, bobNotif.isStopped())
}
