package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rbroggi/recyclo/internal/actors/memory"
	"github.com/rbroggi/recyclo/internal/core/model"
	"github.com/rbroggi/recyclo/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dummyTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type watcherFixture struct {
	store         *memory.ConversationStore
	watcher       *NotificationWatcher
	clock         *testClock
	notifications chan model.Notification
	batches       chan struct{}
}

// waitBatch waits until the watcher processed an emitted set.
func (f *watcherFixture) waitBatch(t *testing.T) {
	t.Helper()
	select {
	case <-f.batches:
	case <-time.After(time.Second):
		require.FailNow(t, "timeout waiting for batch")
	}
}

func newWatcherFixture(t *testing.T) *watcherFixture {
	t.Helper()
	store := memory.NewConversationStore()
	for _, c := range []*model.Conversation{
		{Key: "alice_bob", Participants: []string{"alice", "bob"}},
		{Key: "alice_carol", Participants: []string{"alice", "carol"}},
	} {
		_, err := store.CreateConversationIfAbsent(context.Background(), c)
		require.NoError(t, err)
	}
	clock := &testClock{now: dummyTime}
	notifications := make(chan model.Notification, 10)
	watcher := NewNotificationWatcher(NotificationWatcherArgs{
		Store: store,
		Sink: ports.NotificationSinkFunc(func(_ context.Context, n model.Notification) {
			notifications <- n
		}),
	}, WithFreshness(Freshness{Window: 10 * time.Second, Now: clock.Now}))
	batches := make(chan struct{}, 100)
	watcher.afterBatch = func() { batches <- struct{}{} }
	return &watcherFixture{store: store, watcher: watcher, clock: clock, notifications: notifications, batches: batches}
}

func say(t *testing.T, store ports.ConversationStore, key, sender, text string, at time.Time) {
	t.Helper()
	require.NoError(t, store.TouchMetadata(context.Background(), key, model.LastMessage{Text: text, SenderID: sender, At: at}))
}

func receiveNotification(t *testing.T, ch <-chan model.Notification) model.Notification {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(time.Second):
		require.FailNow(t, "timeout waiting for notification")
	}
	return model.Notification{}
}

func TestNotificationWatcher(t *testing.T) {
	f := newWatcherFixture(t)
	store, watcher, clock, notifications := f.store, f.watcher, f.clock, f.notifications
	ctx := context.Background()

	// present before sign-in, part of the baseline
	say(t, store, "alice_bob", "bob", "old news", dummyTime)

	state, _ := watcher.State()
	assert.Equal(t, WatcherIdle, state)

	require.NoError(t, watcher.SignedIn(ctx, alice))
	f.waitBatch(t)
	state, userID := watcher.State()
	assert.Equal(t, WatcherWatching, state)
	assert.Equal(t, "alice", userID)

	clock.Set(dummyTime.Add(time.Minute))
	say(t, store, "alice_bob", "bob", "fresh", dummyTime.Add(time.Minute-time.Second))

	n := receiveNotification(t, notifications)
	assert.Equal(t, model.Notification{
		RecipientID:     "alice",
		ConversationKey: "alice_bob",
		SenderID:        "bob",
		Text:            "fresh",
		At:              dummyTime.Add(time.Minute - time.Second),
	}, n)

	f.waitBatch(t)
	// stale message
	say(t, store, "alice_carol", "carol", "late", dummyTime.Add(time.Second))
	f.waitBatch(t)
	// own message
	say(t, store, "alice_carol", "alice", "mine", dummyTime.Add(time.Minute))
	f.waitBatch(t)
	// fresh message from carol is the next notification
	say(t, store, "alice_carol", "carol", "hello alice", dummyTime.Add(time.Minute))

	n = receiveNotification(t, notifications)
	assert.Equal(t, "carol", n.SenderID)
	assert.Equal(t, "hello alice", n.Text)

	done := watcher.Done()
	watcher.SignedOut()
	watcher.SignedOut()
	state, _ = watcher.State()
	assert.Equal(t, WatcherIdle, state)
	select {
	case <-done:
	default:
		assert.Fail(t, "subscription still running after sign-out")
	}

	say(t, store, "alice_bob", "bob", "while away", dummyTime.Add(time.Minute))
	select {
	case n := <-notifications:
		assert.Failf(t, "notification while idle", "%+v", n)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotificationWatcher_Suppression(t *testing.T) {
	tests := []struct {
		name     string
		sender   string
		at       time.Time
		notified bool
	}{
		{name: "fresh message from the other participant", sender: "bob", at: dummyTime.Add(-time.Second), notified: true},
		{name: "message at the window edge", sender: "bob", at: dummyTime.Add(-10 * time.Second), notified: true},
		{name: "stale message", sender: "bob", at: dummyTime.Add(-11 * time.Second)},
		{name: "own fresh message", sender: "alice", at: dummyTime},
		{name: "own message from the future", sender: "alice", at: dummyTime.Add(time.Second)},
		{name: "no sender", sender: "", at: dummyTime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWatcherFixture(t)
			require.NoError(t, f.watcher.SignedIn(context.Background(), alice))
			defer f.watcher.SignedOut()
			f.waitBatch(t)

			say(t, f.store, "alice_bob", tt.sender, "a summary change", tt.at)
			f.waitBatch(t)

			select {
			case n := <-f.notifications:
				require.True(t, tt.notified, "unexpected notification %+v", n)
				assert.Equal(t, tt.sender, n.SenderID)
				assert.Equal(t, "alice", n.RecipientID)
			default:
				assert.False(t, tt.notified, "expected a notification")
			}
		})
	}
}

func TestNotificationWatcher_SignedInReplacesUser(t *testing.T) {
	f := newWatcherFixture(t)
	store, watcher, notifications := f.store, f.watcher, f.notifications
	ctx := context.Background()

	require.NoError(t, watcher.SignedIn(ctx, alice))
	f.waitBatch(t)
	first := watcher.Done()
	require.NoError(t, watcher.SignedIn(ctx, alice))
	assert.Equal(t, first, watcher.Done(), "same user keeps the subscription")

	require.NoError(t, watcher.SignedIn(ctx, bob))
	<-first
	f.waitBatch(t)
	_, userID := watcher.State()
	assert.Equal(t, "bob", userID)

	say(t, store, "alice_bob", "alice", "for bob", dummyTime)
	n := receiveNotification(t, notifications)
	assert.Equal(t, "bob", n.RecipientID)
	watcher.SignedOut()
}

func TestNotificationWatcher_FollowsAuthState(t *testing.T) {
	f := newWatcherFixture(t)
	store, watcher, notifications := f.store, f.watcher, f.notifications
	ctx := context.Background()
	accounts := NewAccountService(AccountServiceArgs{Users: memory.NewUserDirectory()})

	session, err := accounts.SignUp(ctx, model.SignUpArgs{
		DisplayName: "Dana",
		Email:       "dana@example.com",
		Password:    "secret123",
		Role:        model.RoleCenter,
	})
	require.NoError(t, err)

	stop, err := watcher.Follow(ctx, accounts, session.User)
	require.NoError(t, err)
	defer stop()
	f.waitBatch(t)
	state, _ := watcher.State()
	assert.Equal(t, WatcherWatching, state)

	require.NoError(t, accounts.SignOut(ctx, session.Token))
	state, _ = watcher.State()
	assert.Equal(t, WatcherIdle, state)

	_, err = accounts.SignIn(ctx, "dana@example.com", "secret123")
	require.NoError(t, err)
	f.waitBatch(t)
	state, userID := watcher.State()
	assert.Equal(t, WatcherWatching, state)
	assert.Equal(t, session.User.ID, userID)

	key := "alice_" + session.User.ID
	if session.User.ID < "alice" {
		key = session.User.ID + "_alice"
	}
	_, err = store.CreateConversationIfAbsent(ctx, &model.Conversation{Key: key, Participants: []string{"alice", session.User.ID}})
	require.NoError(t, err)
	say(t, store, key, "alice", "welcome", dummyTime)
	n := receiveNotification(t, notifications)
	assert.Equal(t, session.User.ID, n.RecipientID)

	stop()
	stop()
	state, _ = watcher.State()
	assert.Equal(t, WatcherIdle, state)
}

// endingStore hands out subscriptions the test can end.
type endingStore struct {
	ports.ConversationStore
	subscriptions chan chan []model.Conversation
}

// SubscribeConversationsOf forwards what the test writes on the subscription until the test closes
// it or ctx ends.
func (s *endingStore) SubscribeConversationsOf(ctx context.Context, _ string) (<-chan []model.Conversation, error) {
	in := make(chan []model.Conversation)
	out := make(chan []model.Conversation)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case convs, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- convs:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	s.subscriptions <- in
	return out, nil
}

func TestNotificationWatcher_SubscriptionEndedByStore(t *testing.T) {
	store := &endingStore{ConversationStore: memory.NewConversationStore(), subscriptions: make(chan chan []model.Conversation, 2)}
	watcher := NewNotificationWatcher(NotificationWatcherArgs{
		Store: store,
		Sink:  ports.NotificationSinkFunc(func(context.Context, model.Notification) {}),
	})

	require.NoError(t, watcher.SignedIn(context.Background(), alice))
	sub := <-store.subscriptions
	sub <- []model.Conversation{{Key: "alice_bob", Participants: []string{"alice", "bob"}}}
	done := watcher.Done()
	close(sub)

	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "watcher did not notice the end of the subscription")
	}
	assert.Eventually(t, func() bool {
		state, _ := watcher.State()
		return state == WatcherIdle
	}, time.Second, 5*time.Millisecond)
	assert.Nil(t, watcher.Done())

	// a new sign-in subscribes again
	require.NoError(t, watcher.SignedIn(context.Background(), alice))
	<-store.subscriptions
	state, userID := watcher.State()
	assert.Equal(t, WatcherWatching, state)
	assert.Equal(t, "alice", userID)
	watcher.SignedOut()
	watcher.SignedOut()
}

func TestFreshness(t *testing.T) {
	now := dummyTime
	f := Freshness{Now: func() time.Time { return now }}
	assert.True(t, f.Fresh(now))
	assert.True(t, f.Fresh(now.Add(-DefaultFreshnessWindow)))
	assert.False(t, f.Fresh(now.Add(-DefaultFreshnessWindow-time.Millisecond)))
}
