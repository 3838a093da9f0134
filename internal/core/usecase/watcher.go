package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rbroggi/recyclo/internal/core/model"
	"github.com/rbroggi/recyclo/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// DefaultFreshnessWindow is the maximum age of a message for it to raise a notification.
const DefaultFreshnessWindow = 10 * time.Second

// Freshness decides whether a message is recent enough to be notified.
type Freshness struct {
	// Window is the maximum age. Zero-value means DefaultFreshnessWindow.
	Window time.Duration

	// Now is the clock. Zero-value means time.Now.
	Now func() time.Time
}

// Fresh reports whether a message sent at `at` is still within the window.
func (f Freshness) Fresh(at time.Time) bool {
	window := f.Window
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	return now().Sub(at) <= window
}

// WatcherState is the state of a NotificationWatcher.
type WatcherState int

const (
	// WatcherIdle means no user is signed in.
	WatcherIdle WatcherState = iota
	// WatcherWatching means the conversations of a user are being watched.
	WatcherWatching
)

func (s WatcherState) String() string {
	if s == WatcherWatching {
		return "watching"
	}
	return "idle"
}

// NotificationWatcherArgs contains the mandatory arguments for the NotificationWatcher.
type NotificationWatcherArgs struct {
	// Store is subscribed to for the conversations of the signed-in user.
	Store ports.ConversationStore

	// Sink receives the raised notifications.
	Sink ports.NotificationSink
}

// NotificationWatcherOptArgs are the optional arguments of the NotificationWatcher.
type NotificationWatcherOptArgs = func(*NotificationWatcher)

// WithFreshness overrides the default freshness rule.
func WithFreshness(f Freshness) NotificationWatcherOptArgs {
	return func(w *NotificationWatcher) {
		w.freshness = f
	}
}

// WithWatcherMetrics sets the metrics collector.
func WithWatcherMetrics(m ports.Metrics) NotificationWatcherOptArgs {
	return func(w *NotificationWatcher) {
		w.metrics = m
	}
}

// NewNotificationWatcher creates an idle NotificationWatcher.
func NewNotificationWatcher(args NotificationWatcherArgs, opts ...NotificationWatcherOptArgs) *NotificationWatcher {
	w := &NotificationWatcher{
		store:   args.Store,
		sink:    args.Sink,
		metrics: ports.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NotificationWatcher raises a notification when someone else writes in one of the signed-in user's
// conversations. It is driven by sign-in and sign-out.
type NotificationWatcher struct {
	store     ports.ConversationStore
	sink      ports.NotificationSink
	freshness Freshness
	metrics   ports.Metrics
	// afterBatch is called once every emitted set has been processed.
	afterBatch func()

	mu     sync.Mutex
	userID string
	cancel context.CancelFunc
	done   chan struct{}
}

// SignedIn starts watching the conversations of user, replacing any previous subscription.
func (w *NotificationWatcher) SignedIn(ctx context.Context, user model.User) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil && w.userID == user.ID {
		return nil
	}
	w.stopLocked()

	subCtx, cancel := context.WithCancel(ctx)
	ch, err := w.store.SubscribeConversationsOf(subCtx, user.ID)
	if err != nil {
		cancel()
		return fmt.Errorf("error subscribing to conversations of %s: %w", user.ID, err)
	}
	done := make(chan struct{})
	w.userID = user.ID
	w.cancel = cancel
	w.done = done
	go w.run(subCtx, user.ID, ch, done)
	log.WithField("user-id", user.ID).Debug("watching conversations")
	return nil
}

// SignedOut stops watching. It is idempotent and waits for the running subscription to end.
func (w *NotificationWatcher) SignedOut() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
}

// State returns the current state and the watched user id, if any.
func (w *NotificationWatcher) State() (WatcherState, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel == nil {
		return WatcherIdle, ""
	}
	return WatcherWatching, w.userID
}

// Done is closed when the current subscription ends, on sign-out or when the store ends it.
// It is nil when idle.
func (w *NotificationWatcher) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// Follow drives the watcher from the auth state changes of user, starting in Watching state.
// The returned function stops following and signs the watcher out.
func (w *NotificationWatcher) Follow(ctx context.Context, accounts *AccountService, user model.User) (func(), error) {
	if err := w.SignedIn(ctx, user); err != nil {
		return nil, err
	}
	unsubscribe := accounts.OnAuthStateChanged(func(state model.AuthState) {
		if state.User.ID != user.ID {
			return
		}
		if state.SignedIn {
			if err := w.SignedIn(ctx, state.User); err != nil {
				log.WithError(err).WithField("user-id", user.ID).Error("error re-watching conversations")
			}
			return
		}
		w.SignedOut()
	})
	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			w.SignedOut()
		})
	}, nil
}

func (w *NotificationWatcher) stopLocked() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
	w.cancel = nil
	w.done = nil
	w.userID = ""
}

func (w *NotificationWatcher) run(ctx context.Context, me string, ch <-chan []model.Conversation, done chan struct{}) {
	w.consume(ctx, me, ch)
	// closed before taking mu, stopLocked waits for it while holding mu
	close(done)
	if ctx.Err() == nil {
		log.WithField("user-id", me).Warn("conversation subscription ended, watcher back to idle")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done == done {
		w.cancel()
		w.cancel = nil
		w.done = nil
		w.userID = ""
	}
}

func (w *NotificationWatcher) consume(ctx context.Context, me string, ch <-chan []model.Conversation) {
	previous := map[string]model.LastMessage{}
	baseline := true
	for convs := range ch {
		for _, c := range convs {
			summary := c.Summary()
			prev, seen := previous[c.Key]
			previous[c.Key] = summary
			if baseline || (seen && prev.Text == summary.Text && prev.SenderID == summary.SenderID && prev.At.Equal(summary.At)) {
				continue
			}
			if !w.shouldNotify(me, summary) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			w.sink.Notify(ctx, model.Notification{
				RecipientID:     me,
				ConversationKey: c.Key,
				SenderID:        summary.SenderID,
				Text:            summary.Text,
				At:              summary.At,
			})
			w.metrics.RecordNotification()
		}
		baseline = false
		if w.afterBatch != nil {
			w.afterBatch()
		}
	}
}

func (w *NotificationWatcher) shouldNotify(me string, summary model.LastMessage) bool {
	if summary.SenderID == "" || summary.SenderID == me {
		return false
	}
	return w.freshness.Fresh(summary.At)
}
