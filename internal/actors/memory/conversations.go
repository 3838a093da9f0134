// Package memory holds in-process implementations of the persistence ports, for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rbroggi/recyclo/internal/core/model"
	"github.com/rbroggi/recyclo/internal/core/ports"
)

// ConversationStore is an in-memory ports.ConversationStore. Subscriptions receive full snapshots.
type ConversationStore struct {
	mu            sync.Mutex
	conversations map[string]model.Conversation
	messages      map[string][]model.Message
	watchers      map[int64]chan struct{}
	nextWatcher   int64
	nowFunc       func() time.Time
}

// ConversationStoreOptArgs are the optional arguments for building a ConversationStore.
type ConversationStoreOptArgs = func(*ConversationStore)

// WithNowFunc can be used to override the clock used for message timestamps.
func WithNowFunc(nowFunc func() time.Time) ConversationStoreOptArgs {
	return func(s *ConversationStore) {
		s.nowFunc = nowFunc
	}
}

// NewConversationStore creates an empty store.
func NewConversationStore(optArgs ...ConversationStoreOptArgs) *ConversationStore {
	s := &ConversationStore{
		conversations: map[string]model.Conversation{},
		messages:      map[string][]model.Message{},
		watchers:      map[int64]chan struct{}{},
		nowFunc:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range optArgs {
		opt(s)
	}
	return s
}

// GetConversation returns the conversation or model.ErrNotFound.
func (s *ConversationStore) GetConversation(_ context.Context, key string) (*model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[key]
	if !ok {
		return nil, model.ErrNotFound
	}
	c = cloneConversation(c)
	return &c, nil
}

// CreateConversationIfAbsent inserts the conversation unless its key is taken.
func (s *ConversationStore) CreateConversationIfAbsent(_ context.Context, conversation *model.Conversation) (bool, error) {
	if conversation == nil {
		return false, fmt.Errorf("%w: nil conversation", model.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conversation.Key]; ok {
		return false, nil
	}
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = s.nowFunc()
	}
	s.conversations[conversation.Key] = cloneConversation(*conversation)
	s.notifyLocked()
	return true, nil
}

// AppendMessage inserts the message in the conversation.
func (s *ConversationStore) AppendMessage(_ context.Context, key string, message *model.Message) error {
	if message == nil {
		return fmt.Errorf("%w: nil message", model.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[key]; !ok {
		return model.ErrNotFound
	}
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	for _, m := range s.messages[key] {
		if m.ID == message.ID {
			// already appended by a previous attempt
			*message = m
			return nil
		}
	}
	message.ConversationKey = key
	message.CreatedAt = s.nowFunc()
	s.messages[key] = append(s.messages[key], *message)
	s.notifyLocked()
	return nil
}

// TouchMetadata moves the conversation summary forward.
func (s *ConversationStore) TouchMetadata(_ context.Context, key string, last model.LastMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[key]
	if !ok {
		return model.ErrNotFound
	}
	if last.At.Before(c.LastMessageAt) {
		return nil
	}
	c.LastMessage = last.Text
	c.LastSenderID = last.SenderID
	c.LastMessageAt = last.At
	s.conversations[key] = c
	s.notifyLocked()
	return nil
}

// ListConversationsOf returns the conversations of userID, most recent activity first.
func (s *ConversationStore) ListConversationsOf(_ context.Context, userID string) ([]model.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationsOfLocked(userID), nil
}

// ListMessages returns the messages of key ordered by creation time.
func (s *ConversationStore) ListMessages(_ context.Context, key string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messagesLocked(key), nil
}

// SubscribeMessages emits the ordered message list of key after every change.
func (s *ConversationStore) SubscribeMessages(ctx context.Context, key string) (<-chan []model.Message, error) {
	out := make(chan []model.Message)
	s.watch(ctx, func() { close(out) }, func() bool {
		s.mu.Lock()
		snapshot := s.messagesLocked(key)
		s.mu.Unlock()
		select {
		case out <- snapshot:
			return true
		case <-ctx.Done():
			return false
		}
	})
	return out, nil
}

// SubscribeConversationsOf emits the conversations of userID after every change.
func (s *ConversationStore) SubscribeConversationsOf(ctx context.Context, userID string) (<-chan []model.Conversation, error) {
	out := make(chan []model.Conversation)
	s.watch(ctx, func() { close(out) }, func() bool {
		s.mu.Lock()
		snapshot := s.conversationsOfLocked(userID)
		s.mu.Unlock()
		select {
		case out <- snapshot:
			return true
		case <-ctx.Done():
			return false
		}
	})
	return out, nil
}

// watch registers a change signal and runs emit once initially and after every signal.
// Signals are coalesced: a slow consumer only ever sees the latest snapshot.
func (s *ConversationStore) watch(ctx context.Context, onClose func(), emit func() bool) {
	signal := make(chan struct{}, 1)
	s.mu.Lock()
	s.nextWatcher++
	id := s.nextWatcher
	s.watchers[id] = signal
	s.mu.Unlock()

	go func() {
		defer onClose()
		defer func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		}()
		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
				if !emit() {
					return
				}
			}
		}
	}()
}

func (s *ConversationStore) notifyLocked() {
	for _, signal := range s.watchers {
		select {
		case signal <- struct{}{}:
		default:
		}
	}
}

func (s *ConversationStore) conversationsOfLocked(userID string) []model.Conversation {
	res := []model.Conversation{}
	for _, c := range s.conversations {
		if c.HasParticipant(userID) {
			res = append(res, cloneConversation(c))
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].LastMessageAt.Equal(res[j].LastMessageAt) {
			return res[i].Key < res[j].Key
		}
		return res[i].LastMessageAt.After(res[j].LastMessageAt)
	})
	return res
}

func (s *ConversationStore) messagesLocked(key string) []model.Message {
	res := make([]model.Message, len(s.messages[key]))
	copy(res, s.messages[key])
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res
}

func cloneConversation(c model.Conversation) model.Conversation {
	participants := make([]string, len(c.Participants))
	copy(participants, c.Participants)
	c.Participants = participants
	profiles := make(map[string]model.ParticipantProfile, len(c.Profiles))
	for k, v := range c.Profiles {
		profiles[k] = v
	}
	c.Profiles = profiles
	return c
}

var _ ports.ConversationStore = (*ConversationStore)(nil)
