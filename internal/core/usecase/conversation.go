package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rbroggi/recyclo/internal/core/chatkey"
	"github.com/rbroggi/recyclo/internal/core/model"
	"github.com/rbroggi/recyclo/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

const fallbackProfileName = "User"

// ConversationServiceArgs contains the mandatory arguments for the ConversationService.
type ConversationServiceArgs struct {
	// Store is the conversation store.
	Store ports.ConversationStore

	// Users is used to resolve the recipient profile on first contact.
	Users ports.UserDirectory

	// Events receives a MessageEvent after every appended message.
	Events ports.EventSender
}

// ConversationServiceOptArgs are the optional arguments of the ConversationService.
type ConversationServiceOptArgs = func(*ConversationService)

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) ConversationServiceOptArgs {
	return func(s *ConversationService) {
		s.retry = p
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m ports.Metrics) ConversationServiceOptArgs {
	return func(s *ConversationService) {
		s.metrics = m
	}
}

// WithViewCacheSize sets the number of last-known views kept per kind.
func WithViewCacheSize(size int) ConversationServiceOptArgs {
	return func(s *ConversationService) {
		s.cache = newViewCache(size)
	}
}

// NewConversationService creates a new ConversationService.
func NewConversationService(args ConversationServiceArgs, opts ...ConversationServiceOptArgs) *ConversationService {
	s := &ConversationService{
		store:   args.Store,
		users:   args.Users,
		events:  args.Events,
		retry:   DefaultRetryPolicy,
		metrics: ports.NoopMetrics{},
		cache:   newViewCache(defaultViewCacheSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConversationService gathers the direct-message use-cases.
type ConversationService struct {
	store   ports.ConversationStore
	users   ports.UserDirectory
	events  ports.EventSender
	retry   RetryPolicy
	metrics ports.Metrics
	cache   *viewCache
}

// contactAttempt carries the progress of a Contact call across retries.
type contactAttempt struct {
	me    model.User
	other string
	key   string
	hint  model.ParticipantProfile

	// observed is set once GetConversation answered.
	observed bool
	// firstContact is set when the conversation was absent when observed.
	firstContact bool
	// ensured is set once the conditional create answered.
	ensured bool
	// created is set when this call won the conditional create.
	created bool
	// appended is set once the opening message is stored.
	appended bool
	// touched is set once the summary points at the opening message.
	touched bool

	message *model.Message
}

// Contact gets or creates the conversation between me and args.OtherUserID and returns its key.
// The opening message is appended only when the conversation did not exist when this call looked it up.
func (s *ConversationService) Contact(ctx context.Context, me model.User, args model.ContactArgs) (*model.ContactResponse, error) {
	if me.ID == args.OtherUserID {
		return nil, model.ErrSelfContact
	}
	text := strings.TrimSpace(args.OpeningText)
	if text == "" {
		return nil, fmt.Errorf("%w: empty opening message", model.ErrInvalidArgument)
	}
	key, err := chatkey.Derive(me.ID, args.OtherUserID)
	if err != nil {
		return nil, err
	}

	attempt := &contactAttempt{
		me:    me,
		other: args.OtherUserID,
		key:   key,
		hint:  args.OtherProfileHint,
		message: &model.Message{
			ID:       uuid.NewString(),
			SenderID: me.ID,
			Text:     text,
		},
	}
	if err := s.retry.do(ctx, "contact", func() error {
		return s.contactStep(ctx, attempt)
	}, s.metrics.RecordStoreRetry); err != nil {
		return nil, fmt.Errorf("error contacting user %s: %w", args.OtherUserID, err)
	}

	s.metrics.RecordContact(attempt.created)
	if attempt.appended {
		s.metrics.RecordMessage()
		s.emit(ctx, key, attempt.message)
	}
	return &model.ContactResponse{Key: key, Created: attempt.created}, nil
}

func (s *ConversationService) contactStep(ctx context.Context, a *contactAttempt) error {
	if !a.observed {
		_, err := s.store.GetConversation(ctx, a.key)
		switch {
		case err == nil:
			a.observed = true
		case errors.Is(err, model.ErrNotFound):
			a.observed = true
			a.firstContact = true
		default:
			return fmt.Errorf("error reading conversation %s: %w", a.key, err)
		}
	}
	if !a.firstContact {
		return nil
	}

	if !a.ensured {
		created, err := s.store.CreateConversationIfAbsent(ctx, s.newConversation(ctx, a))
		if err != nil {
			return fmt.Errorf("error creating conversation %s: %w", a.key, err)
		}
		if !created {
			// lost the race against the other participant
			if _, err := s.store.GetConversation(ctx, a.key); err != nil {
				return fmt.Errorf("error re-reading conversation %s: %w", a.key, err)
			}
			log.WithField("key", a.key).Debug("conversation created concurrently")
		}
		a.ensured = true
		a.created = created
	}

	if !a.appended {
		if err := s.store.AppendMessage(ctx, a.key, a.message); err != nil {
			return fmt.Errorf("error appending opening message to %s: %w", a.key, err)
		}
		a.appended = true
	}

	if !a.touched {
		if err := s.store.TouchMetadata(ctx, a.key, lastMessageOf(a.message)); err != nil {
			return fmt.Errorf("error touching conversation %s: %w", a.key, err)
		}
		a.touched = true
	}
	return nil
}

// newConversation builds the initial record, carrying the opening text. The recipient profile comes
// from the directory and falls back to the caller's hint when the lookup fails.
func (s *ConversationService) newConversation(ctx context.Context, a *contactAttempt) *model.Conversation {
	other := a.hint
	if s.users != nil {
		u, err := s.users.GetUser(ctx, a.other)
		if err == nil {
			other = u.Profile()
		} else {
			log.WithError(err).WithField("user-id", a.other).Debug("using profile hint")
		}
	}
	if other.Name == "" {
		other.Name = fallbackProfileName
	}

	first, second, _ := chatkey.Participants(a.key)
	return &model.Conversation{
		Key:          a.key,
		Participants: []string{first, second},
		Profiles: map[string]model.ParticipantProfile{
			a.me.ID: a.me.Profile(),
			a.other: other,
		},
		// LastMessageAt stays zero until the opening message is stored
		LastMessage:  a.message.Text,
		LastSenderID: a.me.ID,
	}
}

// SendMessage appends a message to a conversation of which me is a participant.
func (s *ConversationService) SendMessage(ctx context.Context, me model.User, args model.SendMessageArgs) (*model.Message, error) {
	if !me.Role.Can(model.CapChat) {
		return nil, fmt.Errorf("%w: role %s cannot chat", model.ErrForbidden, me.Role)
	}
	if _, err := chatkey.Other(args.Key, me.ID); err != nil {
		return nil, err
	}
	text := strings.TrimSpace(args.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty message", model.ErrInvalidArgument)
	}

	msg := &model.Message{ID: uuid.NewString(), SenderID: me.ID, Text: text}
	appended := false
	err := s.retry.do(ctx, "send-message", func() error {
		if !appended {
			if err := s.store.AppendMessage(ctx, args.Key, msg); err != nil {
				return fmt.Errorf("error appending message to %s: %w", args.Key, err)
			}
			appended = true
		}
		if err := s.store.TouchMetadata(ctx, args.Key, lastMessageOf(msg)); err != nil {
			return fmt.Errorf("error touching conversation %s: %w", args.Key, err)
		}
		return nil
	}, s.metrics.RecordStoreRetry)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordMessage()
	s.emit(ctx, args.Key, msg)
	return msg, nil
}

// ListConversations lists the conversations of me, most recent activity first.
// When the store is unavailable the last-known list is returned, if any.
func (s *ConversationService) ListConversations(ctx context.Context, me model.User) ([]model.Conversation, error) {
	var res []model.Conversation
	err := s.retry.do(ctx, "list-conversations", func() error {
		var err error
		res, err = s.store.ListConversationsOf(ctx, me.ID)
		return err
	}, s.metrics.RecordStoreRetry)
	if err == nil {
		s.cache.conversationLists.Add(me.ID, res)
		return res, nil
	}
	if cached, ok := s.cache.conversationLists.Get(me.ID); ok && errors.Is(err, model.ErrStoreUnavailable) {
		s.staleRead(err, "list-conversations")
		return cached, nil
	}
	return nil, fmt.Errorf("error listing conversations of %s: %w", me.ID, err)
}

// GetConversation returns a conversation of which me is a participant.
func (s *ConversationService) GetConversation(ctx context.Context, me model.User, key string) (*model.Conversation, error) {
	if _, err := chatkey.Other(key, me.ID); err != nil {
		return nil, err
	}
	var res *model.Conversation
	err := s.retry.do(ctx, "get-conversation", func() error {
		var err error
		res, err = s.store.GetConversation(ctx, key)
		return err
	}, s.metrics.RecordStoreRetry)
	if err == nil {
		s.cache.conversations.Add(key, *res)
		return res, nil
	}
	if cached, ok := s.cache.conversations.Get(key); ok && errors.Is(err, model.ErrStoreUnavailable) {
		s.staleRead(err, "get-conversation")
		return &cached, nil
	}
	return nil, fmt.Errorf("error getting conversation %s: %w", key, err)
}

// ListMessages returns the messages of a conversation of which me is a participant.
func (s *ConversationService) ListMessages(ctx context.Context, me model.User, key string) ([]model.Message, error) {
	if _, err := chatkey.Other(key, me.ID); err != nil {
		return nil, err
	}
	var res []model.Message
	err := s.retry.do(ctx, "list-messages", func() error {
		var err error
		res, err = s.store.ListMessages(ctx, key)
		return err
	}, s.metrics.RecordStoreRetry)
	if err == nil {
		s.cache.messages.Add(key, res)
		return res, nil
	}
	if cached, ok := s.cache.messages.Get(key); ok && errors.Is(err, model.ErrStoreUnavailable) {
		s.staleRead(err, "list-messages")
		return cached, nil
	}
	return nil, fmt.Errorf("error listing messages of %s: %w", key, err)
}

func (s *ConversationService) staleRead(err error, operation string) {
	log.WithError(err).WithField("operation", operation).Warn("serving last-known view")
	s.metrics.RecordStaleRead()
}

// emit publishes the MessageEvent of msg. Failures are logged, the message is already stored.
func (s *ConversationService) emit(ctx context.Context, key string, msg *model.Message) {
	if s.events == nil {
		return
	}
	a, b, _ := chatkey.Participants(key)
	event := model.MessageEvent{
		ID:              msg.ID,
		ConversationKey: key,
		Participants:    []string{a, b},
		SenderID:        msg.SenderID,
		Text:            msg.Text,
		CreatedAt:       msg.CreatedAt,
	}
	if err := s.events.SendMessageEvent(ctx, event); err != nil {
		log.WithError(err).WithField("message-id", msg.ID).Error("error sending message event")
	}
}

func lastMessageOf(msg *model.Message) model.LastMessage {
	at := msg.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return model.LastMessage{Text: msg.Text, SenderID: msg.SenderID, At: at}
}
