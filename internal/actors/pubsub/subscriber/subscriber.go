package subscriber

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/rbroggi/recyclo/internal/actors/codec"
	"github.com/rbroggi/recyclo/internal/core/model"
	"github.com/rbroggi/recyclo/internal/core/ports"

	log "github.com/sirupsen/logrus"
)

// SubscriberArgs contain the mandatory arguments to build a subscriber.
type SubscriberArgs struct {
	// Subscription is a pubsub subscription
	Subscription *pubsub.Subscription

	// MessageEventHandler is a event handler
	MessageEventHandler ports.MessageEventHandler
}

// Subscriber is a pubsub async subscriber
type Subscriber struct {
	subscription        *pubsub.Subscription
	messageEventHandler ports.MessageEventHandler
}

// NewSubscriber creates a subscriber
func NewSubscriber(args SubscriberArgs) *Subscriber {
	return &Subscriber{
		subscription:        args.Subscription,
		messageEventHandler: args.MessageEventHandler,
	}
}

// Consume starts the subscriber. This is a blocking method and should be started in it's own go-routine.
// The way to terminate the method is to cancel the context in input.
func (s *Subscriber) Consume(ctx context.Context) error {
	if err := s.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		settle(s.handle(ctx, msg.ID, msg.Data), msg.Ack, msg.Nack)
	}); err != nil {
		return fmt.Errorf("error receiving messages from subscription: %w", err)
	}
	return nil
}

func (s *Subscriber) handle(ctx context.Context, id string, data []byte) error {
	event, err := codec.DecodeMessageEvent(data)
	if err != nil {
		return fmt.Errorf("error decoding message %s into message-event: %w", id, err)
	}
	if err := s.messageEventHandler.Handle(ctx, *event); err != nil {
		return fmt.Errorf("error in message event handler: %w", err)
	}
	return nil
}

// settle acks handled and undecodable messages and nacks the rest for redelivery.
func settle(err error, ack, nack func()) {
	switch {
	case err == nil:
		ack()
	case errors.Is(err, codec.ErrIgnoreEvent):
		log.WithError(err).Warn("dropping message")
		ack()
	default:
		log.WithError(err).Error("error handling message")
		nack()
	}
}

// HandlerFunc adapts a function to a ports.MessageEventHandler.
type HandlerFunc func(ctx context.Context, event model.MessageEvent) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, event model.MessageEvent) error {
	return f(ctx, event)
}
