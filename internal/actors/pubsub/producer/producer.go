package producer

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/rbroggi/recyclo/internal/actors/codec"
	"github.com/rbroggi/recyclo/internal/core/model"
	"github.com/rbroggi/recyclo/internal/core/ports"
)

// Message attribute names.
const (
	AttributeContentType = "content-type"
	AttributeRecipient   = "recipient-id"
)

// NewProducer creates a new producer.
func NewProducer(topic *pubsub.Topic) (*Producer, error) {
	if topic == nil {
		return nil, errors.New("topic is nil")
	}
	return &Producer{topic: topic}, nil
}

// Producer is the pubsub producer of message events and notifications. A producer is bound to a single
// topic, the same producer should not be used for both kinds of payloads.
type Producer struct {
	topic *pubsub.Topic
}

// SendMessageEvent publishes the event as JSON.
func (p *Producer) SendMessageEvent(ctx context.Context, event model.MessageEvent) error {
	data, err := codec.EncodeMessageEvent(event)
	if err != nil {
		return fmt.Errorf("error encoding message-event: %w", err)
	}
	return p.publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{AttributeContentType: codec.MessageEventContentType},
	})
}

// SendNotification publishes the notification as a protobuf message.
func (p *Producer) SendNotification(ctx context.Context, notification model.Notification) error {
	data, err := codec.EncodeNotification(notification)
	if err != nil {
		return fmt.Errorf("error encoding notification: %w", err)
	}
	return p.publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			AttributeContentType: codec.NotificationContentType,
			AttributeRecipient:   notification.RecipientID,
		},
	})
}

func (p *Producer) publish(ctx context.Context, msg *pubsub.Message) error {
	result := p.topic.Publish(ctx, msg)
	// Block until the result is returned and a server-generated
	// ID is returned for the published message.
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("pubsub: result.Get: %w", err)
	}
	return nil
}

var (
	_ ports.EventSender        = (*Producer)(nil)
	_ ports.NotificationSender = (*Producer)(nil)
)
