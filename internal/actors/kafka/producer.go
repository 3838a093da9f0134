// Package kafka publishes push notifications on a kafka topic.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/rbroggi/recyclo/internal/actors/codec"
	"github.com/rbroggi/recyclo/internal/core/model"
	"github.com/rbroggi/recyclo/internal/core/ports"
)

// DefaultNotificationTopic is the topic notifications are published to.
const DefaultNotificationTopic = "recyclo.notifications"

// ProducerArgs are the mandatory arguments to build a Producer.
type ProducerArgs struct {
	// SyncProducer is the sarama producer used for publishing.
	SyncProducer sarama.SyncProducer
}

// ProducerOptArgs are the optional arguments of a Producer.
type ProducerOptArgs = func(*Producer)

// WithTopic overrides DefaultNotificationTopic.
func WithTopic(topic string) ProducerOptArgs {
	return func(p *Producer) {
		p.topic = topic
	}
}

// Producer publishes notifications keyed by recipient, so that the notifications of a user are ordered.
type Producer struct {
	sync  sarama.SyncProducer
	topic string
}

// NewProducer creates a new Producer.
func NewProducer(args ProducerArgs, optArgs ...ProducerOptArgs) (*Producer, error) {
	if args.SyncProducer == nil {
		return nil, errors.New("nil sync producer")
	}
	p := &Producer{sync: args.SyncProducer, topic: DefaultNotificationTopic}
	for _, opt := range optArgs {
		opt(p)
	}
	return p, nil
}

// NewSyncProducer connects a sarama.SyncProducer with at-least-once delivery settings.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Return.Successes = true
	// idempotent producers require a single in-flight request
	cfg.Net.MaxOpenRequests = 1
	sync, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating kafka producer: %w", err)
	}
	return sync, nil
}

// SendNotification publishes the notification.
func (p *Producer) SendNotification(ctx context.Context, notification model.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := codec.EncodeNotification(notification)
	if err != nil {
		return fmt.Errorf("error encoding notification: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(notification.RecipientID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("content-type"), Value: []byte(codec.NotificationContentType)},
		},
	}
	if _, _, err := p.sync.SendMessage(msg); err != nil {
		return fmt.Errorf("error publishing notification: %w", err)
	}
	return nil
}

// Close closes the underlying producer.
func (p *Producer) Close() error {
	return p.sync.Close()
}

var _ ports.NotificationSender = (*Producer)(nil)
