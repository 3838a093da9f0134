package usecase

import (
	"context"
	"fmt"

	"github.com/rbroggi/recyclo/internal/core/model"
	"github.com/rbroggi/recyclo/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// InformerOptArgs are the optional arguments of the Informer.
type InformerOptArgs = func(*Informer)

// WithInformerFreshness overrides the default freshness rule.
func WithInformerFreshness(f Freshness) InformerOptArgs {
	return func(i *Informer) {
		i.freshness = f
	}
}

// WithInformerMetrics sets the metrics collector.
func WithInformerMetrics(m ports.Metrics) InformerOptArgs {
	return func(i *Informer) {
		i.metrics = m
	}
}

// NewInformer builds a new informer.
func NewInformer(sender ports.NotificationSender, opts ...InformerOptArgs) *Informer {
	i := &Informer{sender: sender, metrics: ports.NoopMetrics{}}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Informer turns message events into public notifications. It publicly 'informs' the recipients of a message.
type Informer struct {
	sender    ports.NotificationSender
	freshness Freshness
	metrics   ports.Metrics
}

// Handle sends one notification per participant other than the sender.
func (i *Informer) Handle(ctx context.Context, event model.MessageEvent) error {
	// 1. stale events are of no use for a push notification, e.g. after a long redelivery backlog.
	if !i.freshness.Fresh(event.CreatedAt) {
		log.WithField("event-id", event.ID).Debug("dropping stale message event")
		return nil
	}

	for _, recipient := range event.Participants {
		// 2. nobody is notified about their own messages
		if recipient == event.SenderID {
			continue
		}
		notification := model.Notification{
			RecipientID:     recipient,
			ConversationKey: event.ConversationKey,
			SenderID:        event.SenderID,
			Text:            event.Text,
			At:              event.CreatedAt,
		}
		if err := i.sender.SendNotification(ctx, notification); err != nil {
			return fmt.Errorf("error sending notification of event ID [%s]: %w", event.ID, err)
		}
		i.metrics.RecordNotification()
	}
	return nil
}
