package ports

import (
	"context"

	"github.com/rbroggi/recyclo/internal/core/model"
)

// EventSender is the port for publishing message events after each append.
type EventSender interface {
	// SendMessageEvent publishes the event.
	SendMessageEvent(ctx context.Context, event model.MessageEvent) error
}

// NotificationSender is the port for publishing push notifications to recipients.
type NotificationSender interface {
	// SendNotification publishes the notification.
	SendNotification(ctx context.Context, notification model.Notification) error
}

// NotificationSink receives the transient notifications raised for a signed-in user.
type NotificationSink interface {
	Notify(ctx context.Context, notification model.Notification)
}

// NotificationSinkFunc adapts a function to a NotificationSink.
type NotificationSinkFunc func(ctx context.Context, notification model.Notification)

// Notify calls f.
func (f NotificationSinkFunc) Notify(ctx context.Context, notification model.Notification) {
	f(ctx, notification)
}
