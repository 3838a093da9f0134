package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rbroggi/recyclo/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockNotificationSender is a mock implementation of the NotificationSender interface.
type MockNotificationSender struct {
	sent      []model.Notification
	SendError error
}

func (m *MockNotificationSender) SendNotification(_ context.Context, notification model.Notification) error {
	m.sent = append(m.sent, notification)
	return m.SendError
}

func TestInformer_Handle(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sendingError := errors.New("sending error")
	tests := []struct {
		name               string
		event              model.MessageEvent
		sendError          error
		expectedRecipients []string
		expectedError      func(t *testing.T, err error)
	}{
		{
			name: "notifies the other participant",
			event: model.MessageEvent{
				ID:              "m1",
				ConversationKey: "u1_u2",
				Participants:    []string{"u1", "u2"},
				SenderID:        "u1",
				Text:            "hello",
				CreatedAt:       now.Add(-time.Second),
			},
			expectedRecipients: []string{"u2"},
		},
		{
			name: "sender is never notified",
			event: model.MessageEvent{
				ID:           "m2",
				Participants: []string{"u1"},
				SenderID:     "u1",
				CreatedAt:    now,
			},
		},
		{
			name: "stale event is dropped",
			event: model.MessageEvent{
				ID:           "m3",
				Participants: []string{"u1", "u2"},
				SenderID:     "u2",
				CreatedAt:    now.Add(-time.Minute),
			},
		},
		{
			name: "error in sending notification triggers error in handler",
			event: model.MessageEvent{
				ID:           "m4",
				Participants: []string{"u1", "u2"},
				SenderID:     "u2",
				CreatedAt:    now,
			},
			sendError:          sendingError,
			expectedRecipients: []string{"u1"},
			expectedError: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, sendingError)
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sender := &MockNotificationSender{SendError: test.sendError}
			informer := NewInformer(sender, WithInformerFreshness(Freshness{Now: func() time.Time { return now }}))
			err := informer.Handle(context.Background(), test.event)
			if test.expectedError != nil {
				test.expectedError(t, err)
			} else {
				require.NoError(t, err)
			}
			recipients := []string{}
			for _, n := range sender.sent {
				recipients = append(recipients, n.RecipientID)
				assert.Equal(t, test.event.SenderID, n.SenderID)
				assert.Equal(t, test.event.Text, n.Text)
				assert.Equal(t, test.event.ConversationKey, n.ConversationKey)
			}
			if test.expectedRecipients == nil {
				test.expectedRecipients = []string{}
			}
			assert.Equal(t, test.expectedRecipients, recipients)
		})
	}
}
