package codec

import (
	"testing"
	"time"

	"github.com/rbroggi/recyclo/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageEvent(t *testing.T) {
	event := model.MessageEvent{
		ID:              "m1",
		ConversationKey: "a_b",
		Participants:    []string{"a", "b"},
		SenderID:        "a",
		Text:            "hello",
		CreatedAt:       time.Date(2024, 5, 1, 12, 0, 0, 123456000, time.UTC),
	}
	data, err := EncodeMessageEvent(event)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"created_at":1714564800123456`)

	got, err := DecodeMessageEvent(data)
	require.NoError(t, err)
	assert.Equal(t, event, *got)
}

func TestDecodeMessageEvent_Ignored(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: "{"},
		{name: "missing id", data: `{"conversation_key":"a_b","sender_id":"a","created_at":1}`},
		{name: "missing sender", data: `{"id":"m1","conversation_key":"a_b","created_at":1}`},
		{name: "time as string", data: `{"id":"m1","conversation_key":"a_b","sender_id":"a","created_at":"yesterday"}`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := DecodeMessageEvent([]byte(test.data))
			assert.ErrorIs(t, err, ErrIgnoreEvent)
		})
	}
}

func TestNotification(t *testing.T) {
	n := model.Notification{
		RecipientID:     "b",
		ConversationKey: "a_b",
		SenderID:        "a",
		Text:            "hello",
		At:              time.Date(2024, 5, 1, 12, 0, 0, 5, time.UTC),
	}
	data, err := EncodeNotification(n)
	require.NoError(t, err)

	got, err := DecodeNotification(data)
	require.NoError(t, err)
	assert.Equal(t, n, *got)

	_, err = DecodeNotification([]byte("garbage"))
	assert.Error(t, err)
}
