// Package codec holds the wire formats of the events exchanged through the brokers.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rbroggi/recyclo/internal/core/model"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Content types set as message attributes/headers.
const (
	MessageEventContentType = "application/json"
	NotificationContentType = "application/x-protobuf"
)

var (
	// ErrIgnoreEvent is returned for payloads that can never be handled, redelivery will not help.
	ErrIgnoreEvent = errors.New("event should be ignored")
)

// EncodeMessageEvent encodes the event as JSON.
func EncodeMessageEvent(event model.MessageEvent) ([]byte, error) {
	data, err := json.Marshal(messageEventJSON{
		ID:              event.ID,
		ConversationKey: event.ConversationKey,
		Participants:    event.Participants,
		SenderID:        event.SenderID,
		Text:            event.Text,
		CreatedAt:       UnixTime{Time: event.CreatedAt},
	})
	if err != nil {
		return nil, fmt.Errorf("json marshal error: %w", err)
	}
	return data, nil
}

// DecodeMessageEvent decodes a JSON event. Payloads missing mandatory fields are rejected
// wrapping ErrIgnoreEvent.
func DecodeMessageEvent(data []byte) (*model.MessageEvent, error) {
	msg := new(messageEventJSON)
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("json unmarshal error: %w: %w", ErrIgnoreEvent, err)
	}
	if msg.ID == "" || msg.ConversationKey == "" || msg.SenderID == "" {
		return nil, fmt.Errorf("incomplete message event: %w", ErrIgnoreEvent)
	}
	return &model.MessageEvent{
		ID:              msg.ID,
		ConversationKey: msg.ConversationKey,
		Participants:    msg.Participants,
		SenderID:        msg.SenderID,
		Text:            msg.Text,
		CreatedAt:       msg.CreatedAt.Time,
	}, nil
}

// EncodeNotification encodes the notification as a protobuf google.protobuf.Struct.
func EncodeNotification(n model.Notification) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]interface{}{
		"recipient_id":     n.RecipientID,
		"conversation_key": n.ConversationKey,
		"sender_id":        n.SenderID,
		"text":             n.Text,
		"at":               n.At.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("error building notification struct: %w", err)
	}
	data, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("error marshaling notification proto message: %w", err)
	}
	return data, nil
}

// DecodeNotification decodes a notification encoded by EncodeNotification.
func DecodeNotification(data []byte) (*model.Notification, error) {
	s := new(structpb.Struct)
	if err := proto.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("error unmarshaling notification proto message: %w", err)
	}
	fields := s.GetFields()
	at, err := time.Parse(time.RFC3339Nano, fields["at"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("error parsing notification time: %w", err)
	}
	return &model.Notification{
		RecipientID:     fields["recipient_id"].GetStringValue(),
		ConversationKey: fields["conversation_key"].GetStringValue(),
		SenderID:        fields["sender_id"].GetStringValue(),
		Text:            fields["text"].GetStringValue(),
		At:              at,
	}, nil
}

type messageEventJSON struct {
	ID              string   `json:"id"`
	ConversationKey string   `json:"conversation_key"`
	Participants    []string `json:"participants"`
	SenderID        string   `json:"sender_id"`
	Text            string   `json:"text"`
	CreatedAt       UnixTime `json:"created_at"`
}

// UnixTime is a custom type to allow us to redefine how to marshal time.Time as microseconds from epoch.
type UnixTime struct {
	time.Time
}

func (ut *UnixTime) UnmarshalJSON(b []byte) error {
	var timestamp int64
	err := json.Unmarshal(b, &timestamp)
	if err != nil {
		return err
	}
	ut.Time = time.UnixMicro(timestamp).UTC()
	return nil
}

func (ut UnixTime) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(ut.UnixMicro(), 10)), nil
}
