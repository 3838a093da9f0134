package model

import "time"

// ParticipantProfile is the profile snapshot captured when a conversation is created.
type ParticipantProfile struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// LastMessage are the denormalized summary fields of a conversation.
type LastMessage struct {
	Text     string    `json:"text"`
	SenderID string    `json:"sender_id"`
	At       time.Time `json:"at"`
}

// Conversation is a direct-message thread between exactly two users.
type Conversation struct {
	// Key is derived from the participants, see chatkey.Derive.
	Key string `json:"key"`

	// Participants are the two user ids in ascending order.
	Participants []string `json:"participants"`

	// Profiles holds a snapshot of each participant keyed by user id. It is never refreshed.
	Profiles map[string]ParticipantProfile `json:"profiles"`

	// LastMessage is the text of the latest message.
	LastMessage string `json:"last_message"`

	// LastMessageAt is the timestamp of the latest message.
	LastMessageAt time.Time `json:"last_message_at"`

	// LastSenderID is the author of the latest message.
	LastSenderID string `json:"last_sender_id"`

	// CreatedAt is the time at which the conversation was created.
	CreatedAt time.Time `json:"created_at"`
}

// HasParticipant reports whether userID takes part in the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Summary returns the last message fields.
func (c Conversation) Summary() LastMessage {
	return LastMessage{Text: c.LastMessage, SenderID: c.LastSenderID, At: c.LastMessageAt}
}

// Message is an immutable chat message. It is owned by its conversation.
type Message struct {
	// ID unique identifier of the message.
	ID string `json:"id"`

	// ConversationKey is the owning conversation.
	ConversationKey string `json:"conversation_key"`

	// SenderID is the author.
	SenderID string `json:"sender_id"`

	// Text is the message body.
	Text string `json:"text"`

	// CreatedAt is assigned by the store on insert.
	CreatedAt time.Time `json:"created_at"`
}

// MessageEvent is emitted after a message has been appended to a conversation.
type MessageEvent struct {
	// ID is the event id. It equals the message id.
	ID string `json:"id"`

	// ConversationKey identifies the conversation.
	ConversationKey string `json:"conversation_key"`

	// Participants are both participants of the conversation.
	Participants []string `json:"participants"`

	// SenderID is the author of the message.
	SenderID string `json:"sender_id"`

	// Text is the message body.
	Text string `json:"text"`

	// CreatedAt is the message timestamp.
	CreatedAt time.Time `json:"created_at"`
}
