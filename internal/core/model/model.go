package model

import (
	"time"
)

// User represents a registered user in the system.
type User struct {
	// ID unique identifier of the user, issued at sign-up.
	ID string `json:"id"`

	// DisplayName is the name shown to other users.
	DisplayName string `json:"display_name"`

	// Email is the normalized user email.
	Email string `json:"email"`

	// Role is the user role. It never changes after creation.
	Role Role `json:"role"`

	// PasswordHash contains the password hash.
	PasswordHash string `json:"-"`

	// CreatedAt is the time at which the user was created in the system.
	CreatedAt time.Time `json:"created_at"`
}

// Profile returns the snapshot of the user captured on conversations.
func (u User) Profile() ParticipantProfile {
	return ParticipantProfile{Name: u.DisplayName, Email: u.Email}
}

// AuthState is emitted on every sign-in and sign-out.
type AuthState struct {
	// User is the user whose state changed.
	User User

	// SignedIn is true on sign-in and false on sign-out.
	SignedIn bool
}

// Notification is a transient event raised when a message from someone else arrives.
type Notification struct {
	// RecipientID is the user that should see the notification.
	RecipientID string `json:"recipient_id"`

	// ConversationKey identifies the conversation the message belongs to.
	ConversationKey string `json:"conversation_key"`

	// SenderID is the author of the message.
	SenderID string `json:"sender_id"`

	// Text is the message text.
	Text string `json:"text"`

	// At is the message timestamp.
	At time.Time `json:"at"`
}
