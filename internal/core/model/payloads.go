package model

import (
	"io"
	"time"
)

// ContactArgs contain the arguments of the Contact use-case.
type ContactArgs struct {
	// OtherUserID is the user to contact.
	OtherUserID string

	// OtherProfileHint is the recipient profile known by the caller, e.g. denormalized on a listing.
	// It is only used when the authoritative profile cannot be fetched.
	OtherProfileHint ParticipantProfile

	// OpeningText is the first message of the conversation.
	OpeningText string
}

// ContactResponse contains the response of the Contact use-case.
type ContactResponse struct {
	// Key is the conversation key to navigate to.
	Key string

	// Created is true when this call created the conversation record.
	Created bool
}

// SendMessageArgs contain the arguments of the SendMessage use-case.
type SendMessageArgs struct {
	// Key is the conversation key.
	Key string

	// Text is the message body.
	Text string
}

// SignUpArgs contain the arguments of the SignUp use-case.
type SignUpArgs struct {
	// DisplayName is the user display name.
	DisplayName string

	// Email is the user email.
	Email string

	// Password is the user password.
	Password string

	// Role is the user role.
	Role Role
}

// Session is returned on successful sign-up and sign-in.
type Session struct {
	// Token is the bearer token of the session.
	Token string `json:"token"`

	// ExpiresAt is the end of validity of Token.
	ExpiresAt time.Time `json:"expires_at"`

	// User is the authenticated user.
	User User `json:"user"`
}

// PublishListingArgs contain the arguments of the Publish use-case.
type PublishListingArgs struct {
	// Kind is the material kind.
	Kind MaterialKind

	// Quantity is a free text quantity.
	Quantity string

	// Description is an optional description.
	Description string

	// Image is the listing photo content.
	Image io.Reader

	// ImageExt is the photo file extension without the dot.
	ImageExt string

	// ContentType is the photo MIME type.
	ContentType string

	// Location is the pickup location. Publishing is refused when nil.
	Location *GeoPoint
}
