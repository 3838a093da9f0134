package ports

import (
	"context"

	"github.com/rbroggi/recyclo/internal/core/model"
)

// ConversationStore is the contract over the document database holding conversations and messages.
// Failures of the underlying store are reported wrapping model.ErrStoreUnavailable.
type ConversationStore interface {
	// GetConversation returns the conversation or model.ErrNotFound.
	GetConversation(ctx context.Context, key string) (*model.Conversation, error)

	// CreateConversationIfAbsent inserts the conversation only if no record exists for its key.
	// It reports created=false, and no error, when a record already existed. It never overwrites.
	CreateConversationIfAbsent(ctx context.Context, conversation *model.Conversation) (bool, error)

	// AppendMessage inserts the message in the conversation. CreatedAt is assigned by the store, and so
	// is ID when empty. Appending a message whose ID is already stored is a no-op that loads the stored one.
	AppendMessage(ctx context.Context, key string, message *model.Message) error

	// TouchMetadata updates the conversation summary fields. A summary older than the stored one is ignored.
	TouchMetadata(ctx context.Context, key string, last model.LastMessage) error

	// ListConversationsOf returns the conversations of userID, most recent activity first.
	ListConversationsOf(ctx context.Context, userID string) ([]model.Conversation, error)

	// ListMessages returns the messages of the conversation ordered by creation time.
	ListMessages(ctx context.Context, key string) ([]model.Message, error)

	// SubscribeMessages emits the full ordered message list of the conversation, initially and after
	// every change. The channel is closed when ctx is done.
	SubscribeMessages(ctx context.Context, key string) (<-chan []model.Message, error)

	// SubscribeConversationsOf emits the full set of conversations of userID, initially and after
	// every change to any of them. The channel is closed when ctx is done.
	SubscribeConversationsOf(ctx context.Context, userID string) (<-chan []model.Conversation, error)
}

// UserDirectory is the persistence of registered users.
type UserDirectory interface {
	// SaveUser durably saves a new user. It returns model.ErrAlreadyExists when the email is taken.
	SaveUser(ctx context.Context, user *model.User) error

	// GetUser returns the user or model.ErrNotFound.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// GetUserByEmail returns the user owning the normalized email or model.ErrNotFound.
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// ListingRepository is the persistence of material listings.
type ListingRepository interface {
	// SaveListing durably saves a new listing.
	SaveListing(ctx context.Context, listing *model.Listing) error

	// GetListing returns the listing or model.ErrNotFound.
	GetListing(ctx context.Context, id string) (*model.Listing, error)

	// ListListings lists listings matching the query, most recent first.
	ListListings(ctx context.Context, query ListListingsQuery) ([]model.Listing, error)
}

// ListListingsQuery gathers the filters of ListListings.
type ListListingsQuery struct {
	// OwnerID filters by owner. Zero-value will be ignored as filter.
	OwnerID string

	// Kinds filters by material kind. Zero-value will be ignored as filter.
	Kinds []model.MaterialKind
}
