package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rbroggi/recyclo/internal/core/model"
	"github.com/rbroggi/recyclo/internal/core/ports"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	ChatCollection    = "chats"
	MessageCollection = "messages"
	UserCollection    = "users"
	ListingCollection = "listings"
)

// MongoDB is a mongo adapter for persistance of conversations, users and listings.
type MongoDB struct {
	chatCollection    *mongo.Collection
	messageCollection *mongo.Collection
	userCollection    *mongo.Collection
	listingCollection *mongo.Collection
	nowFunc           func() time.Time
}

// MongoDBArgs are the mandatory arguments for the creation of a MongoDB
type MongoDBArgs struct {
	// Database holds the chats, messages, users and listings collections.
	Database *mongo.Database
}

// MongoDBOptArgs are the optional arguments for building a MongoDB
type MongoDBOptArgs = func(*MongoDB)

// WithNowFunc can be used to override the nowFunc. Useful for testing.
func WithNowFunc(nowFunc func() time.Time) MongoDBOptArgs {
	return func(p *MongoDB) {
		p.nowFunc = nowFunc
	}
}

// NewMongoDB creates a new MongoDB.
func NewMongoDB(args MongoDBArgs, optArgs ...MongoDBOptArgs) (*MongoDB, error) {
	if args.Database == nil {
		return nil, errors.New("nil database passed to mongo adapter")
	}
	m := &MongoDB{
		chatCollection:    args.Database.Collection(ChatCollection),
		messageCollection: args.Database.Collection(MessageCollection),
		userCollection:    args.Database.Collection(UserCollection),
		listingCollection: args.Database.Collection(ListingCollection),
		nowFunc:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range optArgs {
		opt(m)
	}
	return m, nil
}

// EnsureIndexes creates the indexes the queries rely on. It is idempotent.
func (p *MongoDB) EnsureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		p.messageCollection: {
			{Keys: bson.D{{Key: "conversation_key", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		p.chatCollection: {
			{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "last_message_at", Value: -1}}},
		},
		p.userCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		p.listingCollection: {
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "owner_id", Value: 1}}},
		},
	}
	for collection, models := range indexes {
		if _, err := collection.Indexes().CreateMany(ctx, models); err != nil {
			return storeErr("creating indexes on "+collection.Name(), err)
		}
	}
	return nil
}

// storeErr translates driver errors. Missing documents become model.ErrNotFound, anything else
// is reported as model.ErrStoreUnavailable.
func storeErr(operation string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.ErrNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("error %s: %w", operation, err)
	}
	return fmt.Errorf("error %s: %w: %w", operation, model.ErrStoreUnavailable, err)
}

// pump emits a snapshot initially and after every change of stream until ctx is done.
func pump[T any](ctx context.Context, stream *mongo.ChangeStream, out chan<- T, load func(context.Context) (T, error)) {
	defer close(out)
	defer func() {
		if err := stream.Close(context.Background()); err != nil {
			log.WithError(err).Warn("error closing change stream")
		}
	}()

	emit := func() bool {
		snapshot, err := load(ctx)
		if err != nil {
			// a failed reload is skipped, the next change triggers a new one
			log.WithError(err).Warn("error loading snapshot")
			return ctx.Err() == nil
		}
		select {
		case out <- snapshot:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit() {
		return
	}
	for stream.Next(ctx) {
		if !emit() {
			return
		}
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("change stream interrupted")
	}
}

var (
	_ ports.ConversationStore = (*MongoDB)(nil)
	_ ports.UserDirectory     = (*MongoDB)(nil)
	_ ports.ListingRepository = (*MongoDB)(nil)
)
