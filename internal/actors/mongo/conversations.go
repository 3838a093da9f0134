package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rbroggi/recyclo/internal/core/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GetConversation returns the conversation or model.ErrNotFound.
func (p *MongoDB) GetConversation(ctx context.Context, key string) (*model.Conversation, error) {
	existing := new(chatDB)
	if err := p.chatCollection.FindOne(ctx, bson.D{{Key: "_id", Value: key}}).Decode(existing); err != nil {
		return nil, storeErr("finding conversation", err)
	}
	res := existing.toModel()
	return &res, nil
}

// CreateConversationIfAbsent inserts the conversation keyed on _id. A duplicate key means another
// actor created it first.
func (p *MongoDB) CreateConversationIfAbsent(ctx context.Context, conversation *model.Conversation) (bool, error) {
	if conversation == nil {
		return false, fmt.Errorf("%w: nil conversation", model.ErrInvalidArgument)
	}
	dbChat := toChatDB(conversation)
	dbChat.CreatedAt = p.nowFunc()
	if _, err := p.chatCollection.InsertOne(ctx, dbChat); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, storeErr("inserting conversation", err)
	}
	conversation.CreatedAt = dbChat.CreatedAt
	return true, nil
}

// AppendMessage inserts the message. Re-inserting an already stored message id loads the stored message.
func (p *MongoDB) AppendMessage(ctx context.Context, key string, message *model.Message) error {
	if message == nil {
		return fmt.Errorf("%w: nil message", model.ErrInvalidArgument)
	}
	if err := p.conversationExists(ctx, key); err != nil {
		return err
	}
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	dbMessage := messageDB{
		ID:              message.ID,
		ConversationKey: key,
		SenderID:        message.SenderID,
		Text:            message.Text,
		CreatedAt:       p.nowFunc(),
	}
	if _, err := p.messageCollection.InsertOne(ctx, dbMessage); err != nil {
		if !mongo.IsDuplicateKeyError(err) {
			return storeErr("inserting message", err)
		}
		if err := p.messageCollection.FindOne(ctx, bson.D{{Key: "_id", Value: message.ID}}).Decode(&dbMessage); err != nil {
			return storeErr("finding message", err)
		}
	}
	*message = dbMessage.toModel()
	return nil
}

// TouchMetadata moves the summary forward. The filter rejects a summary older than the stored one.
func (p *MongoDB) TouchMetadata(ctx context.Context, key string, last model.LastMessage) error {
	filter := bson.D{
		{Key: "_id", Value: key},
		{Key: "$or", Value: bson.A{
			bson.D{{Key: "last_message_at", Value: bson.D{{Key: "$exists", Value: false}}}},
			bson.D{{Key: "last_message_at", Value: bson.D{{Key: "$lte", Value: last.At}}}},
		}},
	}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "last_message", Value: last.Text},
		{Key: "last_sender_id", Value: last.SenderID},
		{Key: "last_message_at", Value: last.At},
	}}}
	res, err := p.chatCollection.UpdateOne(ctx, filter, update)
	if err != nil {
		return storeErr("updating conversation summary", err)
	}
	if res.MatchedCount == 0 {
		// either missing or already ahead
		return p.conversationExists(ctx, key)
	}
	return nil
}

// ListConversationsOf returns the conversations of userID, most recent activity first.
func (p *MongoDB) ListConversationsOf(ctx context.Context, userID string) ([]model.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := p.chatCollection.Find(ctx, bson.D{{Key: "participants", Value: userID}}, opts)
	if err != nil {
		return nil, storeErr("finding conversations", err)
	}
	var chats []chatDB
	if err := cursor.All(ctx, &chats); err != nil {
		return nil, storeErr("decoding conversations", err)
	}
	res := make([]model.Conversation, len(chats))
	for i, c := range chats {
		res[i] = c.toModel()
	}
	return res, nil
}

// ListMessages returns the messages of key ordered by creation time.
func (p *MongoDB) ListMessages(ctx context.Context, key string) ([]model.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := p.messageCollection.Find(ctx, bson.D{{Key: "conversation_key", Value: key}}, opts)
	if err != nil {
		return nil, storeErr("finding messages", err)
	}
	var messages []messageDB
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, storeErr("decoding messages", err)
	}
	res := make([]model.Message, len(messages))
	for i, m := range messages {
		res[i] = m.toModel()
	}
	return res, nil
}

// SubscribeMessages emits the ordered message list of key initially and after every insert.
// Change streams require a replica set.
func (p *MongoDB) SubscribeMessages(ctx context.Context, key string) (<-chan []model.Message, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "fullDocument.conversation_key", Value: key}}}},
	}
	stream, err := p.messageCollection.Watch(ctx, pipeline)
	if err != nil {
		return nil, storeErr("watching messages", err)
	}
	out := make(chan []model.Message)
	go pump(ctx, stream, out, func(ctx context.Context) ([]model.Message, error) {
		return p.ListMessages(ctx, key)
	})
	return out, nil
}

// SubscribeConversationsOf emits the conversations of userID initially and after every change to any of them.
func (p *MongoDB) SubscribeConversationsOf(ctx context.Context, userID string) (<-chan []model.Conversation, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "fullDocument.participants", Value: userID}}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := p.chatCollection.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, storeErr("watching conversations", err)
	}
	out := make(chan []model.Conversation)
	go pump(ctx, stream, out, func(ctx context.Context) ([]model.Conversation, error) {
		return p.ListConversationsOf(ctx, userID)
	})
	return out, nil
}

func (p *MongoDB) conversationExists(ctx context.Context, key string) error {
	n, err := p.chatCollection.CountDocuments(ctx, bson.D{{Key: "_id", Value: key}}, options.Count().SetLimit(1))
	if err != nil {
		return storeErr("counting conversations", err)
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func toChatDB(c *model.Conversation) *chatDB {
	profiles := make(map[string]profileDB, len(c.Profiles))
	for id, p := range c.Profiles {
		profiles[id] = profileDB{Name: p.Name, Email: p.Email}
	}
	res := &chatDB{
		Key:          c.Key,
		Participants: c.Participants,
		Profiles:     profiles,
		LastMessage:  c.LastMessage,
		LastSenderID: c.LastSenderID,
	}
	if !c.LastMessageAt.IsZero() {
		at := c.LastMessageAt
		res.LastMessageAt = &at
	}
	return res
}

func (c chatDB) toModel() model.Conversation {
	profiles := make(map[string]model.ParticipantProfile, len(c.Profiles))
	for id, p := range c.Profiles {
		profiles[id] = model.ParticipantProfile{Name: p.Name, Email: p.Email}
	}
	res := model.Conversation{
		Key:          c.Key,
		Participants: c.Participants,
		Profiles:     profiles,
		LastMessage:  c.LastMessage,
		LastSenderID: c.LastSenderID,
		CreatedAt:    c.CreatedAt,
	}
	if c.LastMessageAt != nil {
		res.LastMessageAt = *c.LastMessageAt
	}
	return res
}

func (m messageDB) toModel() model.Message {
	return model.Message{
		ID:              m.ID,
		ConversationKey: m.ConversationKey,
		SenderID:        m.SenderID,
		Text:            m.Text,
		CreatedAt:       m.CreatedAt,
	}
}

type profileDB struct {
	Name  string `bson:"name"`
	Email string `bson:"email"`
}

type chatDB struct {
	// Key is the conversation key.
	Key string `bson:"_id"`

	// Participants are the two user ids in ascending order.
	Participants []string `bson:"participants"`

	// Profiles is the snapshot of both participants keyed by user id.
	Profiles map[string]profileDB `bson:"participant_info"`

	LastMessage  string `bson:"last_message"`
	LastSenderID string `bson:"last_sender_id"`

	// LastMessageAt is absent until the first message is summarized.
	LastMessageAt *time.Time `bson:"last_message_at,omitempty"`

	// CreatedAt is the time at which the conversation was created.
	CreatedAt time.Time `bson:"created_at"`
}

type messageDB struct {
	ID              string    `bson:"_id"`
	ConversationKey string    `bson:"conversation_key"`
	SenderID        string    `bson:"sender_id"`
	Text            string    `bson:"text"`
	CreatedAt       time.Time `bson:"created_at"`
}
