package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/rbroggi/recyclo/internal/core/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// SaveUser will save the user in the database. The unique email index reports taken emails.
func (p *MongoDB) SaveUser(ctx context.Context, user *model.User) error {
	if user == nil {
		return errors.New("nil user passed to save method")
	}

	dbUser, err := p.toUserDB(user)
	if err != nil {
		return err
	}
	if _, err := p.userCollection.InsertOne(ctx, dbUser); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return model.ErrAlreadyExists
		}
		return storeErr("inserting user", err)
	}

	user.ID = dbUser.ID.Hex()
	user.CreatedAt = dbUser.CreatedAt
	return nil
}

// GetUser returns the user or model.ErrNotFound.
func (p *MongoDB) GetUser(ctx context.Context, id string) (*model.User, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		// ids not issued by this store cannot exist
		return nil, model.ErrNotFound
	}
	return p.findUser(ctx, bson.D{{Key: "_id", Value: objectID}})
}

// GetUserByEmail returns the user or model.ErrNotFound.
func (p *MongoDB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return p.findUser(ctx, bson.D{{Key: "email", Value: email}})
}

func (p *MongoDB) findUser(ctx context.Context, filter bson.D) (*model.User, error) {
	existing := new(userDB)
	if err := p.userCollection.FindOne(ctx, filter).Decode(existing); err != nil {
		return nil, storeErr("finding user", err)
	}
	res := existing.toModel()
	return &res, nil
}

func (p *MongoDB) toUserDB(user *model.User) (*userDB, error) {
	dbUser := &userDB{
		DisplayName:  user.DisplayName,
		Email:        user.Email,
		Role:         string(user.Role),
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
	}
	if len(user.ID) == 0 {
		dbUser.ID = primitive.NewObjectID()
	} else {
		var err error
		dbUser.ID, err = primitive.ObjectIDFromHex(user.ID)
		if err != nil {
			return nil, err
		}
	}
	if dbUser.CreatedAt.IsZero() {
		dbUser.CreatedAt = p.nowFunc()
	}
	return dbUser, nil
}

func (u userDB) toModel() model.User {
	return model.User{
		ID:           u.ID.Hex(),
		DisplayName:  u.DisplayName,
		Email:        u.Email,
		Role:         model.Role(u.Role),
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

type userDB struct {
	// ID unique identifier of the user.
	ID primitive.ObjectID `bson:"_id"`

	// DisplayName is the name shown to other users.
	DisplayName string `bson:"display_name"`

	// Email is the normalized user email.
	Email string `bson:"email"`

	// Role is the user role.
	Role string `bson:"role"`

	// PasswordHash contains the password hash.
	PasswordHash string `bson:"password_hash"`

	// CreatedAt is the time at which the user was created in the system.
	CreatedAt time.Time `bson:"created_at"`
}
