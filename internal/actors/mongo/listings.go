package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/rbroggi/recyclo/internal/core/model"
	"github.com/rbroggi/recyclo/internal/core/ports"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SaveListing will save the listing in the database.
func (p *MongoDB) SaveListing(ctx context.Context, listing *model.Listing) error {
	if listing == nil {
		return errors.New("nil listing passed to save method")
	}
	dbListing := &listingDB{
		ID:          primitive.NewObjectID(),
		OwnerID:     listing.OwnerID,
		OwnerName:   listing.OwnerName,
		Kind:        string(listing.Kind),
		Quantity:    listing.Quantity,
		Description: listing.Description,
		ImageURL:    listing.ImageURL,
		Status:      string(listing.Status),
		CreatedAt:   listing.CreatedAt,
	}
	if listing.ID != "" {
		id, err := primitive.ObjectIDFromHex(listing.ID)
		if err != nil {
			return err
		}
		dbListing.ID = id
	}
	if listing.Location != nil {
		dbListing.Location = &geoDB{Lat: listing.Location.Lat, Lng: listing.Location.Lng}
	}
	if dbListing.CreatedAt.IsZero() {
		dbListing.CreatedAt = p.nowFunc()
	}
	if _, err := p.listingCollection.InsertOne(ctx, dbListing); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return model.ErrAlreadyExists
		}
		return storeErr("inserting listing", err)
	}
	listing.ID = dbListing.ID.Hex()
	listing.CreatedAt = dbListing.CreatedAt
	return nil
}

// GetListing returns the listing or model.ErrNotFound.
func (p *MongoDB) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, model.ErrNotFound
	}
	existing := new(listingDB)
	if err := p.listingCollection.FindOne(ctx, bson.D{{Key: "_id", Value: objectID}}).Decode(existing); err != nil {
		return nil, storeErr("finding listing", err)
	}
	res := existing.toModel()
	return &res, nil
}

// ListListings list listings matching the parameters in input, most recent first.
func (p *MongoDB) ListListings(ctx context.Context, query ports.ListListingsQuery) ([]model.Listing, error) {
	filters := bson.M{}
	if query.OwnerID != "" {
		filters["owner_id"] = query.OwnerID
	}
	if len(query.Kinds) > 0 {
		kinds := make([]string, len(query.Kinds))
		for i, k := range query.Kinds {
			kinds[i] = string(k)
		}
		filters["kind"] = bson.M{"$in": kinds}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := p.listingCollection.Find(ctx, filters, opts)
	if err != nil {
		return nil, storeErr("finding listings", err)
	}
	var listings []listingDB
	if err := cursor.All(ctx, &listings); err != nil {
		return nil, storeErr("decoding listings", err)
	}
	res := make([]model.Listing, len(listings))
	for i, l := range listings {
		res[i] = l.toModel()
	}
	return res, nil
}

func (l listingDB) toModel() model.Listing {
	res := model.Listing{
		ID:          l.ID.Hex(),
		OwnerID:     l.OwnerID,
		OwnerName:   l.OwnerName,
		Kind:        model.MaterialKind(l.Kind),
		Quantity:    l.Quantity,
		Description: l.Description,
		ImageURL:    l.ImageURL,
		Status:      model.ListingStatus(l.Status),
		CreatedAt:   l.CreatedAt,
	}
	if l.Location != nil {
		res.Location = &model.GeoPoint{Lat: l.Location.Lat, Lng: l.Location.Lng}
	}
	return res
}

type geoDB struct {
	Lat float64 `bson:"lat"`
	Lng float64 `bson:"lng"`
}

type listingDB struct {
	// ID unique identifier of the listing.
	ID primitive.ObjectID `bson:"_id"`

	OwnerID     string `bson:"owner_id"`
	OwnerName   string `bson:"owner_name"`
	Kind        string `bson:"kind"`
	Quantity    string `bson:"quantity"`
	Description string `bson:"description"`
	ImageURL    string `bson:"image_url"`

	// Location is absent when the publisher had no geolocation.
	Location *geoDB `bson:"location,omitempty"`

	Status string `bson:"status"`

	// CreatedAt is the time at which the listing was published.
	CreatedAt time.Time `bson:"created_at"`
}
