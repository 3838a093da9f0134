package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/google/uuid"
	"github.com/rbroggi/recyclo/internal/core/model"
	"github.com/rbroggi/recyclo/internal/core/ports"
)

// PostgresDB is a postgress adapter for persistance of users and listings.
type PostgresDB struct {
	db      *pg.DB
	nowFunc func() time.Time
}

// PostgresDBArgs are the mandatory arguments for the creation of a PostgresDB
type PostgresDBArgs struct {
	// DB is a postgres database handle
	DB *pg.DB
}

// PostgresDBOptArgs are the optional arguments for building a PostgresDB
type PostgresDBOptArgs = func(*PostgresDB)

// WithNowFunc can be used to override the nowFunc. Useful for testing.
func WithNowFunc(nowFunc func() time.Time) PostgresDBOptArgs {
	return func(p *PostgresDB) {
		p.nowFunc = nowFunc
	}
}

// NewPostgresDB creates a new PostgresDB.
func NewPostgresDB(args PostgresDBArgs, optArgs ...PostgresDBOptArgs) (*PostgresDB, error) {
	if args.DB == nil {
		return nil, errors.New("nil db passed to postgres adapter")
	}
	pg := &PostgresDB{db: args.DB, nowFunc: func() time.Time { return time.Now().UTC() }}
	for _, opt := range optArgs {
		opt(pg)
	}
	return pg, nil
}

// SaveUser will save the user in the database. A taken email is reported as model.ErrAlreadyExists.
func (p *PostgresDB) SaveUser(ctx context.Context, user *model.User) error {
	if user == nil {
		return errors.New("nil user passed to save method")
	}

	dbUser := p.toUserDB(user)
	if _, err := p.db.ModelContext(ctx, dbUser).Insert(); err != nil {
		return storeErr("inserting user", err)
	}

	user.ID = dbUser.ID
	user.CreatedAt = dbUser.CreatedAt
	return nil
}

// GetUser returns the user or model.ErrNotFound.
func (p *PostgresDB) GetUser(ctx context.Context, id string) (*model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		// ids not issued by this store cannot exist
		return nil, model.ErrNotFound
	}
	return p.findUser(ctx, "id = ?", id)
}

// GetUserByEmail returns the user or model.ErrNotFound.
func (p *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return p.findUser(ctx, "email = ?", email)
}

func (p *PostgresDB) findUser(ctx context.Context, condition string, param interface{}) (*model.User, error) {
	existing := new(userDB)
	if err := p.db.ModelContext(ctx, existing).Where(condition, param).Select(); err != nil {
		return nil, storeErr("selecting user", err)
	}
	res := existing.toModel()
	return &res, nil
}

// SaveListing will save the listing in the database.
func (p *PostgresDB) SaveListing(ctx context.Context, listing *model.Listing) error {
	if listing == nil {
		return errors.New("nil listing passed to save method")
	}
	dbListing := &listingDB{
		ID:          listing.ID,
		OwnerID:     listing.OwnerID,
		OwnerName:   listing.OwnerName,
		Kind:        string(listing.Kind),
		Quantity:    listing.Quantity,
		Description: listing.Description,
		ImageURL:    listing.ImageURL,
		Status:      string(listing.Status),
		CreatedAt:   listing.CreatedAt,
	}
	if dbListing.ID == "" {
		dbListing.ID = uuid.NewString()
	}
	if dbListing.CreatedAt.IsZero() {
		dbListing.CreatedAt = p.nowFunc()
	}
	if listing.Location != nil {
		lat, lng := listing.Location.Lat, listing.Location.Lng
		dbListing.Lat, dbListing.Lng = &lat, &lng
	}
	if _, err := p.db.ModelContext(ctx, dbListing).Insert(); err != nil {
		return storeErr("inserting listing", err)
	}
	listing.ID = dbListing.ID
	listing.CreatedAt = dbListing.CreatedAt
	return nil
}

// GetListing returns the listing or model.ErrNotFound.
func (p *PostgresDB) GetListing(ctx context.Context, id string) (*model.Listing, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.ErrNotFound
	}
	existing := new(listingDB)
	if err := p.db.ModelContext(ctx, existing).Where("id = ?", id).Select(); err != nil {
		return nil, storeErr("selecting listing", err)
	}
	res := existing.toModel()
	return &res, nil
}

// ListListings list listings matching the parameters in input, most recent first.
func (p *PostgresDB) ListListings(ctx context.Context, query ports.ListListingsQuery) ([]model.Listing, error) {
	var listings []listingDB
	q := p.db.ModelContext(ctx, &listings).Order("created_at DESC")
	if query.OwnerID != "" {
		q = q.Where("owner_id = ?", query.OwnerID)
	}
	if len(query.Kinds) > 0 {
		kinds := make([]string, len(query.Kinds))
		for i, k := range query.Kinds {
			kinds[i] = string(k)
		}
		q = q.WhereIn("kind IN (?)", kinds)
	}
	if err := q.Select(); err != nil && !errors.Is(err, pg.ErrNoRows) {
		return nil, storeErr("selecting listings", err)
	}
	res := make([]model.Listing, len(listings))
	for i, l := range listings {
		res[i] = l.toModel()
	}
	return res, nil
}

// storeErr translates driver errors into the model sentinels.
func storeErr(operation string, err error) error {
	if errors.Is(err, pg.ErrNoRows) {
		return model.ErrNotFound
	}
	var pgErr pg.Error
	if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
		return fmt.Errorf("error %s: %w", operation, model.ErrAlreadyExists)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("error %s: %w", operation, err)
	}
	return fmt.Errorf("error %s: %w: %w", operation, model.ErrStoreUnavailable, err)
}

func (p *PostgresDB) toUserDB(user *model.User) *userDB {
	dbUser := &userDB{
		ID:           user.ID,
		DisplayName:  user.DisplayName,
		Email:        user.Email,
		Role:         string(user.Role),
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
	}
	if dbUser.ID == "" {
		dbUser.ID = uuid.NewString()
	}
	if dbUser.CreatedAt.IsZero() {
		dbUser.CreatedAt = p.nowFunc()
	}
	return dbUser
}

func (u userDB) toModel() model.User {
	return model.User{
		ID:           u.ID,
		DisplayName:  u.DisplayName,
		Email:        u.Email,
		Role:         model.Role(u.Role),
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

func (l listingDB) toModel() model.Listing {
	res := model.Listing{
		ID:          l.ID,
		OwnerID:     l.OwnerID,
		OwnerName:   l.OwnerName,
		Kind:        model.MaterialKind(l.Kind),
		Quantity:    l.Quantity,
		Description: l.Description,
		ImageURL:    l.ImageURL,
		Status:      model.ListingStatus(l.Status),
		CreatedAt:   l.CreatedAt,
	}
	if l.Lat != nil && l.Lng != nil {
		res.Location = &model.GeoPoint{Lat: *l.Lat, Lng: *l.Lng}
	}
	return res
}

type userDB struct {
	tableName struct{} `pg:"recyclo.users"`

	// ID unique identifier of the user.
	ID string `pg:"id,pk,type:uuid"`

	// DisplayName is the name shown to other users.
	DisplayName string `pg:"display_name"`

	// Email is the normalized user email. It is unique.
	Email string `pg:"email"`

	// Role is the user role.
	Role string `pg:"role"`

	// PasswordHash contains the password hash.
	PasswordHash string `pg:"password_hash,use_zero"`

	// CreatedAt is the time at which the user was created in the system.
	CreatedAt time.Time `pg:"created_at"`
}

type listingDB struct {
	tableName struct{} `pg:"recyclo.listings"`

	// ID unique identifier of the listing.
	ID string `pg:"id,pk,type:uuid"`

	OwnerID     string `pg:"owner_id"`
	OwnerName   string `pg:"owner_name,use_zero"`
	Kind        string `pg:"kind"`
	Quantity    string `pg:"quantity"`
	Description string `pg:"description,use_zero"`
	ImageURL    string `pg:"image_url,use_zero"`

	// Lat and Lng are NULL when the publisher had no geolocation.
	Lat *float64 `pg:"lat"`
	Lng *float64 `pg:"lng"`

	Status string `pg:"status"`

	// CreatedAt is the time at which the listing was published.
	CreatedAt time.Time `pg:"created_at"`
}

var (
	_ ports.UserDirectory     = (*PostgresDB)(nil)
	_ ports.ListingRepository = (*PostgresDB)(nil)
)
