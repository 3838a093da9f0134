package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rbroggi/recyclo/internal/core/model"
	"github.com/rbroggi/recyclo/internal/core/ports"
)

// UserDirectory is an in-memory ports.UserDirectory.
type UserDirectory struct {
	mu      sync.RWMutex
	byID    map[string]model.User
	byEmail map[string]string
}

// NewUserDirectory creates an empty directory.
func NewUserDirectory() *UserDirectory {
	return &UserDirectory{byID: map[string]model.User{}, byEmail: map[string]string{}}
}

// SaveUser saves a new user, assigning an id when missing.
func (d *UserDirectory) SaveUser(_ context.Context, user *model.User) error {
	if user == nil {
		return fmt.Errorf("%w: nil user", model.ErrInvalidArgument)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byEmail[user.Email]; ok {
		return model.ErrAlreadyExists
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	d.byID[user.ID] = *user
	d.byEmail[user.Email] = user.ID
	return nil
}

// GetUser returns the user or model.ErrNotFound.
func (d *UserDirectory) GetUser(_ context.Context, id string) (*model.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.byID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &u, nil
}

// GetUserByEmail returns the user or model.ErrNotFound.
func (d *UserDirectory) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	d.mu.RLock()
	id, ok := d.byEmail[email]
	d.mu.RUnlock()
	if !ok {
		return nil, model.ErrNotFound
	}
	return d.GetUser(ctx, id)
}

// ListingRepository is an in-memory ports.ListingRepository.
type ListingRepository struct {
	mu       sync.RWMutex
	listings map[string]model.Listing
}

// NewListingRepository creates an empty repository.
func NewListingRepository() *ListingRepository {
	return &ListingRepository{listings: map[string]model.Listing{}}
}

// SaveListing saves a new listing, assigning an id when missing.
func (r *ListingRepository) SaveListing(_ context.Context, listing *model.Listing) error {
	if listing == nil {
		return fmt.Errorf("%w: nil listing", model.ErrInvalidArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if listing.ID == "" {
		listing.ID = uuid.NewString()
	}
	if _, ok := r.listings[listing.ID]; ok {
		return model.ErrAlreadyExists
	}
	if listing.CreatedAt.IsZero() {
		listing.CreatedAt = time.Now().UTC()
	}
	r.listings[listing.ID] = *listing
	return nil
}

// GetListing returns the listing or model.ErrNotFound.
func (r *ListingRepository) GetListing(_ context.Context, id string) (*model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.listings[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &l, nil
}

// ListListings lists listings matching the query, most recent first.
func (r *ListingRepository) ListListings(_ context.Context, query ports.ListListingsQuery) ([]model.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := map[model.MaterialKind]bool{}
	for _, k := range query.Kinds {
		kinds[k] = true
	}
	res := []model.Listing{}
	for _, l := range r.listings {
		if query.OwnerID != "" && l.OwnerID != query.OwnerID {
			continue
		}
		if len(kinds) > 0 && !kinds[l.Kind] {
			continue
		}
		res = append(res, l)
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

var (
	_ ports.UserDirectory     = (*UserDirectory)(nil)
	_ ports.ListingRepository = (*ListingRepository)(nil)
)
