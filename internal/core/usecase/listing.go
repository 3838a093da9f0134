package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rbroggi/recyclo/internal/core/model"
	"github.com/rbroggi/recyclo/internal/core/ports"
)

// collectionCenters are the verified collection points shown on the map.
var collectionCenters = []model.CollectionCenter{
	{Name: "Comercializadora Century Recycling", Location: model.GeoPoint{Lat: 18.901, Lng: -97.460}, Link: "https://maps.app.goo.gl/qz3im7fpDLiUpzxeA"},
	{Name: "Recicladora palmarito", Location: model.GeoPoint{Lat: 18.90686, Lng: -97.63050}, Link: "https://maps.app.goo.gl/2GNEaJG9PUZ6Ji6CA"},
	{Name: "Reciclados AMAIB", Location: model.GeoPoint{Lat: 18.90114, Lng: -97.66701}, Link: "https://maps.app.goo.gl/qLFub1twjtrGoUyw6"},
	{Name: "Recuperadora Industrial", Location: model.GeoPoint{Lat: 18.87215, Lng: -97.71610}, Link: "https://maps.app.goo.gl/FvVxHL9u6H8jtkBt7"},
	{Name: "Eco Planet", Location: model.GeoPoint{Lat: 18.88896, Lng: -97.73186}, Link: "https://maps.app.goo.gl/3gnNav6waQRbSZC87"},
	{Name: "Recicladora Palmarito Sucursal Quecholac", Location: model.GeoPoint{Lat: 18.95820, Lng: -97.67784}, Link: "https://maps.app.goo.gl/UAdcTrCdC5fYBzYU6"},
}

// ListingServiceArgs contains the mandatory arguments for the ListingService.
type ListingServiceArgs struct {
	// Listings is the listing repository.
	Listings ports.ListingRepository

	// Images stores the listing photos.
	Images ports.ObjectStore

	// Conversations opens conversations with listing owners.
	Conversations *ConversationService
}

// ListingServiceOptArgs are the optional arguments of the ListingService.
type ListingServiceOptArgs = func(*ListingService)

// WithNowFunc sets the clock used to name uploaded images.
func WithNowFunc(nowFunc func() time.Time) ListingServiceOptArgs {
	return func(s *ListingService) {
		s.nowFunc = nowFunc
	}
}

// NewListingService creates a new ListingService.
func NewListingService(args ListingServiceArgs, opts ...ListingServiceOptArgs) *ListingService {
	s := &ListingService{
		listings:      args.Listings,
		images:        args.Images,
		conversations: args.Conversations,
		nowFunc:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListingService gathers the marketplace use-cases.
type ListingService struct {
	listings      ports.ListingRepository
	images        ports.ObjectStore
	conversations *ConversationService
	nowFunc       func() time.Time
}

// Publish uploads the listing photo and saves the listing as available.
func (s *ListingService) Publish(ctx context.Context, me model.User, args model.PublishListingArgs) (*model.Listing, error) {
	if !me.Role.Can(model.CapPublishListings) {
		return nil, fmt.Errorf("%w: role %s cannot publish listings", model.ErrForbidden, me.Role)
	}
	if args.Location == nil {
		return nil, model.ErrGeolocationUnavailable
	}
	if args.Image == nil {
		return nil, fmt.Errorf("%w: missing image", model.ErrInvalidArgument)
	}
	kind, err := model.ParseMaterialKind(string(args.Kind))
	if err != nil {
		return nil, err
	}
	quantity := strings.TrimSpace(args.Quantity)
	if quantity == "" {
		return nil, fmt.Errorf("%w: empty quantity", model.ErrInvalidArgument)
	}

	ext := strings.ToLower(strings.TrimPrefix(args.ImageExt, "."))
	if ext == "" {
		ext = "jpg"
	}
	key := fmt.Sprintf("%s/%d.%s", me.ID, s.nowFunc().UnixMilli(), ext)
	url, err := s.images.Upload(ctx, key, args.Image, args.ContentType)
	if err != nil {
		return nil, fmt.Errorf("error uploading listing image: %w", err)
	}

	location := *args.Location
	listing := &model.Listing{
		OwnerID:     me.ID,
		OwnerName:   me.DisplayName,
		Kind:        kind,
		Quantity:    quantity,
		Description: strings.TrimSpace(args.Description),
		ImageURL:    url,
		Location:    &location,
		Status:      model.ListingAvailable,
	}
	if err := s.listings.SaveListing(ctx, listing); err != nil {
		return nil, fmt.Errorf("error saving listing in repository: %w", err)
	}
	return listing, nil
}

// Feed lists all listings, most recent first.
func (s *ListingService) Feed(ctx context.Context) ([]model.Listing, error) {
	res, err := s.listings.ListListings(ctx, ports.ListListingsQuery{})
	if err != nil {
		return nil, fmt.Errorf("error listing listings on the repository: %w", err)
	}
	return res, nil
}

// MapPins lists the listings that can be placed on the map.
func (s *ListingService) MapPins(ctx context.Context) ([]model.Listing, error) {
	feed, err := s.Feed(ctx)
	if err != nil {
		return nil, err
	}
	pins := make([]model.Listing, 0, len(feed))
	for _, l := range feed {
		if l.HasLocation() {
			pins = append(pins, l)
		}
	}
	return pins, nil
}

// CollectionCenters returns the known collection centers.
func (s *ListingService) CollectionCenters() []model.CollectionCenter {
	res := make([]model.CollectionCenter, len(collectionCenters))
	copy(res, collectionCenters)
	return res
}

// ContactOwner opens the conversation between me and the owner of a listing.
func (s *ListingService) ContactOwner(ctx context.Context, me model.User, listingID string) (*model.ContactResponse, error) {
	if !me.Role.Can(model.CapContactListingOwners) {
		return nil, fmt.Errorf("%w: role %s cannot contact listing owners", model.ErrForbidden, me.Role)
	}
	listing, err := s.listings.GetListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("error reading listing %s: %w", listingID, err)
	}
	return s.conversations.Contact(ctx, me, model.ContactArgs{
		OtherUserID:      listing.OwnerID,
		OtherProfileHint: model.ParticipantProfile{Name: listing.OwnerName},
		OpeningText:      OpeningText(*listing),
	})
}

// OpeningText is the first message sent when contacting the owner of a listing.
func OpeningText(l model.Listing) string {
	return fmt.Sprintf("Hi, I'm interested in your %s (%s). Is it still available?", l.Kind, l.Quantity)
}
