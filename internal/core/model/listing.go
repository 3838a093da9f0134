package model

import (
	"fmt"
	"time"
)

// MaterialKind is the kind of recyclable material of a listing.
type MaterialKind string

const (
	MaterialPlastic     MaterialKind = "plastic"
	MaterialCardboard   MaterialKind = "cardboard"
	MaterialGlass       MaterialKind = "glass"
	MaterialMetal       MaterialKind = "metal"
	MaterialPaper       MaterialKind = "paper"
	MaterialElectronics MaterialKind = "electronics"
	MaterialOther       MaterialKind = "other"
)

// ParseMaterialKind validates a material kind.
func ParseMaterialKind(s string) (MaterialKind, error) {
	switch k := MaterialKind(s); k {
	case MaterialPlastic, MaterialCardboard, MaterialGlass, MaterialMetal,
		MaterialPaper, MaterialElectronics, MaterialOther:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown material kind %q", ErrInvalidArgument, s)
}

// ListingStatus is the availability of a listing.
type ListingStatus string

const (
	ListingAvailable ListingStatus = "available"
	ListingCollected ListingStatus = "collected"
)

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Listing is a material published by a recycler.
type Listing struct {
	// ID unique identifier of the listing.
	ID string `json:"id"`

	// OwnerID is the id of the publishing user.
	OwnerID string `json:"owner_id"`

	// OwnerName is the owner display name at publish time.
	OwnerName string `json:"owner_name"`

	// Kind is the material kind.
	Kind MaterialKind `json:"kind"`

	// Quantity is a free text quantity, e.g. "2 big bags".
	Quantity string `json:"quantity"`

	// Description is an optional free text description.
	Description string `json:"description"`

	// ImageURL is the public URL of the listing photo.
	ImageURL string `json:"image_url"`

	// Location is where the material can be picked up. Nil when unknown.
	Location *GeoPoint `json:"location"`

	// Status is the listing status.
	Status ListingStatus `json:"status"`

	// CreatedAt is the time at which the listing was published.
	CreatedAt time.Time `json:"created_at"`
}

// HasLocation reports whether the listing can be placed on the map.
func (l Listing) HasLocation() bool {
	return l.Location != nil && l.Location.Lat != 0 && l.Location.Lng != 0
}

// CollectionCenter is a known collection point shown on the map.
type CollectionCenter struct {
	Name     string   `json:"name"`
	Location GeoPoint `json:"location"`
	Link     string   `json:"link"`
}
