package model

import (
	"fmt"
	"strings"
)

// Role is the closed set of user roles.
type Role string

const (
	// RoleRecycler holds materials and publishes listings.
	RoleRecycler Role = "recycler"

	// RoleCenter is a collection center that contacts listing owners.
	RoleCenter Role = "center"
)

// Capability is an action gated by role.
type Capability int

const (
	// CapPublishListings allows publishing material listings.
	CapPublishListings Capability = iota

	// CapContactListingOwners allows opening a conversation from a listing.
	CapContactListingOwners

	// CapChat allows sending messages in conversations the user participates in.
	CapChat
)

var capabilities = map[Role]map[Capability]bool{
	RoleRecycler: {
		CapPublishListings: true,
		CapChat:            true,
	},
	RoleCenter: {
		CapContactListingOwners: true,
		CapChat:                 true,
	},
}

// Can reports whether the role holds the capability. Unknown roles hold none.
func (r Role) Can(c Capability) bool {
	return capabilities[r][c]
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := capabilities[r]
	return ok
}

// ParseRole parses a role name. The spanish spellings stored by older clients are accepted.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "recycler", "reciclador":
		return RoleRecycler, nil
	case "center", "centro":
		return RoleCenter, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, s)
}
