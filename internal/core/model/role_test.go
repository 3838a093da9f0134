package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleCapabilities(t *testing.T) {
	tests := []struct {
		role    Role
		publish bool
		contact bool
		chat    bool
	}{
		{role: RoleRecycler, publish: true, contact: false, chat: true},
		{role: RoleCenter, publish: false, contact: true, chat: true},
		{role: "unknown", publish: false, contact: false, chat: false},
	}
	for _, test := range tests {
		t.Run(string(test.role), func(t *testing.T) {
			assert.Equal(t, test.publish, test.role.Can(CapPublishListings))
			assert.Equal(t, test.contact, test.role.Can(CapContactListingOwners))
			assert.Equal(t, test.chat, test.role.Can(CapChat))
		})
	}
}

func TestParseRole(t *testing.T) {
	for in, expected := range map[string]Role{
		"recycler":   RoleRecycler,
		"Reciclador": RoleRecycler,
		" center ":   RoleCenter,
		"centro":     RoleCenter,
	} {
		got, err := ParseRole(in)
		require.NoError(t, err)
		assert.Equal(t, expected, got)
	}
	_, err := ParseRole("admin")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestListingHasLocation(t *testing.T) {
	assert.False(t, Listing{}.HasLocation())
	assert.False(t, Listing{Location: &GeoPoint{Lat: 0, Lng: 10}}.HasLocation())
	assert.False(t, Listing{Location: &GeoPoint{Lat: 10, Lng: 0}}.HasLocation())
	assert.True(t, Listing{Location: &GeoPoint{Lat: 10, Lng: 10}}.HasLocation())
}
