package model

import "errors"

var (
	// ErrNotFound is returned when an entity is required to exist and does not.
	ErrNotFound = errors.New("entity was not found")

	// ErrAlreadyExists is returned when an entity is created with a key that is already taken.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrInvalidArgument is returned for malformed identifiers or payloads.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSelfContact is returned when a user tries to open a conversation with themselves.
	ErrSelfContact = errors.New("a user cannot contact themselves")

	// ErrStoreUnavailable wraps network or permission failures of the underlying stores.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrAuth is returned for bad credentials or unknown sessions.
	ErrAuth = errors.New("authentication failed")

	// ErrForbidden is returned when the user role or membership does not allow the operation.
	ErrForbidden = errors.New("operation not allowed")

	// ErrGeolocationUnavailable is returned when a listing is published without a location.
	ErrGeolocationUnavailable = errors.New("geolocation unavailable")
)
