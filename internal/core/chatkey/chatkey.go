// Package chatkey derives the identity of a direct conversation from its two participants.
package chatkey

import (
	"fmt"
	"strings"

	"github.com/rbroggi/recyclo/internal/core/model"
)

// Separator joins the two participant ids. It may not appear inside an id.
const Separator = "_"

// Derive returns the conversation key of the unordered pair (a, b).
// The smaller id comes first so Derive(a, b) == Derive(b, a).
func Derive(a, b string) (string, error) {
	if err := validate(a); err != nil {
		return "", err
	}
	if err := validate(b); err != nil {
		return "", err
	}
	if a == b {
		return "", fmt.Errorf("%w: both participants are %q", model.ErrInvalidArgument, a)
	}
	if b < a {
		a, b = b, a
	}
	return a + Separator + b, nil
}

// Participants returns the ids encoded in key in ascending order.
func Participants(key string) (string, string, error) {
	a, b, ok := strings.Cut(key, Separator)
	if !ok || strings.Contains(b, Separator) {
		return "", "", fmt.Errorf("%w: malformed conversation key %q", model.ErrInvalidArgument, key)
	}
	if a == "" || b == "" || a >= b {
		return "", "", fmt.Errorf("%w: malformed conversation key %q", model.ErrInvalidArgument, key)
	}
	return a, b, nil
}

// Other returns the participant of key that is not me.
func Other(key, me string) (string, error) {
	a, b, err := Participants(key)
	if err != nil {
		return "", err
	}
	switch me {
	case a:
		return b, nil
	case b:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q is not a participant of %q", model.ErrForbidden, me, key)
}

func validate(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty participant id", model.ErrInvalidArgument)
	}
	if strings.Contains(id, Separator) {
		return fmt.Errorf("%w: participant id %q contains %q", model.ErrInvalidArgument, id, Separator)
	}
	return nil
}
