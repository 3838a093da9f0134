package ports

import (
	"context"

	"github.com/rbroggi/recyclo/internal/core/model"
)

// MessageEventHandler handles incoming MessageEvents.
type MessageEventHandler interface {
	// Handle will receive an incoming message event and handle it.
	Handle(ctx context.Context, event model.MessageEvent) error
}
