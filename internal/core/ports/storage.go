package ports

import (
	"context"
	"io"
)

// ObjectStore stores binary content and returns a public URL for it.
type ObjectStore interface {
	// Upload stores the content under key.
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) (publicURL string, err error)
}
