package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rbroggi/recyclo/internal/core/model"
	log "github.com/sirupsen/logrus"
)

// RetryPolicy bounds the retries of store operations failing with model.ErrStoreUnavailable.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries uint64

	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration

	// MaxInterval caps the exponential growth of the delay.
	MaxInterval time.Duration
}

// DefaultRetryPolicy retries 3 times, starting at 100ms and capped at 2s.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      3,
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     2 * time.Second,
}

// do runs op until it succeeds, fails with an error other than model.ErrStoreUnavailable,
// exhausts the retries or ctx is done. onRetry is called before every retry.
func (p RetryPolicy) do(ctx context.Context, operation string, op func() error, onRetry func(string)) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0

	wrapped := func() error {
		err := op()
		if err == nil || errors.Is(err, model.ErrStoreUnavailable) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, next time.Duration) {
		log.WithError(err).
			WithField("operation", operation).
			WithField("retry-in", next.String()).
			Warn("store unavailable, retrying")
		if onRetry != nil {
			onRetry(operation)
		}
	}

	err := backoff.RetryNotify(wrapped, backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx), notify)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}
