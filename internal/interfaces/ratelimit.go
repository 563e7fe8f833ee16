package interfaces

import (
	"context"

	"github.com/paraito/registre-extractor/internal/models"
)

// RateLimiter admits calls to an external API against a shared or
// in-process token bucket. TryAcquire is non-blocking: callers that are
// denied must retry later rather than park a goroutine.
type RateLimiter interface {
	// TryAcquire attempts to take n tokens from the named bucket's
	// resource dimension. Returns false without error when the bucket
	// lacks sufficient tokens.
	TryAcquire(ctx context.Context, api string, resource models.RateResource, n float64) (bool, error)

	// RefillTick advances a bucket's window, adding RefillPerSec*elapsed
	// tokens up to Capacity. Implementations backed by a shared store
	// also refill lazily inside every TryAcquire; in-process implementations may
	// no-op it in favor of x/time/rate's own clock.
	RefillTick(ctx context.Context, api string, resource models.RateResource) error

	// Snapshot returns the current bucket state for diagnostics.
	Snapshot(ctx context.Context, api string, resource models.RateResource) (*models.RateBucket, error)
}
