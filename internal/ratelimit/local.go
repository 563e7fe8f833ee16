// Package ratelimit implements the Rate Limiter component: an
// in-process token bucket per (API, resource) pair, and a SurrealDB-backed
// variant that shares one bucket across every worker process in an
// environment.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/paraito/registre-extractor/internal/interfaces"
	"github.com/paraito/registre-extractor/internal/models"
)

type bucketKey struct {
	api      string
	resource models.RateResource
}

// LocalLimiter admits calls against per-process golang.org/x/time/rate
// limiters. Use this when every worker in an environment shares a process,
// or when the upstream's limit is per-process rather than per-account.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[bucketKey]*rate.Limiter
	configs  map[bucketKey]rateConfig
}

type rateConfig struct {
	capacity float64
	refill   float64
}

// NewLocalLimiter creates an empty LocalLimiter. Buckets are created
// lazily on first Configure or TryAcquire call.
func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{
		limiters: make(map[bucketKey]*rate.Limiter),
		configs:  make(map[bucketKey]rateConfig),
	}
}

// Configure sets a bucket's capacity and per-second refill rate, applying
// models.SafeCapacity to hardLimit so the bucket never targets the
// upstream's documented ceiling directly.
func (l *LocalLimiter) Configure(api string, resource models.RateResource, hardLimit float64, refillPerSec float64) {
	key := bucketKey{api, resource}
	capacity := models.SafeCapacity(hardLimit)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.configs[key] = rateConfig{capacity: capacity, refill: refillPerSec}
	l.limiters[key] = rate.NewLimiter(rate.Limit(refillPerSec), int(capacity))
}

func (l *LocalLimiter) limiterFor(key bucketKey) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[key]; ok {
		return lim
	}
	// No explicit Configure call: default to a generous single-request
	// bucket so unconfigured APIs degrade to serial calls rather than
	// panicking.
	lim := rate.NewLimiter(rate.Limit(1), 1)
	l.limiters[key] = lim
	return lim
}

func (l *LocalLimiter) TryAcquire(ctx context.Context, api string, resource models.RateResource, n float64) (bool, error) {
	lim := l.limiterFor(bucketKey{api, resource})
	return lim.AllowN(time.Now(), int(n)), nil
}

func (l *LocalLimiter) RefillTick(ctx context.Context, api string, resource models.RateResource) error {
	// x/time/rate refills continuously against wall-clock time; there is
	// nothing to drive manually.
	return nil
}

func (l *LocalLimiter) Snapshot(ctx context.Context, api string, resource models.RateResource) (*models.RateBucket, error) {
	key := bucketKey{api, resource}
	l.mu.Lock()
	cfg, ok := l.configs[key]
	lim := l.limiters[key]
	l.mu.Unlock()
	if !ok {
		cfg = rateConfig{capacity: 1, refill: 1}
	}

	bucket := &models.RateBucket{
		API:          api,
		Resource:     resource,
		Capacity:     cfg.capacity,
		RefillPerSec: cfg.refill,
		UpdatedAt:    time.Now(),
	}
	if lim != nil {
		bucket.Remaining = lim.TokensAt(time.Now())
	}
	return bucket, nil
}

var _ interfaces.RateLimiter = (*LocalLimiter)(nil)
