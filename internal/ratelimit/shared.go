package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/paraito/registre-extractor/internal/common"
	"github.com/paraito/registre-extractor/internal/interfaces"
	"github.com/paraito/registre-extractor/internal/models"
)

// SharedLimiter backs a bucket per (api, resource) in SurrealDB so every
// worker process in an environment draws from the same allowance. Refill
// happens lazily inside TryAcquire: each call computes tokens owed since
// the bucket's UpdatedAt and adds them before checking admission, then writes the
// result back with a conditional UPDATE keyed on the row it read, the
// same select-then-conditional-update idiom the job queue uses to avoid
// double-spending tokens under concurrent callers.
type SharedLimiter struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func bucketRecordID(api string, resource models.RateResource) string {
	return api + "_" + string(resource)
}

// NewSharedLimiter creates a SharedLimiter and seeds the given buckets if
// they do not already exist.
func NewSharedLimiter(ctx context.Context, db *surrealdb.DB, logger *common.Logger, seeds []SeedBucket) (*SharedLimiter, error) {
	l := &SharedLimiter{db: db, logger: logger}
	for _, s := range seeds {
		if err := l.seed(ctx, s); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// SeedBucket describes a bucket's static configuration at startup.
type SeedBucket struct {
	API          string
	Resource     models.RateResource
	HardLimit    float64
	RefillPerSec float64
}

func (l *SharedLimiter) seed(ctx context.Context, s SeedBucket) error {
	rid := surrealmodels.NewRecordID("rate_bucket", bucketRecordID(s.API, s.Resource))

	existing, err := surrealdb.Select[models.RateBucket](ctx, l.db, rid)
	if err != nil {
		return fmt.Errorf("check existing rate bucket %s/%s: %w", s.API, s.Resource, err)
	}
	if existing != nil {
		// Already seeded by a previous process; capacity/refill changes
		// from config take effect on the next restart that re-seeds,
		// not retroactively on a live bucket.
		return nil
	}

	capacity := models.SafeCapacity(s.HardLimit)
	now := time.Now()
	sql := `CREATE $rid SET
		api = $api, resource = $resource, capacity = $capacity, refill_rate_per_sec = $refill,
		remaining = $capacity, window_start = $now, updated_at = $now`
	vars := map[string]any{
		"rid":      rid,
		"api":      s.API,
		"resource": s.Resource,
		"capacity": capacity,
		"refill":   s.RefillPerSec,
		"now":      now,
	}
	if _, err := surrealdb.Query[any](ctx, l.db, sql, vars); err != nil {
		return fmt.Errorf("seed rate bucket %s/%s: %w", s.API, s.Resource, err)
	}
	return nil
}

func (l *SharedLimiter) TryAcquire(ctx context.Context, api string, resource models.RateResource, n float64) (bool, error) {
	rid := surrealmodels.NewRecordID("rate_bucket", bucketRecordID(api, resource))
	bucket, err := surrealdb.Select[models.RateBucket](ctx, l.db, rid)
	if err != nil {
		return false, fmt.Errorf("read rate bucket %s/%s: %w", api, resource, err)
	}
	if bucket == nil {
		return false, fmt.Errorf("rate bucket %s/%s not seeded", api, resource)
	}

	now := time.Now()
	elapsed := now.Sub(bucket.UpdatedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	refreshed := bucket.Remaining + elapsed*bucket.RefillPerSec
	if refreshed > bucket.Capacity {
		refreshed = bucket.Capacity
	}

	if refreshed < n {
		// Persist the refill even on denial so the next caller does not
		// redo the same accrual from a stale UpdatedAt.
		l.writeRemaining(ctx, api, resource, bucket.UpdatedAt, refreshed, now)
		return false, nil
	}

	ok, err := l.writeRemaining(ctx, api, resource, bucket.UpdatedAt, refreshed-n, now)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// writeRemaining conditionally updates remaining/updated_at only if the
// row's updated_at still matches prevUpdatedAt, preventing two concurrent
// callers from both committing against the same stale read. It returns
// false when no row matched, i.e. another caller wrote first.
func (l *SharedLimiter) writeRemaining(ctx context.Context, api string, resource models.RateResource, prevUpdatedAt time.Time, remaining float64, now time.Time) (bool, error) {
	rid := surrealmodels.NewRecordID("rate_bucket", bucketRecordID(api, resource))
	sql := `UPDATE $rid SET remaining = $remaining, updated_at = $now WHERE updated_at = $prev`
	vars := map[string]any{
		"rid":       rid,
		"remaining": remaining,
		"now":       now,
		"prev":      prevUpdatedAt,
	}
	updated, err := surrealdb.Query[[]any](ctx, l.db, sql, vars)
	if err != nil {
		return false, fmt.Errorf("update rate bucket %s/%s: %w", api, resource, err)
	}
	return updated != nil && len(*updated) > 0 && len((*updated)[0].Result) > 0, nil
}

func (l *SharedLimiter) RefillTick(ctx context.Context, api string, resource models.RateResource) error {
	_, err := l.TryAcquire(ctx, api, resource, 0)
	return err
}

func (l *SharedLimiter) Snapshot(ctx context.Context, api string, resource models.RateResource) (*models.RateBucket, error) {
	rid := surrealmodels.NewRecordID("rate_bucket", bucketRecordID(api, resource))
	bucket, err := surrealdb.Select[models.RateBucket](ctx, l.db, rid)
	if err != nil {
		return nil, fmt.Errorf("snapshot rate bucket %s/%s: %w", api, resource, err)
	}
	return bucket, nil
}

var _ interfaces.RateLimiter = (*SharedLimiter)(nil)
