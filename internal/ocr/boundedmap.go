package ocr

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"
)

// retryBackoffBase and retryBackoffCap bound the exponential backoff
// applied between a task's own retry attempts.
const (
	retryBackoffBase = 5 * time.Second
	retryBackoffCap  = 30 * time.Second
	maxTaskAttempts  = 3
)

// taskFunc runs one page's unit of work for a stage. A nil error return
// is success; any other error is retried up to maxTaskAttempts times.
type taskFunc func(ctx context.Context, page int) error

// boundedParallelMap runs fn once per element of pages, launching at most
// maxConcurrent tasks at a time and waiting stagger between each launch
// (not between completions). It never cancels sibling tasks on a single
// task's failure — failures are collected and returned alongside which
// pages succeeded.
//
// Grounded on yungbote-neurobridge-backend's pdf.go errgroup.SetLimit
// pattern, extended with a stagger between launches and per-task
// retry-with-jitter.
func boundedParallelMap(ctx context.Context, pages []int, maxConcurrent int, stagger time.Duration, fn taskFunc) (succeeded []int, failed map[int]error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	failedMu := newFailureSet()

	for i, page := range pages {
		page := page
		if i > 0 && stagger > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(stagger):
			}
		}

		g.Go(func() error {
			err := runWithRetry(gctx, page, fn)
			if err != nil {
				failedMu.record(page, err)
			}
			return nil
		})
	}

	// Errors are collected via failedMu, not the errgroup's own error —
	// per-page failures must not cancel sibling tasks.
	_ = g.Wait()

	failed = failedMu.snapshot()
	for _, page := range pages {
		if _, bad := failed[page]; !bad {
			succeeded = append(succeeded, page)
		}
	}
	return succeeded, failed
}

// runWithRetry retries fn up to maxTaskAttempts times with exponential
// backoff plus ±25% jitter. A rate-limiter stall (the caller sleeping on
// RateLimiter.TryAcquire's suggested delay) does not count against this
// budget — that accounting lives in the caller's fn, not here.
func runWithRetry(ctx context.Context, page int, fn taskFunc) error {
	backoff := retryBackoffBase
	var lastErr error
	for attempt := 1; attempt <= maxTaskAttempts; attempt++ {
		lastErr = fn(ctx, page)
		if lastErr == nil {
			return nil
		}
		if attempt == maxTaskAttempts {
			break
		}

		delay := jitterDuration(backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		backoff *= 2
		if backoff > retryBackoffCap {
			backoff = retryBackoffCap
		}
	}
	return lastErr
}

func jitterDuration(d time.Duration) time.Duration {
	jitter := float64(d) * 0.25
	delta := (rand.Float64()*2 - 1) * jitter
	return time.Duration(float64(d) + delta)
}
