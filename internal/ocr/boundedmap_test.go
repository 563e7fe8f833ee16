package ocr

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestBoundedParallelMap_AllSucceed(t *testing.T) {
	pages := []int{1, 2, 3, 4}

	succeeded, failed := boundedParallelMap(context.Background(), pages, 2, 0, func(ctx context.Context, page int) error {
		return nil
	})

	if len(failed) != 0 {
		t.Fatalf("expected no failures, got %v", failed)
	}
	if len(succeeded) != len(pages) {
		t.Fatalf("expected all %d pages to succeed, got %d", len(pages), len(succeeded))
	}
}

func TestBoundedParallelMap_OneFailureDoesNotCancelSiblings(t *testing.T) {
	pages := []int{1, 2, 3}
	var ran int32

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	succeeded, failed := boundedParallelMap(ctx, pages, 3, 0, func(ctx context.Context, page int) error {
		atomic.AddInt32(&ran, 1)
		if page == 2 {
			return errors.New("boom")
		}
		return nil
	})

	if int(ran) != 3 {
		t.Fatalf("expected all 3 tasks to run despite page 2 failing, ran %d", ran)
	}
	if _, bad := failed[2]; !bad {
		t.Fatalf("expected page 2 to be recorded as failed, got %v", failed)
	}
	if len(succeeded) != 2 {
		t.Fatalf("expected pages 1 and 3 to succeed, got %v", succeeded)
	}
}

func TestBoundedParallelMap_RespectsConcurrencyLimit(t *testing.T) {
	pages := []int{1, 2, 3, 4, 5, 6}
	var current, max int32

	boundedParallelMap(context.Background(), pages, 2, 0, func(ctx context.Context, page int) error {
		n := atomic.AddInt32(&current, 1)
		for {
			old := atomic.LoadInt32(&max)
			if n <= old || atomic.CompareAndSwapInt32(&max, old, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return nil
	})

	if max > 2 {
		t.Errorf("expected at most 2 concurrent tasks, observed %d", max)
	}
}

func TestRunWithRetry_GivesUpAfterContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var attempts int32
	err := runWithRetry(ctx, 1, func(ctx context.Context, page int) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("always fails")
	})

	if err == nil {
		t.Fatal("expected an error when every attempt fails")
	}
	if attempts < 1 {
		t.Fatal("expected at least one attempt")
	}
}

func TestJitterDuration_StaysWithinEnvelope(t *testing.T) {
	base := 10 * time.Second
	for i := 0; i < 20; i++ {
		d := jitterDuration(base)
		if d < 7*time.Second || d > 13*time.Second {
			t.Errorf("jitterDuration(%v) = %v, outside expected ±25%% envelope", base, d)
		}
	}
}
