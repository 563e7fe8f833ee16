package ratelimit

import (
	"context"
	"testing"

	"github.com/paraito/registre-extractor/internal/models"
)

func TestLocalLimiter_ConfigureAppliesSafeCapacity(t *testing.T) {
	l := NewLocalLimiter()
	l.Configure("gemini", models.RateResourceRequests, 100, 10)

	snap, err := l.Snapshot(context.Background(), "gemini", models.RateResourceRequests)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Capacity != 80 {
		t.Errorf("expected capacity 80 (80%% of 100), got %v", snap.Capacity)
	}
}

func TestLocalLimiter_TryAcquireDeniesOverCapacity(t *testing.T) {
	l := NewLocalLimiter()
	l.Configure("anthropic", models.RateResourceRequests, 5, 1)

	ctx := context.Background()
	ok, err := l.TryAcquire(ctx, "anthropic", models.RateResourceRequests, 4)
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if !ok {
		t.Fatal("expected first acquire within capacity to succeed")
	}

	ok, err = l.TryAcquire(ctx, "anthropic", models.RateResourceRequests, 4)
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if ok {
		t.Error("expected second acquire to be denied before refill")
	}
}

func TestLocalLimiter_UnconfiguredBucketDefaultsToSerial(t *testing.T) {
	l := NewLocalLimiter()
	ctx := context.Background()

	ok, err := l.TryAcquire(ctx, "unregistered-api", models.RateResourceRequests, 1)
	if err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}
	if !ok {
		t.Error("expected first call against an unconfigured bucket to succeed")
	}
}
