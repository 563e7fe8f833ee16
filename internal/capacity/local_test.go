package capacity

import (
	"context"
	"testing"

	"github.com/paraito/registre-extractor/internal/models"
)

func TestLocalManager_AdmitWithinCeiling(t *testing.T) {
	m := NewLocalManager(4, 8, 0, 0)
	ctx := context.Background()

	ok, err := m.Admit(ctx, "worker-1", models.JobKindExtraction, models.ResourceProfile{CPUUnits: 1, RAMUnits: 2})
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if !ok {
		t.Fatal("expected admission within ceiling to succeed")
	}

	allocs, err := m.Allocations(ctx)
	if err != nil {
		t.Fatalf("Allocations failed: %v", err)
	}
	if len(allocs) != 1 {
		t.Fatalf("expected 1 allocation, got %d", len(allocs))
	}
}

func TestLocalManager_DeniesOverCeiling(t *testing.T) {
	m := NewLocalManager(2, 8, 0, 0)
	ctx := context.Background()

	if ok, _ := m.Admit(ctx, "worker-1", models.JobKindExtraction, models.ResourceProfile{CPUUnits: 1.5, RAMUnits: 1}); !ok {
		t.Fatal("expected first admission to succeed")
	}

	ok, err := m.Admit(ctx, "worker-2", models.JobKindExtraction, models.ResourceProfile{CPUUnits: 1, RAMUnits: 1})
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if ok {
		t.Error("expected second admission to be denied over the CPU ceiling")
	}
}

func TestLocalManager_ReleaseFreesCapacity(t *testing.T) {
	m := NewLocalManager(2, 8, 0, 0)
	ctx := context.Background()

	m.Admit(ctx, "worker-1", models.JobKindExtraction, models.ResourceProfile{CPUUnits: 1.5, RAMUnits: 1})
	if err := m.Release(ctx, "worker-1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	ok, err := m.Admit(ctx, "worker-2", models.JobKindExtraction, models.ResourceProfile{CPUUnits: 1.5, RAMUnits: 1})
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if !ok {
		t.Error("expected admission to succeed after release freed capacity")
	}
}
