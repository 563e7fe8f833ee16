package interfaces

import (
	"context"

	"github.com/paraito/registre-extractor/internal/models"
)

// CapacityManager admits or denies a worker slot against the host's
// configured CPU/RAM ceilings, first-come-first-served.
type CapacityManager interface {
	// Admit reserves resources for a worker of the given kind. Returns
	// false without error when admitting would exceed a ceiling.
	Admit(ctx context.Context, workerID string, kind models.JobKind, profile models.ResourceProfile) (bool, error)

	// Release frees a worker's reserved resources.
	Release(ctx context.Context, workerID string) error

	// Allocations returns the current live allocation set.
	Allocations(ctx context.Context) ([]models.CapacityAllocation, error)
}
