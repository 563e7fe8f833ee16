package interfaces

import (
	"context"
	"time"

	"github.com/paraito/registre-extractor/internal/models"
)

// WorkerRegistry tracks liveness of in-process worker goroutines so the
// Health Monitor can reason about worker state without
// importing the worker package directly.
type WorkerRegistry interface {
	Register(ctx context.Context, worker *models.Worker) error
	Heartbeat(ctx context.Context, workerID string, status models.WorkerStatus, currentJobID *string) error
	Deregister(ctx context.Context, workerID string) error
	ListWorkers(ctx context.Context) ([]*models.Worker, error)

	// EvictDeadWorkers marks workers whose heartbeat is older than
	// threshold as offline and returns their IDs so callers can release
	// any capacity they held and reset their in-flight jobs.
	EvictDeadWorkers(ctx context.Context, threshold time.Duration) ([]string, error)
}

// Extractor runs the browser-automation logic for one job kind. Concrete
// implementations live outside this module's test scope; registre-extractor
// ships only the interface and a registry, per the Non-goal excluding
// browser automation internals.
type Extractor interface {
	Kind() models.JobKind
	Extract(ctx context.Context, job *models.Job) (artifactPath string, err error)
}

// ExtractorRegistry resolves a JobKind to its Extractor.
type ExtractorRegistry interface {
	Register(extractor Extractor)
	Resolve(kind models.JobKind) (Extractor, bool)
}
