// Package dispatcher implements the Dispatcher: it picks which
// environment a Worker should poll next and resolves that choice into a
// claimed Job via the Queue Gateway. The Dispatcher itself never claims
// directly — claiming stays the Queue Gateway's job.
package dispatcher

import (
	"context"
	"sync"

	"github.com/paraito/registre-extractor/internal/models"
)

// Queue is the subset of interfaces.QueueGateway the Dispatcher needs.
type Queue interface {
	ListEnvironments(ctx context.Context) ([]models.Environment, error)
	ClaimNext(ctx context.Context, environment string, workerID string, kinds []models.JobKind) (*models.Job, error)
	ClaimNextOCR(ctx context.Context, environment string, workerID string, kinds []models.JobKind) (*models.Job, error)
}

// Dispatcher holds the round-robin cursor across environments, persisted
// in-process across polls so no environment starves. Re-balances on
// restart — fairness is a soft property, not an invariant.
type Dispatcher struct {
	queue Queue

	mu     sync.Mutex
	cursor int
}

// New creates a Dispatcher over the given Queue Gateway.
func New(queue Queue) *Dispatcher {
	return &Dispatcher{queue: queue}
}

// PickJob chooses the next environment in round-robin order and claims a
// job for it. A worker only claims within the kind sets it was started
// with: extractionKinds against ClaimNext, ocrKinds against
// ClaimNextOCR. A worker started with only ocrKinds (an OCR-designated
// worker) never falls through to an extraction-stage claim, and vice
// versa, keeping the two pools disjoint. Within an environment, an OCR
// claim is tried first since OCR jobs carry an SLA and accumulate
// quickly once Extraction succeeds. Returns nil, nil when no
// environment currently has an eligible job.
func (d *Dispatcher) PickJob(ctx context.Context, workerID string, extractionKinds, ocrKinds []models.JobKind) (*models.Job, error) {
	envs, err := d.queue.ListEnvironments(ctx)
	if err != nil {
		return nil, err
	}
	if len(envs) == 0 {
		return nil, nil
	}

	order := d.rotate(len(envs))
	for _, i := range order {
		env := envs[i]

		if len(ocrKinds) > 0 && env.OCREnabled {
			job, err := d.queue.ClaimNextOCR(ctx, env.Name, workerID, ocrKinds)
			if err != nil {
				return nil, err
			}
			if job != nil {
				return job, nil
			}
		}

		if len(extractionKinds) > 0 {
			job, err := d.queue.ClaimNext(ctx, env.Name, workerID, extractionKinds)
			if err != nil {
				return nil, err
			}
			if job != nil {
				return job, nil
			}
		}
	}

	return nil, nil
}

// rotate returns indices [0, n) starting at the current cursor and
// advances the cursor by one for the next call.
func (d *Dispatcher) rotate(n int) []int {
	d.mu.Lock()
	defer d.mu.Unlock()

	order := make([]int, n)
	for i := 0; i < n; i++ {
		order[i] = (d.cursor + i) % n
	}
	d.cursor = (d.cursor + 1) % n
	return order
}
