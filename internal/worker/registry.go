// Package worker implements the Worker Runtime: one goroutine per Worker,
// claiming a single job at a time from the Queue Gateway.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/paraito/registre-extractor/internal/interfaces"
	"github.com/paraito/registre-extractor/internal/models"
)

// Registry tracks every in-process Worker's liveness record behind a
// mutex. One Registry is shared by every Worker and the Health Monitor
// within a Supervisor process.
type Registry struct {
	mu      sync.Mutex
	workers map[string]*models.Worker
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]*models.Worker)}
}

func (r *Registry) Register(ctx context.Context, w *models.Worker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w.LastHeartbeat = time.Now()
	w.Status = models.WorkerStatusIdle
	r.workers[w.ID] = w
	return nil
}

func (r *Registry) Heartbeat(ctx context.Context, workerID string, status models.WorkerStatus, currentJobID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[workerID]
	if !ok {
		return nil
	}
	w.Status = status
	w.CurrentJobID = currentJobID
	w.LastHeartbeat = time.Now()
	return nil
}

func (r *Registry) Deregister(ctx context.Context, workerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, workerID)
	return nil
}

func (r *Registry) ListWorkers(ctx context.Context) ([]*models.Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Worker, 0, len(r.workers))
	for _, w := range r.workers {
		cp := *w
		out = append(out, &cp)
	}
	return out, nil
}

// EvictDeadWorkers marks workers whose heartbeat predates threshold as
// offline and returns their IDs, so the Health Monitor can release their
// capacity and the Queue Gateway's ResetStalled can reclaim their job.
func (r *Registry) EvictDeadWorkers(ctx context.Context, threshold time.Duration) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-threshold)
	var evicted []string
	for id, w := range r.workers {
		if w.Status == models.WorkerStatusOffline {
			continue
		}
		if w.LastHeartbeat.Before(cutoff) {
			w.Status = models.WorkerStatusOffline
			evicted = append(evicted, id)
		}
	}
	return evicted, nil
}

var _ interfaces.WorkerRegistry = (*Registry)(nil)
