// Package health implements the Health Monitor: the only component
// authorized to move a job out of a processing state without having
// claimed it. Grounded on jobmanager/watcher.go's ticker-driven loop with
// exponential backoff on error.
package health

import (
	"context"
	"time"

	"github.com/paraito/registre-extractor/internal/common"
	"github.com/paraito/registre-extractor/internal/interfaces"
	"github.com/paraito/registre-extractor/internal/models"
	"github.com/paraito/registre-extractor/internal/reporting"
)

const backoffMax = 30 * time.Second

// errorJobAlertThreshold is the error-job count above which alert logs
// a warning.
const errorJobAlertThreshold = 10

// Monitor runs the periodic reclaim-and-report loop.
type Monitor struct {
	queue    interfaces.QueueGateway
	workers  interfaces.WorkerRegistry
	capacity interfaces.CapacityManager
	blob     interfaces.BlobStore
	logger   *common.Logger

	scanInterval        time.Duration
	staleJobThreshold   time.Duration
	deadWorkerThreshold time.Duration
	snapshotInterval    time.Duration

	lastSnapshot time.Time
}

// Config groups the dependencies and intervals a Monitor needs.
type Config struct {
	Queue               interfaces.QueueGateway
	Workers             interfaces.WorkerRegistry
	Capacity            interfaces.CapacityManager
	Blob                interfaces.BlobStore
	Logger              *common.Logger
	ScanInterval        time.Duration
	StaleJobThreshold   time.Duration
	DeadWorkerThreshold time.Duration
	SnapshotInterval    time.Duration
}

// New creates a Monitor from cfg.
func New(cfg Config) *Monitor {
	return &Monitor{
		queue:               cfg.Queue,
		workers:             cfg.Workers,
		capacity:            cfg.Capacity,
		blob:                cfg.Blob,
		logger:              cfg.Logger,
		scanInterval:        cfg.ScanInterval,
		staleJobThreshold:   cfg.StaleJobThreshold,
		deadWorkerThreshold: cfg.DeadWorkerThreshold,
		snapshotInterval:    cfg.SnapshotInterval,
	}
}

// Run blocks, scanning on scanInterval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.scanInterval)
	defer ticker.Stop()

	backoff := time.Duration(0)

	scan := func() {
		if ok := m.scan(ctx); ok {
			backoff = 0
			return
		}
		if backoff == 0 {
			backoff = 2 * time.Second
		} else {
			backoff *= 2
			if backoff > backoffMax {
				backoff = backoffMax
			}
		}
		m.logger.Warn().Dur("backoff", backoff).Msg("health: scan error, backing off")
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
	}

	scan()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scan()
		}
	}
}

// scan reclaims stalled jobs and dead workers across every environment,
// then (if due) logs an aggregate snapshot and alerts. Returns false on
// a backing-store error so Run can back off.
func (m *Monitor) scan(ctx context.Context) bool {
	envs, err := m.queue.ListEnvironments(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("health: failed to list environments")
		return false
	}

	ok := true
	for _, env := range envs {
		if _, err := m.queue.ResetStalled(ctx, env.Name, m.staleJobThreshold); err != nil {
			m.logger.Warn().Str("environment", env.Name).Err(err).Msg("health: reset_stalled failed")
			ok = false
		}
	}

	evicted, err := m.workers.EvictDeadWorkers(ctx, m.deadWorkerThreshold)
	if err != nil {
		m.logger.Warn().Err(err).Msg("health: evict_dead_workers failed")
		ok = false
	}
	for _, id := range evicted {
		m.logger.Warn().Str("worker_id", id).Msg("health: evicted dead worker")
		if m.capacity != nil {
			if err := m.capacity.Release(ctx, id); err != nil {
				m.logger.Warn().Str("worker_id", id).Err(err).Msg("health: failed to release evicted worker's capacity")
			}
		}
	}

	if time.Since(m.lastSnapshot) >= m.snapshotInterval {
		m.snapshot(ctx, envs)
		m.lastSnapshot = time.Now()
	}

	return ok
}

// snapshot logs an aggregate health snapshot and renders a queue-depth
// chart, persisted through the blob store as an operational diagnostic
// artifact (there is no reporting UI of its own to display it).
func (m *Monitor) snapshot(ctx context.Context, envs []models.Environment) {
	workers, err := m.workers.ListWorkers(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("health: snapshot: failed to list workers")
		return
	}

	activeWorkers := 0
	for _, w := range workers {
		if w.Status != models.WorkerStatusOffline {
			activeWorkers++
		}
	}

	depths := make(map[string]int)
	totalPending := 0
	totalErrors := 0
	for _, env := range envs {
		pending, err := m.queue.CountPending(ctx, env.Name)
		if err != nil {
			m.logger.Warn().Str("environment", env.Name).Err(err).Msg("health: snapshot: count_pending failed")
			continue
		}
		depths[env.Name] = pending
		totalPending += pending

		errs, err := m.queue.CountErrors(ctx, env.Name)
		if err != nil {
			m.logger.Warn().Str("environment", env.Name).Err(err).Msg("health: snapshot: count_errors failed")
			continue
		}
		totalErrors += errs
	}

	m.logger.Info().
		Int("active_workers", activeWorkers).
		Int("pending_jobs", totalPending).
		Int("error_jobs", totalErrors).
		Msg("health: aggregate snapshot")

	m.alert(activeWorkers, totalPending, totalErrors, workers)

	if m.blob != nil {
		chart, err := reporting.RenderQueueDepthChart(depths)
		if err != nil {
			m.logger.Warn().Err(err).Msg("health: snapshot: chart render failed")
			return
		}
		key := "health/snapshots/" + time.Now().Format("20060102-150405") + ".png"
		if err := m.blob.Put(ctx, key, chart); err != nil {
			m.logger.Warn().Err(err).Msg("health: snapshot: chart persist failed")
		}
	}
}

// alert emits anomaly warnings when jobs are pending with no active
// workers, when busy workers exceed twice the active workers, and when
// error jobs exceed errorJobAlertThreshold.
func (m *Monitor) alert(activeWorkers, pendingJobs, errorJobs int, workers []*models.Worker) {
	if activeWorkers == 0 && pendingJobs > 0 {
		m.logger.Warn().Int("pending_jobs", pendingJobs).Msg("health: ALERT no active workers but jobs are pending")
	}

	processing := 0
	for _, w := range workers {
		if w.Status == models.WorkerStatusBusy {
			processing++
		}
	}
	if activeWorkers > 0 && processing > 2*activeWorkers {
		m.logger.Warn().Int("processing", processing).Int("active_workers", activeWorkers).
			Msg("health: ALERT processing jobs exceed 2x active workers")
	}
	if errorJobs > errorJobAlertThreshold {
		m.logger.Warn().Int("error_jobs", errorJobs).Msg("health: ALERT error job count exceeds threshold")
	}
}
