package worker

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paraito/registre-extractor/internal/common"
	"github.com/paraito/registre-extractor/internal/extractorerr"
	"github.com/paraito/registre-extractor/internal/interfaces"
	"github.com/paraito/registre-extractor/internal/models"
)

const (
	idleHeartbeatInterval = 15 * time.Second
	busyHeartbeatInterval = 60 * time.Second

	extractionHardDeadline = 10 * time.Minute
	ocrHardDeadline        = 15 * time.Minute
)

// Dispatcher is the subset of dispatcher.Dispatcher a Worker needs.
type Dispatcher interface {
	PickJob(ctx context.Context, workerID string, extractionKinds, ocrKinds []models.JobKind) (*models.Job, error)
}

// OCRPipeline is the subset of the OCR Pipeline a Worker needs to run an
// OCR-stage job to completion.
type OCRPipeline interface {
	Run(ctx context.Context, job *models.Job) (rawText string, boostedText string, err error)
}

// Runtime is a single-threaded Worker: one job at a time, claimed through
// the Dispatcher, heartbeating on a cadence that depends on whether it is
// idle or busy. One goroutine per Worker runs its own claim-execute-report
// loop independently, rather than sharing a single dequeue loop across a pool.
type Runtime struct {
	id              string
	extractionKinds []models.JobKind
	ocrKinds        []models.JobKind

	queue      interfaces.QueueGateway
	dispatcher Dispatcher
	registry   interfaces.WorkerRegistry
	extractors interfaces.ExtractorRegistry
	ocr        OCRPipeline
	capacity   interfaces.CapacityManager
	logger     *common.Logger

	pollInterval time.Duration

	draining atomic.Bool
	done     chan struct{}
	wg       sync.WaitGroup
}

// Config groups the dependencies a Runtime needs at construction time.
// ExtractionKinds and OCRKinds are assigned by the Supervisor and kept
// disjoint per worker, so a worker started with only OCRKinds never
// claims an extraction-stage job and vice versa.
type Config struct {
	ID              string
	ExtractionKinds []models.JobKind
	OCRKinds        []models.JobKind
	Queue           interfaces.QueueGateway
	Dispatcher      Dispatcher
	Registry        interfaces.WorkerRegistry
	Extractors      interfaces.ExtractorRegistry
	OCR             OCRPipeline
	Capacity        interfaces.CapacityManager
	Logger          *common.Logger
	PollInterval    time.Duration
}

// New creates a Worker Runtime from cfg.
func New(cfg Config) *Runtime {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Runtime{
		id:              cfg.ID,
		extractionKinds: cfg.ExtractionKinds,
		ocrKinds:        cfg.OCRKinds,
		queue:           cfg.Queue,
		dispatcher:      cfg.Dispatcher,
		registry:        cfg.Registry,
		extractors:      cfg.Extractors,
		ocr:             cfg.OCR,
		capacity:        cfg.Capacity,
		logger:          cfg.Logger,
		pollInterval:    poll,
		done:            make(chan struct{}),
	}
}

// ID returns the Worker's identity, used as its capacity-allocation key.
func (r *Runtime) ID() string {
	return r.id
}

// Run registers the Worker and blocks running its loop until ctx is
// cancelled, at which point it drains: finishes any in-flight job
// (bounded by the stage's hard deadline), then transitions through
// draining to offline and releases its capacity allocation.
func (r *Runtime) Run(ctx context.Context) {
	r.wg.Add(1)
	defer r.wg.Done()
	defer close(r.done)

	capabilities := make([]models.JobKind, 0, len(r.extractionKinds)+len(r.ocrKinds))
	capabilities = append(capabilities, r.extractionKinds...)
	capabilities = append(capabilities, r.ocrKinds...)
	if err := r.registry.Register(ctx, &models.Worker{ID: r.id, KindCapabilities: capabilities}); err != nil {
		r.logger.Error().Err(err).Str("worker_id", r.id).Msg("worker: register failed")
		return
	}

	r.heartbeatLoop(ctx)

	r.logger.Info().Str("worker_id", r.id).Msg("worker: draining")
	r.draining.Store(true)
	r.registry.Heartbeat(context.Background(), r.id, models.WorkerStatusDraining, nil)

	r.registry.Heartbeat(context.Background(), r.id, models.WorkerStatusOffline, nil)
	if r.capacity != nil {
		if err := r.capacity.Release(context.Background(), r.id); err != nil {
			r.logger.Warn().Err(err).Str("worker_id", r.id).Msg("worker: capacity release failed")
		}
	}
	r.registry.Deregister(context.Background(), r.id)
}

// heartbeatLoop is the Worker's main loop: poll for work while ctx is
// live, heartbeat on the idle or busy cadence depending on state.
func (r *Runtime) heartbeatLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil || r.draining.Load() {
			return
		}

		job, err := r.dispatcher.PickJob(ctx, r.id, r.extractionKinds, r.ocrKinds)
		if err != nil {
			r.logger.Warn().Err(err).Str("worker_id", r.id).Msg("worker: dispatch error")
			if !r.sleep(ctx, r.pollInterval) {
				return
			}
			continue
		}
		if job == nil {
			r.registry.Heartbeat(ctx, r.id, models.WorkerStatusIdle, nil)
			if !r.sleep(ctx, jitter(r.pollInterval)) {
				return
			}
			continue
		}

		r.runJob(ctx, job)
	}
}

// runJob executes one claimed job to completion, heartbeating on the
// busy cadence for the duration, bounded by the stage's hard deadline.
func (r *Runtime) runJob(ctx context.Context, job *models.Job) {
	r.registry.Heartbeat(ctx, r.id, models.WorkerStatusBusy, &job.ID)

	deadline := extractionHardDeadline
	if job.Status == models.JobStatusOCRProcessing {
		deadline = ocrHardDeadline
	}
	// Cancelling ctx stops polling but not the in-flight job, which runs
	// on until it finishes or its hard deadline passes.
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deadline)
	defer cancel()

	stop := r.startBusyHeartbeat(jobCtx, job)
	defer stop()

	var execErr error
	if job.Status == models.JobStatusOCRProcessing {
		raw, boosted, err := r.ocr.Run(jobCtx, job)
		job.RawText = raw
		job.BoostedText = boosted
		execErr = err
	} else {
		ex, ok := r.extractors.Resolve(job.Kind)
		if !ok {
			execErr = extractorerr.Wrapf(extractorerr.KindPermanent, "no extractor registered for kind %q", job.Kind)
		} else {
			artifact, err := ex.Extract(jobCtx, job)
			job.ArtifactPath = artifact
			execErr = err
		}
	}

	if execErr != nil {
		r.logger.Warn().Err(execErr).Str("worker_id", r.id).Str("job_id", job.ID).Msg("worker: job failed")
		if reportErr := r.queue.ReportFailure(context.Background(), job, execErr); reportErr != nil {
			r.logger.Error().Err(reportErr).Str("job_id", job.ID).Msg("worker: report failure call itself failed")
		}
		return
	}

	if err := r.queue.ReportSuccess(context.Background(), job); err != nil {
		r.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: report success call failed")
	}
}

// startBusyHeartbeat refreshes both the Worker's liveness and the job's
// last_heartbeat_at on the busy cadence until the returned stop func runs.
func (r *Runtime) startBusyHeartbeat(ctx context.Context, job *models.Job) func() {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(busyHeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.registry.Heartbeat(ctx, r.id, models.WorkerStatusBusy, &job.ID)
				if err := r.queue.Heartbeat(ctx, job.Environment, job.ID, r.id); err != nil {
					r.logger.Warn().Err(err).Str("job_id", job.ID).Msg("worker: job heartbeat failed")
				}
			}
		}
	}()
	return func() {
		close(stop)
		wg.Wait()
	}
}

// Shutdown signals the Worker to stop polling for new work and blocks
// until it has finished draining. Callers should also cancel the ctx
// passed to Run to bound any in-flight job by its hard deadline.
func (r *Runtime) Shutdown() {
	r.draining.Store(true)
	<-r.done
}

func (r *Runtime) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// jitter returns d plus up to ±20% random variance, matching the
// "poll_interval ± jitter".
func jitter(d time.Duration) time.Duration {
	delta := time.Duration(rand.Int63n(int64(d) / 5))
	if rand.Intn(2) == 0 {
		return d + delta
	}
	return d - delta
}
