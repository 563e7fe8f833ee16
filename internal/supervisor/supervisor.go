// Package supervisor implements the Supervisor: reads a worker plan
// from configuration, gates each worker's startup on Capacity Manager
// admission, and owns the Health Monitor's lifecycle alongside the
// worker pool. Grounded on cmd/vire-server/main.go's signal handling.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paraito/registre-extractor/internal/common"
	"github.com/paraito/registre-extractor/internal/dispatcher"
	"github.com/paraito/registre-extractor/internal/health"
	"github.com/paraito/registre-extractor/internal/interfaces"
	"github.com/paraito/registre-extractor/internal/models"
	"github.com/paraito/registre-extractor/internal/worker"
)

// ShutdownDeadline bounds how long the Supervisor waits for every Worker
// to reach offline before forcing process exit.
const ShutdownDeadline = 90 * time.Second

// extractionProfile and ocrProfile are the fixed per-kind resource costs
// the Capacity Manager admits against.
var (
	extractionProfile = models.ResourceProfile{CPUUnits: 0.5, RAMUnits: 1}
	ocrProfile        = models.ResourceProfile{CPUUnits: 1, RAMUnits: 2}
)

// WorkerPlan is the kind -> count the Supervisor reads from
// configuration.
type WorkerPlan struct {
	ExtractionCount int
	OCRCount        int
}

// Supervisor owns the worker pool and the Health Monitor.
type Supervisor struct {
	queue      interfaces.QueueGateway
	registry   interfaces.WorkerRegistry
	capacity   interfaces.CapacityManager
	extractors interfaces.ExtractorRegistry
	ocr        worker.OCRPipeline
	monitor    *health.Monitor
	logger     *common.Logger

	plan         WorkerPlan
	pollInterval time.Duration

	mu      sync.Mutex
	workers []*worker.Runtime
}

// Config groups the dependencies a Supervisor needs.
type Config struct {
	Queue        interfaces.QueueGateway
	Registry     interfaces.WorkerRegistry
	Capacity     interfaces.CapacityManager
	Extractors   interfaces.ExtractorRegistry
	OCR          worker.OCRPipeline
	Monitor      *health.Monitor
	Logger       *common.Logger
	Plan         WorkerPlan
	PollInterval time.Duration
}

// New creates a Supervisor from cfg.
func New(cfg Config) *Supervisor {
	return &Supervisor{
		queue:        cfg.Queue,
		registry:     cfg.Registry,
		capacity:     cfg.Capacity,
		extractors:   cfg.Extractors,
		ocr:          cfg.OCR,
		monitor:      cfg.Monitor,
		logger:       cfg.Logger,
		plan:         cfg.Plan,
		pollInterval: cfg.PollInterval,
	}
}

// Run starts the Health Monitor and every admitted Worker, then blocks
// until ctx is cancelled. It forwards cancellation to every live Worker
// and waits for all of them to reach offline, or ShutdownDeadline,
// whichever comes first.
func (s *Supervisor) Run(ctx context.Context) error {
	dp := dispatcher.New(s.queue)

	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	defer cancelMonitor()
	go s.monitor.Run(monitorCtx)

	s.startPlanned(ctx, dp, models.JobKindExtraction, extractionProfile, s.plan.ExtractionCount)
	s.startPlanned(ctx, dp, models.JobKindOCRIndex, ocrProfile, s.plan.OCRCount)

	<-ctx.Done()
	s.logger.Info().Msg("supervisor: shutdown signal received, draining workers")

	return s.waitForDrain()
}

// startPlanned admits and starts count workers of the given kind label.
// label determines the resource profile and which kind set the worker
// is given to claim against: an extraction-label worker is given every
// Extraction-stage job kind and no OCR kinds, an OCR-label worker is
// given every OCR-capable kind and no extraction kinds. The two pools never
// overlap, so an OCR-designated worker cannot fall through to claiming
// ordinary Extraction-stage jobs. A single extraction worker resolves
// its actual per-job Extractor via the ExtractorRegistry, so one kind
// label covers every Extraction-stage job kind.
func (s *Supervisor) startPlanned(ctx context.Context, dp *dispatcher.Dispatcher, label models.JobKind, profile models.ResourceProfile, count int) {
	var extractionKinds, ocrKinds []models.JobKind
	if label == models.JobKindExtraction {
		extractionKinds = []models.JobKind{models.JobKindExtraction, models.JobKindOCRIndex, models.JobKindOCRActe, models.JobKindREQ, models.JobKindRDPRM}
	} else {
		ocrKinds = []models.JobKind{models.JobKindOCRIndex, models.JobKindOCRActe, models.JobKindREQ, models.JobKindRDPRM}
	}

	for i := 0; i < count; i++ {
		id := fmt.Sprintf("%s-%s", label, uuid.New().String())

		ok, err := s.capacity.Admit(ctx, id, label, profile)
		if err != nil {
			s.logger.Error().Err(err).Str("worker_id", id).Msg("supervisor: capacity admission failed")
			continue
		}
		if !ok {
			s.logger.Warn().Str("worker_id", id).Str("kind", string(label)).Msg("supervisor: capacity denied, skipping worker")
			continue
		}

		w := worker.New(worker.Config{
			ID:              id,
			ExtractionKinds: extractionKinds,
			OCRKinds:        ocrKinds,
			Queue:           s.queue,
			Dispatcher:      dp,
			Registry:        s.registry,
			Extractors:      s.extractors,
			OCR:             s.ocr,
			Capacity:        s.capacity,
			Logger:          s.logger,
			PollInterval:    s.pollInterval,
		})

		s.mu.Lock()
		s.workers = append(s.workers, w)
		s.mu.Unlock()

		go w.Run(ctx)
		s.logger.Info().Str("worker_id", id).Str("kind", string(label)).Msg("supervisor: worker started")
	}
}

// waitForDrain blocks until every Worker signals it has reached offline
// or ShutdownDeadline elapses, whichever is sooner.
func (s *Supervisor) waitForDrain() error {
	s.mu.Lock()
	workers := make([]*worker.Runtime, len(s.workers))
	copy(workers, s.workers)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, w := range workers {
			wg.Add(1)
			go func(w *worker.Runtime) {
				defer wg.Done()
				w.Shutdown()
			}(w)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("supervisor: all workers offline")
		return nil
	case <-time.After(ShutdownDeadline):
		s.logger.Warn().Dur("deadline", ShutdownDeadline).Msg("supervisor: shutdown deadline exceeded, exiting anyway")
		return fmt.Errorf("shutdown deadline of %s exceeded", ShutdownDeadline)
	}
}
