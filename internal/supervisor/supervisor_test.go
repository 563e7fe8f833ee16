package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/paraito/registre-extractor/internal/capacity"
	"github.com/paraito/registre-extractor/internal/common"
	"github.com/paraito/registre-extractor/internal/extractor"
	"github.com/paraito/registre-extractor/internal/health"
	"github.com/paraito/registre-extractor/internal/models"
	"github.com/paraito/registre-extractor/internal/worker"
)

type fakeQueue struct{}

func (f *fakeQueue) Enqueue(ctx context.Context, job *models.Job) error { return nil }
func (f *fakeQueue) ClaimNext(ctx context.Context, environment, workerID string, kinds []models.JobKind) (*models.Job, error) {
	return nil, nil
}
func (f *fakeQueue) ClaimNextOCR(ctx context.Context, environment, workerID string, kinds []models.JobKind) (*models.Job, error) {
	return nil, nil
}
func (f *fakeQueue) ReportSuccess(ctx context.Context, job *models.Job) error { return nil }
func (f *fakeQueue) ReportFailure(ctx context.Context, job *models.Job, cause error) error {
	return nil
}
func (f *fakeQueue) Heartbeat(ctx context.Context, environment, jobID, workerID string) error {
	return nil
}
func (f *fakeQueue) ResetStalled(ctx context.Context, environment string, threshold time.Duration) (int, error) {
	return 0, nil
}
func (f *fakeQueue) ListEnvironments(ctx context.Context) ([]models.Environment, error) {
	return nil, nil
}
func (f *fakeQueue) CountPending(ctx context.Context, environment string) (int, error) {
	return 0, nil
}
func (f *fakeQueue) CountErrors(ctx context.Context, environment string) (int, error) {
	return 0, nil
}

func TestSupervisor_StartsAdmittedWorkersAndDrainsOnCancel(t *testing.T) {
	queue := &fakeQueue{}
	registry := worker.NewRegistry()
	capMgr := capacity.NewLocalManager(10, 10, 0, 0)
	extractors := extractor.NewRegistry()
	extractors.Register(extractor.NewStub(models.JobKindExtraction))

	monitor := health.New(health.Config{
		Queue:            queue,
		Workers:          registry,
		Capacity:         capMgr,
		Logger:           common.NewSilentLogger(),
		ScanInterval:     time.Hour,
		SnapshotInterval: time.Hour,
	})

	sup := New(Config{
		Queue:      queue,
		Registry:   registry,
		Capacity:   capMgr,
		Extractors: extractors,
		Monitor:    monitor,
		Logger:     common.NewSilentLogger(),
		Plan:       WorkerPlan{ExtractionCount: 1, OCRCount: 0},
		PollInterval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- sup.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not shut down within the test timeout")
	}

	workers, _ := registry.ListWorkers(context.Background())
	if len(workers) != 0 {
		t.Errorf("expected all workers deregistered after shutdown, got %d", len(workers))
	}
}

func TestSupervisor_DeniesWorkerOverCapacityCeiling(t *testing.T) {
	queue := &fakeQueue{}
	registry := worker.NewRegistry()
	capMgr := capacity.NewLocalManager(0.1, 0.1, 0, 0)
	extractors := extractor.NewRegistry()
	extractors.Register(extractor.NewStub(models.JobKindExtraction))

	monitor := health.New(health.Config{
		Queue:            queue,
		Workers:          registry,
		Capacity:         capMgr,
		Logger:           common.NewSilentLogger(),
		ScanInterval:     time.Hour,
		SnapshotInterval: time.Hour,
	})

	sup := New(Config{
		Queue:        queue,
		Registry:     registry,
		Capacity:     capMgr,
		Extractors:   extractors,
		Monitor:      monitor,
		Logger:       common.NewSilentLogger(),
		Plan:         WorkerPlan{ExtractionCount: 3, OCRCount: 0},
		PollInterval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)

	workers, _ := registry.ListWorkers(context.Background())
	if len(workers) != 0 {
		t.Errorf("expected no workers registered when capacity ceiling denies every admission, got %d", len(workers))
	}

	cancel()
	<-done
}
