package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paraito/registre-extractor/internal/common"
	"github.com/paraito/registre-extractor/internal/interfaces"
	"github.com/paraito/registre-extractor/internal/models"
)

func testLogger() *common.Logger {
	return common.NewSilentLogger()
}

type fakeDispatcher struct {
	mu   sync.Mutex
	jobs []*models.Job
}

func (f *fakeDispatcher) PickJob(ctx context.Context, workerID string, extractionKinds, ocrKinds []models.JobKind) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.jobs) == 0 {
		return nil, nil
	}
	job := f.jobs[0]
	f.jobs = f.jobs[1:]
	return job, nil
}

type fakeQueueGateway struct {
	mu        sync.Mutex
	successes []string
	failures  []string
	heartbeat int
}

func (f *fakeQueueGateway) Enqueue(ctx context.Context, job *models.Job) error { return nil }
func (f *fakeQueueGateway) ClaimNext(ctx context.Context, environment, workerID string, kinds []models.JobKind) (*models.Job, error) {
	return nil, nil
}
func (f *fakeQueueGateway) ClaimNextOCR(ctx context.Context, environment, workerID string, kinds []models.JobKind) (*models.Job, error) {
	return nil, nil
}
func (f *fakeQueueGateway) ReportSuccess(ctx context.Context, job *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes = append(f.successes, job.ID)
	return nil
}
func (f *fakeQueueGateway) ReportFailure(ctx context.Context, job *models.Job, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, job.ID)
	return nil
}
func (f *fakeQueueGateway) Heartbeat(ctx context.Context, environment, jobID, workerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeat++
	return nil
}
func (f *fakeQueueGateway) ResetStalled(ctx context.Context, environment string, threshold time.Duration) (int, error) {
	return 0, nil
}
func (f *fakeQueueGateway) ListEnvironments(ctx context.Context) ([]models.Environment, error) {
	return nil, nil
}
func (f *fakeQueueGateway) CountPending(ctx context.Context, environment string) (int, error) {
	return 0, nil
}
func (f *fakeQueueGateway) CountErrors(ctx context.Context, environment string) (int, error) {
	return 0, nil
}

type fakeExtractor struct {
	fail bool
}

func (e fakeExtractor) Kind() models.JobKind { return models.JobKindExtraction }
func (e fakeExtractor) Extract(ctx context.Context, job *models.Job) (string, error) {
	if e.fail {
		return "", errors.New("extract failed")
	}
	return "artifact-path", nil
}

type fakeExtractorRegistry struct {
	ex interfaces.Extractor
}

func newRuntimeTestExtractorRegistry(fail bool) *fakeExtractorRegistry {
	return &fakeExtractorRegistry{ex: fakeExtractor{fail: fail}}
}

func (f *fakeExtractorRegistry) Register(e interfaces.Extractor) { f.ex = e }

func (f *fakeExtractorRegistry) Resolve(kind models.JobKind) (interfaces.Extractor, bool) {
	return f.ex, f.ex != nil
}

func TestRuntime_RunsJobToSuccess(t *testing.T) {
	job := &models.Job{ID: "job-1", Kind: models.JobKindExtraction, Status: models.JobStatusProcessing}
	dp := &fakeDispatcher{jobs: []*models.Job{job}}
	queue := &fakeQueueGateway{}
	registry := NewRegistry()
	extractors := newRuntimeTestExtractorRegistry(false)

	rt := New(Config{
		ID:              "w-1",
		ExtractionKinds: []models.JobKind{models.JobKindExtraction},
		Queue:           queue,
		Dispatcher:      dp,
		Registry:        registry,
		Extractors:      extractors,
		Logger:          testLogger(),
		PollInterval:    10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go rt.Run(ctx)

	deadline := time.After(2 * time.Second)
	for {
		queue.mu.Lock()
		done := len(queue.successes) == 1
		queue.mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for job to report success")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	rt.Shutdown()

	workers, _ := registry.ListWorkers(context.Background())
	if len(workers) != 0 {
		t.Errorf("expected worker to deregister on shutdown, got %d", len(workers))
	}
}

func TestRuntime_ReportsFailureOnExtractError(t *testing.T) {
	job := &models.Job{ID: "job-1", Kind: models.JobKindExtraction, Status: models.JobStatusProcessing}
	dp := &fakeDispatcher{jobs: []*models.Job{job}}
	queue := &fakeQueueGateway{}
	registry := NewRegistry()
	extractors := newRuntimeTestExtractorRegistry(true)

	rt := New(Config{
		ID:              "w-1",
		ExtractionKinds: []models.JobKind{models.JobKindExtraction},
		Queue:           queue,
		Dispatcher:      dp,
		Registry:        registry,
		Extractors:      extractors,
		Logger:          testLogger(),
		PollInterval:    10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go rt.Run(ctx)

	deadline := time.After(2 * time.Second)
	for {
		queue.mu.Lock()
		done := len(queue.failures) == 1
		queue.mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for job to report failure")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	rt.Shutdown()
}
