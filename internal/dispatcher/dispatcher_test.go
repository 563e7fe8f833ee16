package dispatcher

import (
	"context"
	"testing"

	"github.com/paraito/registre-extractor/internal/models"
)

var (
	testExtractionKinds = []models.JobKind{models.JobKindExtraction}
	testOCRKinds        = []models.JobKind{models.JobKindOCRIndex}
)

type fakeQueue struct {
	envs     []models.Environment
	ocrJobs  map[string]*models.Job
	extJobs  map[string]*models.Job
	claimLog []string
}

func (f *fakeQueue) ListEnvironments(ctx context.Context) ([]models.Environment, error) {
	return f.envs, nil
}

func (f *fakeQueue) ClaimNext(ctx context.Context, environment, workerID string, kinds []models.JobKind) (*models.Job, error) {
	f.claimLog = append(f.claimLog, "extract:"+environment)
	j, ok := f.extJobs[environment]
	if !ok {
		return nil, nil
	}
	delete(f.extJobs, environment)
	return j, nil
}

func (f *fakeQueue) ClaimNextOCR(ctx context.Context, environment, workerID string, kinds []models.JobKind) (*models.Job, error) {
	f.claimLog = append(f.claimLog, "ocr:"+environment)
	j, ok := f.ocrJobs[environment]
	if !ok {
		return nil, nil
	}
	delete(f.ocrJobs, environment)
	return j, nil
}

func TestDispatcher_RoundRobinAcrossEnvironments(t *testing.T) {
	q := &fakeQueue{
		envs: []models.Environment{{Name: "dev"}, {Name: "staging"}, {Name: "prod"}},
		extJobs: map[string]*models.Job{
			"staging": {ID: "job-staging", Environment: "staging"},
		},
	}
	d := New(q)

	job, err := d.PickJob(context.Background(), "w-1", testExtractionKinds, nil)
	if err != nil {
		t.Fatalf("PickJob failed: %v", err)
	}
	if job == nil || job.Environment != "staging" {
		t.Fatalf("expected staging job, got %v", job)
	}
}

func TestDispatcher_PrefersOCROverExtractionWhenCapable(t *testing.T) {
	q := &fakeQueue{
		envs: []models.Environment{{Name: "dev", OCREnabled: true}},
		extJobs: map[string]*models.Job{
			"dev": {ID: "extract-job", Environment: "dev"},
		},
		ocrJobs: map[string]*models.Job{
			"dev": {ID: "ocr-job", Environment: "dev"},
		},
	}
	d := New(q)

	job, err := d.PickJob(context.Background(), "w-1", testExtractionKinds, testOCRKinds)
	if err != nil {
		t.Fatalf("PickJob failed: %v", err)
	}
	if job == nil || job.ID != "ocr-job" {
		t.Fatalf("expected OCR job to be preferred, got %v", job)
	}
}

func TestDispatcher_SkipsOCRWhenNotCapable(t *testing.T) {
	q := &fakeQueue{
		envs: []models.Environment{{Name: "dev", OCREnabled: true}},
		extJobs: map[string]*models.Job{
			"dev": {ID: "extract-job", Environment: "dev"},
		},
		ocrJobs: map[string]*models.Job{
			"dev": {ID: "ocr-job", Environment: "dev"},
		},
	}
	d := New(q)

	job, err := d.PickJob(context.Background(), "w-1", testExtractionKinds, nil)
	if err != nil {
		t.Fatalf("PickJob failed: %v", err)
	}
	if job == nil || job.ID != "extract-job" {
		t.Fatalf("expected extraction job for a non-OCR-capable worker, got %v", job)
	}
}

func TestDispatcher_OCRWorkerNeverClaimsExtractionJob(t *testing.T) {
	q := &fakeQueue{
		envs: []models.Environment{{Name: "dev", OCREnabled: true}},
		extJobs: map[string]*models.Job{
			"dev": {ID: "extract-job", Environment: "dev"},
		},
	}
	d := New(q)

	job, err := d.PickJob(context.Background(), "w-1", nil, testOCRKinds)
	if err != nil {
		t.Fatalf("PickJob failed: %v", err)
	}
	if job != nil {
		t.Fatalf("expected OCR-only worker to not claim an extraction job, got %v", job)
	}
	for _, entry := range q.claimLog {
		if entry == "extract:dev" {
			t.Fatalf("OCR-only worker must never call ClaimNext, claim log: %v", q.claimLog)
		}
	}
}

func TestDispatcher_ReturnsNilWhenNoEnvironments(t *testing.T) {
	q := &fakeQueue{}
	d := New(q)

	job, err := d.PickJob(context.Background(), "w-1", testExtractionKinds, testOCRKinds)
	if err != nil {
		t.Fatalf("PickJob failed: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil job with no environments, got %v", job)
	}
}

func TestDispatcher_CursorAdvancesAcrossCalls(t *testing.T) {
	q := &fakeQueue{
		envs: []models.Environment{{Name: "dev"}, {Name: "staging"}},
	}
	d := New(q)

	d.PickJob(context.Background(), "w-1", testExtractionKinds, nil)
	firstOrder := append([]string{}, q.claimLog...)

	q.claimLog = nil
	d.PickJob(context.Background(), "w-1", testExtractionKinds, nil)
	secondOrder := q.claimLog

	if firstOrder[0] == secondOrder[0] {
		t.Errorf("expected cursor to advance between calls, got %v then %v", firstOrder, secondOrder)
	}
}
