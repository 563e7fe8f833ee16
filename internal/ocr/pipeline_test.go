package ocr

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/paraito/registre-extractor/internal/common"
	"github.com/paraito/registre-extractor/internal/models"
)

type fakeBlobStore struct {
	data map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{data: make(map[string][]byte)}
}

func (f *fakeBlobStore) Put(ctx context.Context, key string, data []byte) error {
	f.data[key] = data
	return nil
}
func (f *fakeBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	return f.data[key], nil
}
func (f *fakeBlobStore) Delete(ctx context.Context, key string) error {
	delete(f.data, key)
	return nil
}

type fakeRenderer struct {
	pages int
}

func (f *fakeRenderer) PageCount(ctx context.Context, pdfPath string) (int, error) {
	return f.pages, nil
}

func (f *fakeRenderer) RenderPage(ctx context.Context, pdfPath string, page int, dpi int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes(), nil
}

type fakeVisionClient struct {
	lineCountResp string
	extractResp   string
	boostResp     string
}

func (f *fakeVisionClient) GenerateWithImage(ctx context.Context, prompt string, imagePNG []byte) (string, error) {
	if prompt == lineCountPrompt {
		return f.lineCountResp, nil
	}
	return f.extractResp, nil
}

func (f *fakeVisionClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return f.boostResp, nil
}

type fakeLimiter struct{}

func (f *fakeLimiter) TryAcquire(ctx context.Context, api string, resource models.RateResource, n float64) (bool, error) {
	return true, nil
}
func (f *fakeLimiter) RefillTick(ctx context.Context, api string, resource models.RateResource) error {
	return nil
}
func (f *fakeLimiter) Snapshot(ctx context.Context, api string, resource models.RateResource) (*models.RateBucket, error) {
	return nil, nil
}

func TestPipeline_RunProducesMergedText(t *testing.T) {
	blob := newFakeBlobStore()
	blob.data["artifact-1"] = []byte("fake-pdf-bytes")

	p := New(Config{
		Blob:     blob,
		Renderer: &fakeRenderer{pages: 2},
		Primary: &fakeVisionClient{
			lineCountResp: "12",
			extractResp:   "PARTIES | NATURE | DATE | NUM | RAD | REM",
			boostResp:     "boosted text",
		},
		Limiter: &fakeLimiter{},
		Logger:  common.NewSilentLogger(),
	})

	job := &models.Job{ID: "job-1", ArtifactPath: "artifact-1"}

	raw, boosted, err := p.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if raw == "" || boosted == "" {
		t.Fatal("expected non-empty merged text")
	}
	if !containsAll(raw, "--- Page 1 ---", "--- Page 2 ---") {
		t.Errorf("expected both page markers in raw text, got %q", raw)
	}
}

func TestPipeline_ZeroPageDocumentReturnsError(t *testing.T) {
	blob := newFakeBlobStore()
	blob.data["artifact-1"] = []byte("fake-pdf-bytes")

	p := New(Config{
		Blob:     blob,
		Renderer: &fakeRenderer{pages: 0},
		Primary:  &fakeVisionClient{},
		Limiter:  &fakeLimiter{},
		Logger:   common.NewSilentLogger(),
	})

	job := &models.Job{ID: "job-1", ArtifactPath: "artifact-1"}

	_, _, err := p.Run(context.Background(), job)
	if err == nil {
		t.Fatal("expected error for a zero-page document")
	}
}

func TestPipeline_BoostSkipsEmptyExtract(t *testing.T) {
	blob := newFakeBlobStore()
	blob.data["artifact-1"] = []byte("fake-pdf-bytes")

	p := New(Config{
		Blob:     blob,
		Renderer: &fakeRenderer{pages: 1},
		Primary: &fakeVisionClient{
			lineCountResp: "1",
			extractResp:   "",
			boostResp:     "should not be used",
		},
		Limiter: &fakeLimiter{},
		Logger:  common.NewSilentLogger(),
	})

	job := &models.Job{ID: "job-1", ArtifactPath: "artifact-1"}

	_, boosted, err := p.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("expected an empty extract to succeed with a synthesized empty boost, got error: %v", err)
	}
	if !contains(boosted, "--- Page 1 ---") {
		t.Errorf("expected the page marker even with empty extracted text, got %q", boosted)
	}
	if contains(boosted, "should not be used") {
		t.Errorf("expected boost to be skipped for empty extracted text, got %q", boosted)
	}
}

func containsAll(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if !contains(s, sub) {
			return false
		}
	}
	return true
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && (func() bool {
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return true
			}
		}
		return false
	})()
}
