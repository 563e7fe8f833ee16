// Package ocr implements the OCR Pipeline: given a Job whose
// artifact_path points at a PDF, produces raw_text and boosted_text by
// fetching, rasterizing, upscaling, counting, extracting, and boosting
// each page, then merging page results in order.
package ocr

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/paraito/registre-extractor/internal/common"
	"github.com/paraito/registre-extractor/internal/interfaces"
	"github.com/paraito/registre-extractor/internal/models"
)

// Per-stage concurrency and stagger limits.
const (
	lineCountConcurrency = 10
	lineCountStagger     = 500 * time.Millisecond

	extractConcurrency = 6
	extractStagger     = 2 * time.Second

	boostConcurrency = 5
	boostStagger     = 1 * time.Second

	rasterDPI = 288 // ~4x viewport scale at 72 DPI baseline

	// maxSafeImageBytes is the raw (pre-base64) image size the pipeline
	// targets so the base64-encoded payload stays under common
	// downstream vision API caps.
	maxSafeImageBytes = 3 * 1024 * 1024
)

// Pipeline runs the OCR stages for one document at a time. A Worker
// Runtime calls Run once per OCR-stage job it claims.
type Pipeline struct {
	blob      interfaces.BlobStore
	renderer  interfaces.PDFRenderer
	primary   interfaces.VisionClient
	consensus interfaces.VisionClient // optional; nil disables the second-model consensus pass
	limiter   interfaces.RateLimiter
	logger    *common.Logger

	requireAllPages bool
}

// Config groups the dependencies and policy knobs a Pipeline needs.
type Config struct {
	Blob            interfaces.BlobStore
	Renderer        interfaces.PDFRenderer
	Primary         interfaces.VisionClient
	Consensus       interfaces.VisionClient
	Limiter         interfaces.RateLimiter
	Logger          *common.Logger
	RequireAllPages bool
}

// New creates a Pipeline from cfg.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		blob:            cfg.Blob,
		renderer:        cfg.Renderer,
		primary:         cfg.Primary,
		consensus:       cfg.Consensus,
		limiter:         cfg.Limiter,
		logger:          cfg.Logger,
		requireAllPages: cfg.RequireAllPages,
	}
}

// Run executes the full pipeline against job.ArtifactPath and returns the
// merged raw and boosted text. A fetch or rasterize failure is fatal for
// the job (returned as an error); per-page extract or
// boost failures are tolerated unless RequireAllPages is set.
func (p *Pipeline) Run(ctx context.Context, job *models.Job) (rawText string, boostedText string, err error) {
	pdfPath, cleanup, err := p.fetch(ctx, job.ArtifactPath)
	if err != nil {
		return "", "", fmt.Errorf("fetch artifact: %w", err)
	}
	defer cleanup()

	pageCount, err := p.renderer.PageCount(ctx, pdfPath)
	if err != nil {
		return "", "", fmt.Errorf("rasterize: page count: %w", err)
	}
	if pageCount == 0 {
		return "", "", fmt.Errorf("rasterize: document has no pages")
	}

	pages := make([]int, pageCount)
	for i := range pages {
		pages[i] = i + 1
	}

	originals, upscaled, err := p.rasterizeAndUpscale(ctx, pdfPath, pages)
	if err != nil {
		return "", "", fmt.Errorf("rasterize: %w", err)
	}

	p.countLines(ctx, pages, originals, upscaled)
	results := p.extract(ctx, pages, originals, upscaled)
	p.boost(ctx, results)

	if p.requireAllPages {
		for _, r := range results {
			if r.Err != nil {
				return "", "", fmt.Errorf("page %d failed and require-all-pages is set: %w", r.Page, r.Err)
			}
		}
	}

	anySucceeded := false
	for _, r := range results {
		if r.Err == nil {
			anySucceeded = true
			break
		}
	}
	if !anySucceeded {
		return "", "", fmt.Errorf("all %d pages failed extraction", pageCount)
	}

	raw, boosted := merge(results)
	return raw, boosted, nil
}

// fetch reads the PDF from blob storage to a local temp file, since the
// injected PDFRenderer (by default a pdftoppm shell-out) operates on a
// file path rather than an in-memory buffer.
func (p *Pipeline) fetch(ctx context.Context, artifactPath string) (path string, cleanup func(), err error) {
	data, err := p.blob.Get(ctx, artifactPath)
	if err != nil {
		return "", func() {}, err
	}

	f, err := os.CreateTemp("", "registre-extractor-*.pdf")
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", func() {}, fmt.Errorf("write temp file: %w", err)
	}
	f.Close()

	return f.Name(), func() { os.Remove(f.Name()) }, nil
}

type pageImages struct {
	mu        sync.Mutex
	original  map[int][]byte
	upscaled  map[int][]byte
}

func (p *Pipeline) rasterizeAndUpscale(ctx context.Context, pdfPath string, pages []int) (map[int][]byte, map[int][]byte, error) {
	imgs := &pageImages{original: make(map[int][]byte), upscaled: make(map[int][]byte)}

	_, failed := boundedParallelMap(ctx, pages, extractConcurrency, 0, func(ctx context.Context, page int) error {
		original, err := p.renderer.RenderPage(ctx, pdfPath, page, rasterDPI)
		if err != nil {
			return fmt.Errorf("render page %d: %w", page, err)
		}
		up, err := upscalePNG(original)
		if err != nil {
			return fmt.Errorf("upscale page %d: %w", page, err)
		}

		imgs.mu.Lock()
		imgs.original[page] = original
		imgs.upscaled[page] = up
		imgs.mu.Unlock()
		return nil
	})
	if len(failed) > 0 {
		for page, err := range failed {
			return nil, nil, fmt.Errorf("page %d: %w", page, err)
		}
	}

	return imgs.original, imgs.upscaled, nil
}

// chooseImage picks the smallest of {upscaled, original} that fits under
// maxSafeImageBytes, falling back to original with a logged warning if
// neither fits.
func (p *Pipeline) chooseImage(page int, original, upscaled []byte) []byte {
	if len(upscaled) <= maxSafeImageBytes {
		return upscaled
	}
	if len(original) <= maxSafeImageBytes {
		return original
	}
	p.logger.Warn().Int("page", page).Int("original_bytes", len(original)).
		Msg("ocr: page image exceeds safe size even unscaled, sending anyway")
	return original
}

func (p *Pipeline) countLines(ctx context.Context, pages []int, originals, upscaled map[int][]byte) map[int]int {
	counts := make(map[int]int)
	var mu sync.Mutex

	boundedParallelMap(ctx, pages, lineCountConcurrency, lineCountStagger, func(ctx context.Context, page int) error {
		img := p.chooseImage(page, originals[page], upscaled[page])

		primaryResp, err := p.callWithRateLimit(ctx, "gemini", estimatedImageTokens(len(img)), func() (string, error) {
			return p.primary.GenerateWithImage(ctx, lineCountPrompt, img)
		})
		if err != nil {
			return err
		}
		count := parseLineCount(primaryResp)

		if p.consensus != nil {
			consensusResp, err := p.callWithRateLimit(ctx, "anthropic", estimatedImageTokens(len(img)), func() (string, error) {
				return p.consensus.GenerateWithImage(ctx, lineCountPrompt, img)
			})
			if err == nil {
				if alt := parseLineCount(consensusResp); alt > count {
					count = alt
				}
			}
		}

		mu.Lock()
		counts[page] = count
		mu.Unlock()
		return nil
	})

	return counts
}

func parseLineCount(resp string) int {
	trimmed := strings.TrimSpace(resp)
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0
	}
	return n
}

func (p *Pipeline) extract(ctx context.Context, pages []int, originals, upscaled map[int][]byte) []models.PageResult {
	results := make([]models.PageResult, len(pages))
	for i, page := range pages {
		results[i] = models.PageResult{Page: page}
	}
	var mu sync.Mutex

	boundedParallelMap(ctx, pages, extractConcurrency, extractStagger, func(ctx context.Context, page int) error {
		img := p.chooseImage(page, originals[page], upscaled[page])
		resp, err := p.callWithRateLimit(ctx, "gemini", estimatedImageTokens(len(img)), func() (string, error) {
			return p.primary.GenerateWithImage(ctx, extractPrompt, img)
		})

		mu.Lock()
		defer mu.Unlock()
		idx := indexOfPage(results, page)
		if err != nil {
			results[idx].Err = err
			return err
		}
		results[idx].RawText = resp
		return nil
	})

	return results
}

func (p *Pipeline) boost(ctx context.Context, results []models.PageResult) {
	pages := make([]int, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			pages = append(pages, r.Page)
		}
	}
	var mu sync.Mutex

	boundedParallelMap(ctx, pages, boostConcurrency, boostStagger, func(ctx context.Context, page int) error {
		mu.Lock()
		idx := indexOfPage(results, page)
		raw := results[idx].RawText
		mu.Unlock()

		// Boost-on-empty-extract: skip the call and synthesize
		// boosted = raw rather than treating it as a failure.
		if strings.TrimSpace(raw) == "" {
			mu.Lock()
			results[idx].BoostedText = raw
			mu.Unlock()
			return nil
		}

		resp, err := p.callWithRateLimit(ctx, "gemini", estimatedTextTokens(raw), func() (string, error) {
			return p.primary.GenerateContent(ctx, boostPrompt(raw))
		})

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			results[idx].Err = err
			return err
		}
		results[idx].BoostedText = resp
		return nil
	})
}

func indexOfPage(results []models.PageResult, page int) int {
	for i, r := range results {
		if r.Page == page {
			return i
		}
	}
	return -1
}

// callWithRateLimit waits for RateLimiter admission on both the
// requests and tokens buckets before running fn. A denial on either
// bucket sleeps a fixed interval and retries; this scheduling stall
// does not count against the bounded parallel map's retry budget.
func (p *Pipeline) callWithRateLimit(ctx context.Context, api string, estimatedTokens float64, fn func() (string, error)) (string, error) {
	for {
		okReq, err := p.limiter.TryAcquire(ctx, api, models.RateResourceRequests, 1)
		if err != nil {
			return "", err
		}
		okTok, err := p.limiter.TryAcquire(ctx, api, models.RateResourceTokens, estimatedTokens)
		if err != nil {
			return "", err
		}
		if okReq && okTok {
			return fn()
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// estimatedImageTokens approximates a vision call's input-token cost
// from its encoded image size, avoiding an extra round trip to ask the
// upstream API for an exact count before the call is even made.
func estimatedImageTokens(imgBytes int) float64 {
	return float64(imgBytes) / 750
}

// estimatedTextTokens approximates a text call's token cost from its
// character length using the common ~4-chars-per-token heuristic.
func estimatedTextTokens(s string) float64 {
	return float64(len(s)) / 4
}
