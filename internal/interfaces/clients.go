package interfaces

import "context"

// VisionClient is satisfied by both the Gemini and Anthropic OCR clients so
// the OCR pipeline can run its consensus line-count step against either.
type VisionClient interface {
	// GenerateWithImage sends a prompt plus one inline image and returns
	// the model's text response.
	GenerateWithImage(ctx context.Context, prompt string, imagePNG []byte) (string, error)

	// GenerateContent sends a text-only prompt, used for the boost stage.
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// PDFRenderer rasterizes PDF pages to PNG and reports page counts.
// ledongthuc/pdf exposes text and page counts but not rasterization, so
// the default implementation shells out to pdftoppm; tests inject a fake.
type PDFRenderer interface {
	PageCount(ctx context.Context, pdfPath string) (int, error)
	RenderPage(ctx context.Context, pdfPath string, page int, dpi int) (png []byte, err error)
}

// BlobStore persists extraction artifacts (source PDFs, rendered page
// images, final text) keyed by job and stage.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
