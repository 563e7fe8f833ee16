package ocr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ledongthuc/pdf"

	"github.com/paraito/registre-extractor/internal/interfaces"
)

// ShellRenderer implements interfaces.PDFRenderer. It counts pages with
// ledongthuc/pdf, a pure-Go reader, so counting needs no external binary,
// and rasterizes pages by shelling out to pdftoppm, since ledongthuc/pdf
// has no PNG rendering capability.
type ShellRenderer struct {
	// Binary is the pdftoppm executable to invoke. Defaults to
	// "pdftoppm" (resolved via PATH) when empty.
	Binary string
}

func (r *ShellRenderer) binary() string {
	if r.Binary != "" {
		return r.Binary
	}
	return "pdftoppm"
}

func (r *ShellRenderer) PageCount(ctx context.Context, pdfPath string) (int, error) {
	f, reader, err := pdf.Open(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	return reader.NumPage(), nil
}

func (r *ShellRenderer) RenderPage(ctx context.Context, pdfPath string, page int, dpi int) ([]byte, error) {
	outDir, err := os.MkdirTemp("", "registre-extractor-raster-*")
	if err != nil {
		return nil, fmt.Errorf("create raster temp dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	outPrefix := filepath.Join(outDir, "page")
	cmd := exec.CommandContext(ctx, r.binary(),
		"-png",
		"-r", fmt.Sprintf("%d", dpi),
		"-f", fmt.Sprintf("%d", page),
		"-l", fmt.Sprintf("%d", page),
		pdfPath, outPrefix,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm page %d: %w: %s", page, err, output)
	}

	rendered, err := findRenderedPage(outDir, page)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(rendered)
}

// findRenderedPage locates pdftoppm's output file. With -f/-l pinned to
// the same page, pdftoppm still zero-pads the page number in the
// filename (e.g. "page-1.png" or "page-01.png" depending on document
// page count), so the directory is scanned rather than assuming a name.
func findRenderedPage(dir string, page int) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read raster output dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("pdftoppm produced no output for page %d", page)
}

var _ interfaces.PDFRenderer = (*ShellRenderer)(nil)
