package ocr

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestShellRenderer_DefaultBinary(t *testing.T) {
	r := &ShellRenderer{}
	if r.binary() != "pdftoppm" {
		t.Errorf("expected default binary pdftoppm, got %q", r.binary())
	}
}

func TestShellRenderer_CustomBinary(t *testing.T) {
	r := &ShellRenderer{Binary: "/custom/path/pdftoppm"}
	if r.binary() != "/custom/path/pdftoppm" {
		t.Errorf("expected custom binary to be used, got %q", r.binary())
	}
}

func TestFindRenderedPage_LocatesOutputFile(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "page-1.png")
	if err := os.WriteFile(outPath, []byte("fake-png"), 0o644); err != nil {
		t.Fatalf("failed to write fixture file: %v", err)
	}

	found, err := findRenderedPage(dir, 1)
	if err != nil {
		t.Fatalf("findRenderedPage failed: %v", err)
	}
	if found != outPath {
		t.Errorf("expected %q, got %q", outPath, found)
	}
}

func TestFindRenderedPage_EmptyDirErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := findRenderedPage(dir, 1)
	if err == nil {
		t.Fatal("expected an error when pdftoppm produced no output")
	}
}

func TestShellRenderer_PageCountMissingFileErrors(t *testing.T) {
	r := &ShellRenderer{}
	_, err := r.PageCount(context.Background(), "/nonexistent/document.pdf")
	if err == nil {
		t.Fatal("expected an error opening a nonexistent PDF")
	}
}
