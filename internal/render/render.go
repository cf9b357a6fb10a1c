package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rs/zerolog/log"
)

// RenderError wraps a rasterization failure. The caller is expected to
// fall back to offering the raw document instead of a partial image
// display.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string { return fmt.Sprintf("rendering pages: %v", e.Err) }
func (e *RenderError) Unwrap() error { return e.Err }

// Window computes the inclusive 0-based page range to display around
// currentPage, clamped at document boundaries. Near an edge the window
// may be asymmetric.
func Window(currentPage, totalPages, before, after int) (start, end int) {
	start = currentPage - before
	if start < 0 {
		start = 0
	}
	end = currentPage + after
	if end > totalPages-1 {
		end = totalPages - 1
	}
	return start, end
}

// AnswerIndexWithinWindow returns the answer page's position within
// the rendered image sequence, used to highlight it among context
// pages.
func AnswerIndexWithinWindow(currentPage, start int) int {
	return currentPage - start
}

// Renderer rasterizes PDF pages to PNG images by shelling out to
// pdftoppm.
type Renderer struct {
	DPI int
	// Bin overrides the pdftoppm binary, mainly for tests.
	Bin string
}

func New(dpi int) *Renderer {
	return &Renderer{DPI: dpi, Bin: "pdftoppm"}
}

// Render rasterizes pages [start, end] inclusive (0-based) of the
// document at pdfPath into outDir and returns the image paths in page
// order. pdftoppm's page arguments are 1-based.
func (r *Renderer) Render(ctx context.Context, pdfPath string, start, end int) ([]string, error) {
	outDir, err := os.MkdirTemp(filepath.Dir(pdfPath), "pages-")
	if err != nil {
		return nil, &RenderError{Err: err}
	}

	prefix := filepath.Join(outDir, "page")
	cmd := exec.CommandContext(ctx, r.Bin,
		"-png",
		"-r", strconv.Itoa(r.DPI),
		"-f", strconv.Itoa(start+1),
		"-l", strconv.Itoa(end+1),
		pdfPath,
		prefix,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		log.Error().Err(err).Str("output", string(out)).Msg("pdftoppm failed")
		return nil, &RenderError{Err: fmt.Errorf("pdftoppm: %w", err)}
	}

	images, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, &RenderError{Err: err}
	}
	// pdftoppm zero-pads page numbers per run, so lexical order is
	// page order
	sort.Strings(images)

	if want := end - start + 1; len(images) != want {
		return nil, &RenderError{Err: fmt.Errorf("expected %d images, got %d", want, len(images))}
	}
	return images, nil
}
