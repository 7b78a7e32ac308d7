// Package pdfrender rasterizes the pages of a PDF into ordered PNG images.
package pdfrender

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/book-expert/logger"
)

var (
	// ErrPDFPathRequired is returned when no PDF path is given.
	ErrPDFPathRequired = errors.New("pdf path cannot be empty")
	// ErrOutputPathRequired is returned when no output directory is given.
	ErrOutputPathRequired = errors.New("output path is required")
	// ErrPDFZeroOrNegativePages is returned when a PDF has invalid page count.
	ErrPDFZeroOrNegativePages = errors.New(
		"pdf has zero or a negative number of pages",
	)
	// ErrUnknownBackend is returned for a backend name that is not supported.
	ErrUnknownBackend = errors.New("unknown render backend")
)

// Supported rasterization backends.
const (
	BackendGhostscript = "ghostscript"
	BackendMuPDF       = "mupdf"
)

const (
	defaultDPI                    = 300
	defaultBlankFuzzPercent       = 5
	defaultBlankNonWhiteThreshold = 0.005
	bytesPerMB                    = 1024 * 1024
	defaultDirMode                = 0o750
)

// Options holds all configurable parameters for a Renderer.
type Options struct {
	// ProgressBarOutput receives the per-document page progress bar.
	// Defaults to os.Stdout; io.Discard silences it.
	ProgressBarOutput io.Writer
	// Backend selects the rasterizer: "ghostscript" (default) or "mupdf".
	Backend string
	// DPI is the render resolution. Defaults to 300.
	DPI int
	// Workers is the number of pages rendered concurrently. Defaults to the
	// number of CPUs.
	Workers int
	// DetectBlank enables the blank page check after each render.
	DetectBlank bool
	// BlankFuzzPercent is the tolerated deviation from pure white. Defaults to 5.
	BlankFuzzPercent int
	// BlankNonWhiteThreshold is the non-white pixel ratio below which a page is
	// blank. Defaults to 0.005.
	BlankNonWhiteThreshold float64
}

// Page is one rendered page. Err is set when the page could not be rendered.
type Page struct {
	Err   error
	Path  string
	Index int
	Blank bool
}

// Info describes a PDF before it is processed.
type Info struct {
	FileName  string
	Backend   string
	SizeBytes int64
	SizeMB    float64
	Pages     int
}

// Renderer turns PDF pages into PNG files.
type Renderer struct {
	executor CommandExecutor
	log      *logger.Logger
	config   Options
}

// NewRenderer creates a Renderer, filling zero-value options with defaults.
func NewRenderer(opts *Options, log *logger.Logger) *Renderer {
	applyDefaultOptions(opts)

	return &Renderer{
		config:   *opts,
		log:      log,
		executor: &defaultExecutor{},
	}
}

// applyDefaultOptions fills zero-value fields in Options with defaults.
func applyDefaultOptions(opts *Options) {
	opts.DPI = defaultIntNonPositive(opts.DPI, defaultDPI)
	opts.Workers = defaultIntNonPositive(opts.Workers, runtime.NumCPU())
	opts.BlankFuzzPercent = defaultIntNonPositive(
		opts.BlankFuzzPercent,
		defaultBlankFuzzPercent,
	)
	opts.BlankNonWhiteThreshold = defaultFloatNonPositive(
		opts.BlankNonWhiteThreshold,
		defaultBlankNonWhiteThreshold,
	)

	if opts.Backend == "" {
		opts.Backend = BackendGhostscript
	}

	if opts.ProgressBarOutput == nil {
		opts.ProgressBarOutput = os.Stdout
	}
}

func defaultIntNonPositive(v, def int) int {
	if v <= 0 {
		return def
	}

	return v
}

func defaultFloatNonPositive(v, def float64) float64 {
	if v <= 0 {
		return def
	}

	return v
}

// Inspect reports the file name, size and page count of a PDF.
func (renderer *Renderer) Inspect(ctx context.Context, pdfPath string) (Info, error) {
	stat, statErr := os.Stat(pdfPath)
	if statErr != nil {
		return Info{}, fmt.Errorf("could not stat %s: %w", pdfPath, statErr)
	}

	pageCount, pageCountErr := renderer.PageCount(ctx, pdfPath)
	if pageCountErr != nil {
		return Info{}, fmt.Errorf("could not get page count: %w", pageCountErr)
	}

	return Info{
		FileName:  filepath.Base(pdfPath),
		Backend:   renderer.config.Backend,
		SizeBytes: stat.Size(),
		SizeMB:    float64(stat.Size()) / bytesPerMB,
		Pages:     pageCount,
	}, nil
}

// RenderPages renders every page of pdfPath into outDir as page_%04d.png and
// returns the pages ordered by index. Pages that fail to render are returned
// with Err set; the call only fails when nothing can be attempted.
func (renderer *Renderer) RenderPages(
	ctx context.Context,
	pdfPath, outDir string,
) ([]Page, error) {
	if outDir == "" {
		return nil, ErrOutputPathRequired
	}

	pageCount, pageCountErr := renderer.PageCount(ctx, pdfPath)
	if pageCountErr != nil {
		return nil, fmt.Errorf("could not get page count: %w", pageCountErr)
	}

	if pageCount <= 0 {
		return nil, ErrPDFZeroOrNegativePages
	}

	mkdirErr := os.MkdirAll(outDir, defaultDirMode)
	if mkdirErr != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", outDir, mkdirErr)
	}

	rasterizer, openErr := renderer.openRasterizer(pdfPath)
	if openErr != nil {
		return nil, openErr
	}

	defer func() {
		if closeErr := rasterizer.close(); closeErr != nil {
			renderer.log.Warn("Failed to close rasterizer for %s: %v", filepath.Base(pdfPath), closeErr)
		}
	}()

	renderer.log.Info(
		"Rendering %d pages of %s at %d DPI with %s",
		pageCount,
		filepath.Base(pdfPath),
		renderer.config.DPI,
		renderer.config.Backend,
	)

	pageProc := newPageProcessor(renderer, rasterizer, outDir)

	return pageProc.processPages(ctx, pdfPath, pageCount), nil
}

// openRasterizer returns the backend configured for this renderer.
func (renderer *Renderer) openRasterizer(pdfPath string) (pageRasterizer, error) {
	switch renderer.config.Backend {
	case BackendGhostscript:
		return &ghostscriptRasterizer{
			executor: renderer.executor,
			pdfPath:  pdfPath,
			dpi:      renderer.config.DPI,
		}, nil
	case BackendMuPDF:
		return openMuPDFRasterizer(pdfPath, renderer.config.DPI)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, renderer.config.Backend)
	}
}
