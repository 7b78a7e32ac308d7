package pdfrender

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"sync"

	"github.com/gen2brain/go-fitz"
)

// muPDFRasterizer renders pages in-process with MuPDF. A fitz document is not
// safe for concurrent use, so renders are serialized.
type muPDFRasterizer struct {
	doc *fitz.Document
	mu  sync.Mutex
	dpi float64
}

func openMuPDFRasterizer(pdfPath string, dpi int) (*muPDFRasterizer, error) {
	doc, openErr := fitz.New(pdfPath)
	if openErr != nil {
		return nil, fmt.Errorf("unable to open PDF document %s: %w", pdfPath, openErr)
	}

	return &muPDFRasterizer{doc: doc, dpi: float64(dpi)}, nil
}

func (raster *muPDFRasterizer) renderPage(ctx context.Context, page int, outPath string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	raster.mu.Lock()
	img, renderErr := raster.doc.ImageDPI(page-1, raster.dpi)
	raster.mu.Unlock()

	if renderErr != nil {
		return fmt.Errorf("unable to render page %d: %w", page, renderErr)
	}

	file, createErr := os.Create(outPath)
	if createErr != nil {
		return fmt.Errorf("failed to create %s: %w", outPath, createErr)
	}

	encodeErr := png.Encode(file, img)
	closeErr := file.Close()

	if encodeErr != nil {
		return fmt.Errorf("failed to encode page %d: %w", page, encodeErr)
	}

	return closeErr
}

func (raster *muPDFRasterizer) close() error {
	return raster.doc.Close()
}
