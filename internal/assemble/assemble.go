// Package assemble builds a PDF with one page per image.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/book-expert/logger"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var (
	// ErrNoImages is returned when the image list is empty.
	ErrNoImages = errors.New("no images to assemble")
	// ErrNoValidImages is returned when none of the images could be read.
	ErrNoValidImages = errors.New("no valid images to assemble")
	// ErrOutputPathRequired is returned when no output PDF path is given.
	ErrOutputPathRequired = errors.New("output pdf path is required")
)

const (
	defaultQuality = 95
	maxQuality     = 100
	defaultDPI     = 300
	pointsPerInch  = 72
	defaultDirMode = 0o750
)

// disableConfigDir keeps pdfcpu from writing a configuration directory under
// the user's home.
var disableConfigDir sync.Once

// Stats describes an assembled PDF.
type Stats struct {
	Output    string
	Skipped   []string
	Pages     int
	SizeBytes int64
}

// Assembler converts images to JPEG at a fixed quality and imports them into a
// new PDF. Each page measures the image's pixel size at dpi, so pages rendered
// at that resolution keep their original physical size.
type Assembler struct {
	log     *logger.Logger
	quality int
	dpi     int
}

// stagedImage is a converted JPEG and its pixel size.
type stagedImage struct {
	path string
	size image.Point
}

// New creates an Assembler. Quality outside 1..100 falls back to 95 and a
// non-positive dpi to 300.
func New(quality, dpi int, log *logger.Logger) *Assembler {
	if quality <= 0 || quality > maxQuality {
		quality = defaultQuality
	}

	if dpi <= 0 {
		dpi = defaultDPI
	}

	disableConfigDir.Do(api.DisableConfigDir)

	return &Assembler{log: log, quality: quality, dpi: dpi}
}

// Assemble writes images, in the order given, to outPDF. Missing or
// undecodable images are skipped and listed in Stats.Skipped.
func (assembler *Assembler) Assemble(ctx context.Context, images []string, outPDF string) (Stats, error) {
	if len(images) == 0 {
		return Stats{}, ErrNoImages
	}

	if outPDF == "" {
		return Stats{}, ErrOutputPathRequired
	}

	if mkdirErr := os.MkdirAll(filepath.Dir(outPDF), defaultDirMode); mkdirErr != nil {
		return Stats{}, fmt.Errorf("could not create output directory: %w", mkdirErr)
	}

	stagingDir, tempErr := os.MkdirTemp("", "assemble-*")
	if tempErr != nil {
		return Stats{}, fmt.Errorf("could not create staging directory: %w", tempErr)
	}

	defer func() {
		if removeErr := os.RemoveAll(stagingDir); removeErr != nil {
			assembler.log.Warn("Could not remove staging directory %s: %v", stagingDir, removeErr)
		}
	}()

	assembler.log.Info("Assembling %d images into %s", len(images), filepath.Base(outPDF))

	staged, skipped, stageErr := assembler.stage(ctx, images, stagingDir)
	if stageErr != nil {
		return Stats{}, stageErr
	}

	if len(staged) == 0 {
		return Stats{Output: "", Skipped: skipped, Pages: 0, SizeBytes: 0}, ErrNoValidImages
	}

	sizeBytes, writeErr := writePDF(staged, outPDF, assembler.dpi)
	if writeErr != nil {
		return Stats{}, writeErr
	}

	assembler.log.Success(
		"PDF created: %s (%d pages, %.2f MB)",
		outPDF,
		len(staged),
		float64(sizeBytes)/bytesPerMB,
	)

	return Stats{
		Output:    outPDF,
		Skipped:   skipped,
		Pages:     len(staged),
		SizeBytes: sizeBytes,
	}, nil
}

// AssembleSorted sorts images by file name before assembling them.
func (assembler *Assembler) AssembleSorted(ctx context.Context, images []string, outPDF string) (Stats, error) {
	sorted := append([]string(nil), images...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return filepath.Base(sorted[i]) < filepath.Base(sorted[j])
	})

	return assembler.Assemble(ctx, sorted, outPDF)
}

// FromFolder assembles every supported image in dir, sorted by name.
func (assembler *Assembler) FromFolder(ctx context.Context, dir, outPDF string) (Stats, error) {
	images, listErr := ListImages(dir)
	if listErr != nil {
		return Stats{}, listErr
	}

	if len(images) == 0 {
		return Stats{}, fmt.Errorf("%w in %s", ErrNoImages, dir)
	}

	return assembler.AssembleSorted(ctx, images, outPDF)
}

// stage converts each readable image to a numbered JPEG in stagingDir.
func (assembler *Assembler) stage(
	ctx context.Context,
	images []string,
	stagingDir string,
) ([]stagedImage, []string, error) {
	staged := make([]stagedImage, 0, len(images))

	var skipped []string

	for i, imagePath := range images {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}

		if _, statErr := os.Stat(imagePath); statErr != nil {
			assembler.log.Warn("Image not found, skipping: %s", imagePath)

			skipped = append(skipped, imagePath)

			continue
		}

		target := filepath.Join(stagingDir, fmt.Sprintf("%05d.jpg", i+1))
		size, convertErr := convertToJPEG(imagePath, target, assembler.quality)
		if convertErr != nil {
			assembler.log.Warn("Could not convert %s, skipping: %v", filepath.Base(imagePath), convertErr)

			skipped = append(skipped, imagePath)

			continue
		}

		staged = append(staged, stagedImage{path: target, size: size})
	}

	return staged, skipped, nil
}

// writePDF replaces outPDF with a PDF built from the staged JPEGs and
// validates it. Consecutive images of the same size are imported together;
// every later import appends to the file.
func writePDF(staged []stagedImage, outPDF string, dpi int) (int64, error) {
	if removeErr := os.Remove(outPDF); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		return 0, fmt.Errorf("could not replace %s: %w", outPDF, removeErr)
	}

	conf := model.NewDefaultConfiguration()

	for start := 0; start < len(staged); {
		end := start + 1
		for end < len(staged) && staged[end].size == staged[start].size {
			end++
		}

		paths := make([]string, 0, end-start)
		for _, img := range staged[start:end] {
			paths = append(paths, img.path)
		}

		importErr := api.ImportImagesFile(paths, outPDF, pageImport(staged[start].size, dpi), conf)
		if importErr != nil {
			return 0, fmt.Errorf("failed to build %s: %w", outPDF, importErr)
		}

		start = end
	}

	if validateErr := api.ValidateFile(outPDF, conf); validateErr != nil {
		return 0, fmt.Errorf("generated pdf %s is invalid: %w", outPDF, validateErr)
	}

	stat, statErr := os.Stat(outPDF)
	if statErr != nil {
		return 0, fmt.Errorf("could not stat %s: %w", outPDF, statErr)
	}

	return stat.Size(), nil
}

// pageImport sizes the page to size pixels at dpi and scales the image to
// fill it.
func pageImport(size image.Point, dpi int) *pdfcpu.Import {
	imp := pdfcpu.DefaultImportConfig()
	imp.PageDim = &types.Dim{
		Width:  float64(size.X) * pointsPerInch / float64(dpi),
		Height: float64(size.Y) * pointsPerInch / float64(dpi),
	}
	imp.UserDim = true
	imp.Pos = types.Center
	imp.Scale = 1
	imp.ScaleAbs = false

	return imp
}
