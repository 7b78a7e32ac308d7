package pdfrender

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cheggaaa/pb/v3"

	"github.com/book-expert/pdf-watermark-remover/internal/blank"
)

// pageRasterizer renders a single page of an already selected PDF.
type pageRasterizer interface {
	renderPage(ctx context.Context, page int, outPath string) error
	close() error
}

// pageJob is one page for a worker to render.
type pageJob struct {
	outputPath string
	pageIndex  int
}

// pageProcessor renders the pages of one PDF with a pool of workers.
type pageProcessor struct {
	parent     *Renderer
	rasterizer pageRasterizer
	outputDir  string
}

func newPageProcessor(parent *Renderer, rasterizer pageRasterizer, outputDir string) *pageProcessor {
	return &pageProcessor{
		parent:     parent,
		rasterizer: rasterizer,
		outputDir:  outputDir,
	}
}

// PageFileName is the file name used for a rendered page.
func PageFileName(index int) string {
	return fmt.Sprintf("page_%04d.png", index)
}

// processPages renders pages 1..pageCount and returns them in page order.
func (pp *pageProcessor) processPages(
	ctx context.Context,
	pdfPath string,
	pageCount int,
) []Page {
	results := make([]Page, pageCount)
	jobs := make(chan pageJob, pageCount)

	pageProgressBar := pb.New(pageCount).
		SetTemplateString(`  {{ bar . " " "▸" "▹" " " " "}} {{percent .}} {{etime .}}`).
		SetWriter(pp.parent.config.ProgressBarOutput).
		Start()
	defer pageProgressBar.Finish()

	var waitGroup sync.WaitGroup

	for range min(pp.parent.config.Workers, pageCount) {
		waitGroup.Add(1)

		go pp.pageWorker(ctx, &waitGroup, jobs, results, pageProgressBar)
	}

	for i := 1; i <= pageCount; i++ {
		jobs <- pageJob{
			pageIndex:  i,
			outputPath: filepath.Join(pp.outputDir, PageFileName(i)),
		}
	}

	close(jobs)
	waitGroup.Wait()

	failed := 0

	for _, page := range results {
		if page.Err != nil {
			failed++
		}
	}

	if failed > 0 {
		pp.parent.log.Warn("%d of %d pages of %s failed to render", failed, pageCount, filepath.Base(pdfPath))
	}

	return results
}

// pageWorker renders jobs until the channel is drained. Each job writes only
// its own slot of results.
func (pp *pageProcessor) pageWorker(
	ctx context.Context,
	waitGroup *sync.WaitGroup,
	jobs <-chan pageJob,
	results []Page,
	progress *pb.ProgressBar,
) {
	defer waitGroup.Done()

	for job := range jobs {
		page := Page{Err: nil, Path: job.outputPath, Index: job.pageIndex, Blank: false}

		if ctxErr := ctx.Err(); ctxErr != nil {
			page.Err = fmt.Errorf("page %d not rendered: %w", job.pageIndex, ctxErr)
		} else {
			page.Err = pp.processSinglePage(ctx, &page)
		}

		if page.Err != nil {
			pp.parent.log.Warn("Failed to render page %d: %v", job.pageIndex, page.Err)
		}

		results[job.pageIndex-1] = page

		progress.Increment()
	}
}

// processSinglePage renders one page and, when enabled, flags it as blank.
func (pp *pageProcessor) processSinglePage(ctx context.Context, page *Page) error {
	renderErr := pp.rasterizer.renderPage(ctx, page.Index, page.Path)
	if renderErr != nil {
		return fmt.Errorf("rendering failed: %w", renderErr)
	}

	if !pp.parent.config.DetectBlank {
		return nil
	}

	result, detectionErr := blank.AnalyzeFile(
		page.Path,
		pp.parent.config.BlankFuzzPercent,
		pp.parent.config.BlankNonWhiteThreshold,
	)
	if detectionErr != nil {
		// The page was rendered; only the blank check is lost.
		pp.parent.log.Warn("Blank detection failed for %s: %v", filepath.Base(page.Path), detectionErr)

		return nil
	}

	page.Blank = result.Blank
	if page.Blank {
		pp.parent.log.Info("Page %d is blank", page.Index)
	}

	return nil
}
