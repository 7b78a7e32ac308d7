// Package pipeline sequences rasterizing, cleaning and reassembly for one PDF
// or a folder of PDFs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/cheggaaa/pb/v3"
	"github.com/google/uuid"

	"github.com/book-expert/pdf-watermark-remover/internal/assemble"
	"github.com/book-expert/pdf-watermark-remover/internal/model"
	"github.com/book-expert/pdf-watermark-remover/internal/pdfrender"
	"github.com/book-expert/pdf-watermark-remover/internal/remover"
	"github.com/book-expert/pdf-watermark-remover/internal/report"
)

var (
	// ErrInvalidInputPath is returned when the input is neither a PDF file
	// nor a directory.
	ErrInvalidInputPath = errors.New("input is neither a file nor a directory")
	// ErrNoPDFs is returned when a folder holds no PDF files.
	ErrNoPDFs = errors.New("no pdf files found")
	// ErrNoPagesRendered is returned when rasterizing produced no usable page.
	ErrNoPagesRendered = errors.New("no pages rendered")
	// ErrNoPagesCleaned is returned when every submitted page failed.
	ErrNoPagesCleaned = errors.New("no pages cleaned")
	// ErrMissingDependency is returned when New is given an incomplete set of
	// stages.
	ErrMissingDependency = errors.New("missing pipeline dependency")
)

const (
	pdfExtension   = ".pdf"
	pagesDirName   = "pages"
	cleanedDirName = "cleaned"
	defaultPrefix  = "NoWatermark_"
	defaultDirMode = 0o750
	bytesPerMB     = 1024 * 1024
)

// Rasterizer renders the pages of a PDF.
type Rasterizer interface {
	Inspect(ctx context.Context, pdfPath string) (pdfrender.Info, error)
	RenderPages(ctx context.Context, pdfPath, outDir string) ([]pdfrender.Page, error)
}

// Cleaner submits page images to the removal service.
type Cleaner interface {
	ProcessAll(ctx context.Context, imagePaths []string) []remover.Result
	Close() error
}

// CleanerFactory opens a Cleaner that downloads into downloadDir.
type CleanerFactory func(ctx context.Context, downloadDir string) (Cleaner, error)

// Assembler builds the output PDF from ordered images.
type Assembler interface {
	Assemble(ctx context.Context, images []string, outPDF string) (assemble.Stats, error)
}

// Recorder stores document results.
type Recorder interface {
	RecordDocument(ctx context.Context, result model.DocumentResult) error
	Succeeded(ctx context.Context, inputPath string, size int64, modTime time.Time) (bool, error)
}

// Notifier announces finished documents.
type Notifier interface {
	Notify(ctx context.Context, result model.DocumentResult) error
}

// Dependencies are the stages a Coordinator drives. Recorder and Notifier
// are optional.
type Dependencies struct {
	Rasterizer Rasterizer
	Cleaners   CleanerFactory
	Assembler  Assembler
	Recorder   Recorder
	Notifier   Notifier
}

// Options controls the coordinator.
type Options struct {
	// ProgressBarOutput receives the documents progress bar. Defaults to
	// os.Stdout.
	ProgressBarOutput io.Writer
	// OutputDir receives the cleaned PDFs and run reports.
	OutputDir string
	// WorkDir is the parent of per-document temporary directories. Empty
	// uses the system temporary directory.
	WorkDir string
	// OutputPrefix is prepended to the input stem. Defaults to "NoWatermark_".
	OutputPrefix string
	// DocumentDelay is the pause between documents of a folder.
	DocumentDelay time.Duration
	// PassThroughBlank keeps blank pages without submitting them.
	PassThroughBlank bool
	// KeepFailedPages keeps the original raster of pages that failed to clean.
	KeepFailedPages bool
	// SkipProcessed skips documents the recorder has seen succeed.
	SkipProcessed bool
	// WriteReport writes report_<runID>.yaml to OutputDir after Process.
	WriteReport bool
}

// Batch is the outcome of Process or ProcessFolder.
type Batch struct {
	ReportPath string
	Documents  []model.DocumentResult
	Summary    model.Summary
}

// Coordinator runs documents through the stages.
type Coordinator struct {
	deps  Dependencies
	log   *logger.Logger
	runID string
	opts  Options
}

// New creates a Coordinator with a fresh run ID.
func New(deps Dependencies, opts Options, log *logger.Logger) (*Coordinator, error) {
	if deps.Rasterizer == nil || deps.Cleaners == nil || deps.Assembler == nil {
		return nil, ErrMissingDependency
	}

	if opts.OutputPrefix == "" {
		opts.OutputPrefix = defaultPrefix
	}

	if opts.ProgressBarOutput == nil {
		opts.ProgressBarOutput = os.Stdout
	}

	return &Coordinator{
		deps:  deps,
		log:   log,
		runID: uuid.New().String(),
		opts:  opts,
	}, nil
}

// RunID identifies this coordinator's run in history, reports and events.
func (coordinator *Coordinator) RunID() string {
	return coordinator.runID
}

// OutputPath is where the cleaned PDF for inputPath is written. A non-empty
// name replaces the prefixed input stem.
func (coordinator *Coordinator) OutputPath(inputPath, name string) string {
	if name == "" {
		stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
		name = coordinator.opts.OutputPrefix + stem
	}

	if !strings.EqualFold(filepath.Ext(name), pdfExtension) {
		name += pdfExtension
	}

	return filepath.Join(coordinator.opts.OutputDir, name)
}

// Process handles a PDF file or every PDF in a directory.
func (coordinator *Coordinator) Process(ctx context.Context, inputPath, outputName string) (Batch, error) {
	stat, statErr := os.Stat(inputPath)
	if statErr != nil {
		return Batch{}, fmt.Errorf("%w: %s: %w", ErrInvalidInputPath, inputPath, statErr)
	}

	switch {
	case stat.IsDir():
		return coordinator.ProcessFolder(ctx, inputPath)
	case stat.Mode().IsRegular():
		started := time.Now()
		result, processErr := coordinator.ProcessDocument(ctx, inputPath, outputName)
		batch := coordinator.finishBatch(started, []model.DocumentResult{result}, 0)

		return batch, processErr
	default:
		return Batch{}, fmt.Errorf("%w: %s", ErrInvalidInputPath, inputPath)
	}
}

// ProcessFolder processes the PDFs of dir in name order with a pause between
// documents. A failed document does not stop the batch.
func (coordinator *Coordinator) ProcessFolder(ctx context.Context, dir string) (Batch, error) {
	pdfPaths, discoverErr := pdfrender.DiscoverPDFs(dir)
	if discoverErr != nil {
		return Batch{}, discoverErr
	}

	if len(pdfPaths) == 0 {
		return Batch{}, fmt.Errorf("%w in %s", ErrNoPDFs, dir)
	}

	coordinator.log.Info("Found %d PDF files in %s", len(pdfPaths), dir)

	started := time.Now()
	results := make([]model.DocumentResult, 0, len(pdfPaths))
	skipped := 0

	documentProgressBar := pb.New(len(pdfPaths)).
		SetTemplateString(`{{ bar . " " "━" "━" " " " "}} {{percent .}} {{rtime .}}`).
		SetWriter(coordinator.opts.ProgressBarOutput).
		Start()

	var loopErr error

	for i, pdfPath := range pdfPaths {
		if ctxErr := ctx.Err(); ctxErr != nil {
			loopErr = ctxErr

			break
		}

		documentProgressBar.Increment()

		if coordinator.alreadyProcessed(ctx, pdfPath) {
			coordinator.log.Info("Skipping %s: already cleaned", filepath.Base(pdfPath))

			skipped++

			continue
		}

		coordinator.log.Info("Document %d/%d: %s", i+1, len(pdfPaths), filepath.Base(pdfPath))

		result, processErr := coordinator.ProcessDocument(ctx, pdfPath, "")
		if processErr != nil {
			coordinator.log.Error("Failed to process %s: %v", filepath.Base(pdfPath), processErr)
		}

		results = append(results, result)

		if i < len(pdfPaths)-1 {
			coordinator.log.Info("Waiting %s before the next document", coordinator.opts.DocumentDelay)

			if sleepErr := sleep(ctx, coordinator.opts.DocumentDelay); sleepErr != nil {
				loopErr = sleepErr

				break
			}
		}
	}

	documentProgressBar.Finish()

	return coordinator.finishBatch(started, results, skipped), loopErr
}

// ProcessDocument cleans one PDF and writes <output>/<name>.pdf. The returned
// result is complete even when an error is returned.
func (coordinator *Coordinator) ProcessDocument(
	ctx context.Context,
	pdfPath, outputName string,
) (model.DocumentResult, error) {
	result := model.DocumentResult{
		StartedAt:    time.Now(),
		InputModTime: time.Time{},
		RunID:        coordinator.runID,
		InputPath:    pdfPath,
	}

	processErr := coordinator.processDocument(ctx, &result, outputName)
	if processErr != nil {
		result.Success = false
		result.Error = processErr.Error()
		result.OutputPath = ""
	}

	result.CountPages()
	result.Duration = time.Since(result.StartedAt)

	coordinator.logDocument(result)
	coordinator.record(ctx, result)

	return result, processErr
}

func (coordinator *Coordinator) processDocument(
	ctx context.Context,
	result *model.DocumentResult,
	outputName string,
) error {
	absPath, absErr := filepath.Abs(result.InputPath)
	if absErr != nil {
		return fmt.Errorf("could not resolve %s: %w", result.InputPath, absErr)
	}

	result.InputPath = absPath

	stat, statErr := os.Stat(absPath)
	if statErr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInputPath, statErr)
	}

	result.OriginalBytes = stat.Size()
	result.InputModTime = stat.ModTime()

	workDir, workErr := coordinator.makeWorkDir()
	if workErr != nil {
		return workErr
	}

	defer func() {
		if removeErr := os.RemoveAll(workDir); removeErr != nil {
			coordinator.log.Warn("Could not remove work directory %s: %v", workDir, removeErr)
		}
	}()

	info, inspectErr := coordinator.deps.Rasterizer.Inspect(ctx, absPath)
	if inspectErr != nil {
		return fmt.Errorf("could not inspect %s: %w", filepath.Base(absPath), inspectErr)
	}

	coordinator.log.Info(
		"%s: %.2f MB, %d pages, %s backend",
		info.FileName,
		info.SizeMB,
		info.Pages,
		info.Backend,
	)

	pages, renderErr := coordinator.deps.Rasterizer.RenderPages(ctx, absPath, filepath.Join(workDir, pagesDirName))
	if renderErr != nil {
		return fmt.Errorf("could not render %s: %w", filepath.Base(absPath), renderErr)
	}

	pageResults, cleanErr := coordinator.cleanPages(ctx, pages, filepath.Join(workDir, cleanedDirName))
	result.Pages = pageResults

	if cleanErr != nil {
		return cleanErr
	}

	images := outputImages(pageResults)
	if len(images) == 0 {
		return ErrNoPagesCleaned
	}

	outPath := coordinator.OutputPath(absPath, outputName)

	stats, assembleErr := coordinator.deps.Assembler.Assemble(ctx, images, outPath)
	if assembleErr != nil {
		return fmt.Errorf("could not assemble %s: %w", filepath.Base(outPath), assembleErr)
	}

	result.OutputPath = stats.Output
	result.FinalBytes = stats.SizeBytes
	result.Success = true

	return nil
}

// cleanPages submits the rendered pages and returns one result per page in
// page order.
func (coordinator *Coordinator) cleanPages(
	ctx context.Context,
	pages []pdfrender.Page,
	downloadDir string,
) ([]model.PageResult, error) {
	pageResults := make([]model.PageResult, len(pages))

	var (
		submit      []string
		submitSlots []int
	)

	for i, page := range pages {
		pageResults[i] = model.PageResult{
			Status:   model.PageStatusFailed,
			Source:   page.Path,
			Output:   "",
			Error:    "",
			Index:    page.Index,
			Duration: 0,
		}

		switch {
		case page.Err != nil:
			pageResults[i].Error = page.Err.Error()
		case page.Blank && coordinator.opts.PassThroughBlank:
			pageResults[i].Status = model.PageStatusBlank
			pageResults[i].Output = page.Path
		default:
			submit = append(submit, page.Path)
			submitSlots = append(submitSlots, i)
		}
	}

	if len(submit) == 0 {
		if len(outputImages(pageResults)) == 0 {
			return pageResults, ErrNoPagesRendered
		}

		return pageResults, nil
	}

	cleaner, openErr := coordinator.deps.Cleaners(ctx, downloadDir)
	if openErr != nil {
		return pageResults, fmt.Errorf("could not open browser session: %w", openErr)
	}

	defer func() {
		if closeErr := cleaner.Close(); closeErr != nil {
			coordinator.log.Warn("Could not close browser session: %v", closeErr)
		}
	}()

	cleaned := 0

	for i, cleanResult := range cleaner.ProcessAll(ctx, submit) {
		slot := submitSlots[i]
		pageResults[slot].Duration = cleanResult.Duration

		switch {
		case cleanResult.Err == nil:
			pageResults[slot].Status = model.PageStatusCleaned
			pageResults[slot].Output = cleanResult.Output
			cleaned++
		case coordinator.opts.KeepFailedPages:
			pageResults[slot].Status = model.PageStatusKept
			pageResults[slot].Output = pageResults[slot].Source
			pageResults[slot].Error = cleanResult.Err.Error()
		default:
			pageResults[slot].Error = cleanResult.Err.Error()
		}
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return pageResults, ctxErr
	}

	if cleaned == 0 {
		return pageResults, ErrNoPagesCleaned
	}

	return pageResults, nil
}

func (coordinator *Coordinator) makeWorkDir() (string, error) {
	if coordinator.opts.WorkDir != "" {
		if mkdirErr := os.MkdirAll(coordinator.opts.WorkDir, defaultDirMode); mkdirErr != nil {
			return "", fmt.Errorf("could not create work directory: %w", mkdirErr)
		}
	}

	workDir, tempErr := os.MkdirTemp(coordinator.opts.WorkDir, "wmremover-*")
	if tempErr != nil {
		return "", fmt.Errorf("could not create work directory: %w", tempErr)
	}

	return workDir, nil
}

func (coordinator *Coordinator) alreadyProcessed(ctx context.Context, pdfPath string) bool {
	if !coordinator.opts.SkipProcessed || coordinator.deps.Recorder == nil {
		return false
	}

	absPath, absErr := filepath.Abs(pdfPath)
	if absErr != nil {
		return false
	}

	stat, statErr := os.Stat(absPath)
	if statErr != nil {
		return false
	}

	done, queryErr := coordinator.deps.Recorder.Succeeded(ctx, absPath, stat.Size(), stat.ModTime())
	if queryErr != nil {
		coordinator.log.Warn("Could not check history for %s: %v", filepath.Base(pdfPath), queryErr)

		return false
	}

	return done
}

func (coordinator *Coordinator) record(ctx context.Context, result model.DocumentResult) {
	if coordinator.deps.Recorder != nil {
		if recordErr := coordinator.deps.Recorder.RecordDocument(ctx, result); recordErr != nil {
			coordinator.log.Warn("Could not record history for %s: %v", filepath.Base(result.InputPath), recordErr)
		}
	}

	if coordinator.deps.Notifier != nil {
		if notifyErr := coordinator.deps.Notifier.Notify(ctx, result); notifyErr != nil {
			coordinator.log.Warn("Could not publish event for %s: %v", filepath.Base(result.InputPath), notifyErr)
		}
	}
}

func (coordinator *Coordinator) logDocument(result model.DocumentResult) {
	name := filepath.Base(result.InputPath)

	if !result.Success {
		coordinator.log.Error("%s failed after %s: %s", name, result.Duration.Round(time.Second), result.Error)

		return
	}

	coordinator.log.Success(
		"%s cleaned in %s: %d/%d pages (%d blank, %d kept, %d failed)",
		name,
		result.Duration.Round(time.Second),
		result.CleanedPages,
		result.TotalPages,
		result.BlankPages,
		result.KeptPages,
		result.FailedPages,
	)
	coordinator.log.Info(
		"Size: %.2f MB -> %.2f MB (ratio %.2f)",
		float64(result.OriginalBytes)/bytesPerMB,
		float64(result.FinalBytes)/bytesPerMB,
		result.SizeRatio(),
	)
}

func (coordinator *Coordinator) finishBatch(started time.Time, results []model.DocumentResult, skipped int) Batch {
	summary := model.Summarize(coordinator.runID, started, results, skipped)

	coordinator.log.Info(
		"Batch summary: %d succeeded, %d failed, %d skipped (%.1f%% success)",
		summary.Succeeded,
		summary.Failed,
		summary.Skipped,
		summary.SuccessRate,
	)
	coordinator.log.Info(
		"Total time %s, average %s per document",
		summary.TotalDuration.Round(time.Second),
		summary.AverageDuration.Round(time.Second),
	)

	batch := Batch{ReportPath: "", Documents: results, Summary: summary}

	if !coordinator.opts.WriteReport {
		return batch
	}

	reportPath, reportErr := report.Write(coordinator.opts.OutputDir, report.Run{Summary: summary, Documents: results})
	if reportErr != nil {
		coordinator.log.Warn("Could not write run report: %v", reportErr)

		return batch
	}

	coordinator.log.Info("Run report written to %s", reportPath)
	batch.ReportPath = reportPath

	return batch
}

// outputImages lists, in page order, the images that go into the PDF.
func outputImages(pages []model.PageResult) []string {
	var images []string

	for _, page := range pages {
		if page.Status.InOutput() && page.Output != "" {
			images = append(images, page.Output)
		}
	}

	return images
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
