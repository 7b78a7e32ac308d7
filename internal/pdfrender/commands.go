package pdfrender

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	pdfInfoCommand     = "pdfinfo"
	ghostscriptCommand = "gs"
)

// CommandExecutor runs external commands. Tests replace it with a fake.
type CommandExecutor interface {
	// Run executes a command and returns its standard output.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	// RunCombined executes a command and returns its combined standard output and
	// standard error.
	RunCombined(ctx context.Context, name string, args ...string) ([]byte, error)
}

// defaultExecutor implements CommandExecutor with os/exec.
type defaultExecutor struct{}

// Run executes a command and returns its standard output.
func (executor *defaultExecutor) Run(
	ctx context.Context,
	name string,
	args ...string,
) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// RunCombined executes a command and returns stdout and stderr together.
func (executor *defaultExecutor) RunCombined(
	ctx context.Context,
	name string,
	args ...string,
) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// PageCount returns the number of pages in a PDF. It asks pdfinfo first and
// falls back to parsing the file directly when pdfinfo is missing or fails.
func (renderer *Renderer) PageCount(ctx context.Context, pdfPath string) (int, error) {
	if pdfPath == "" {
		return 0, ErrPDFPathRequired
	}

	pageCount, pdfInfoErr := renderer.pdfInfoPageCount(ctx, pdfPath)
	if pdfInfoErr == nil {
		return pageCount, nil
	}

	renderer.log.Warn("pdfinfo could not count pages, parsing %s directly: %v", pdfPath, pdfInfoErr)

	pageCount, parseErr := parsedPageCount(pdfPath)
	if parseErr != nil {
		return 0, errors.Join(pdfInfoErr, parseErr)
	}

	return pageCount, nil
}

// pdfInfoPageCount runs pdfinfo and reads its "Pages:" line.
func (renderer *Renderer) pdfInfoPageCount(ctx context.Context, pdfPath string) (int, error) {
	outputBytes, execErr := renderer.executor.Run(ctx, pdfInfoCommand, pdfPath)
	if execErr != nil {
		return 0, fmt.Errorf(
			"pdfinfo execution failed: %w. Output: %s",
			execErr,
			string(outputBytes),
		)
	}

	return parsePdfInfoOutput(string(outputBytes))
}

// parsePdfInfoOutput scans pdfinfo output for the page count.
func parsePdfInfoOutput(output string) (int, error) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "Pages:") {
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				pageCount, convErr := strconv.Atoi(parts[1])
				if convErr == nil {
					return pageCount, nil
				}
			}
		}
	}

	return 0, errors.New("could not parse 'Pages:' line from pdfinfo output")
}

// parsedPageCount opens the PDF with the pure Go reader.
func parsedPageCount(pdfPath string) (int, error) {
	file, reader, openErr := pdf.Open(pdfPath)
	if openErr != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", pdfPath, openErr)
	}

	defer func() {
		_ = file.Close()
	}()

	return reader.NumPage(), nil
}

// ghostscriptRasterizer renders pages by running Ghostscript once per page.
type ghostscriptRasterizer struct {
	executor CommandExecutor
	pdfPath  string
	dpi      int
}

func (raster *ghostscriptRasterizer) renderPage(
	ctx context.Context,
	page int,
	outPath string,
) error {
	if page <= 0 {
		return errors.New("page number must be positive")
	}

	args := buildGhostscriptArgs(raster.dpi, page, outPath, raster.pdfPath)

	outputBytes, execErr := raster.executor.RunCombined(ctx, ghostscriptCommand, args...)
	if execErr != nil {
		return fmt.Errorf(
			"ghostscript execution failed: %w. Output: %s",
			execErr,
			string(outputBytes),
		)
	}

	return nil
}

func (raster *ghostscriptRasterizer) close() error {
	return nil
}

// buildGhostscriptArgs constructs the Ghostscript arguments for one page.
func buildGhostscriptArgs(dpi, page int, outPath, pdfPath string) []string {
	return []string{
		"-q", "-dNOPAUSE", "-dBATCH",
		"-sDEVICE=png16m",
		fmt.Sprintf("-r%d", dpi),
		fmt.Sprintf("-dFirstPage=%d", page),
		fmt.Sprintf("-dLastPage=%d", page),
		"-o", outPath,
		"-dTextAlphaBits=4",
		"-dGraphicsAlphaBits=4",
		"-dDownScaleFactor=1",
		"-dPDFFitPage",
		pdfPath,
	}
}
