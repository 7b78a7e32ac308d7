package assemble_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/pdf-watermark-remover/internal/assemble"
)

func newTestAssembler(t *testing.T) *assemble.Assembler {
	t.Helper()

	log, err := logger.New(t.TempDir(), "t.log")
	require.NoError(t, err)

	return assemble.New(90, 300, log)
}

func solid(width, height int, fill color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, fill)
		}
	}

	return img
}

func writePNG(t *testing.T, path string, img image.Image) string {
	t.Helper()

	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, errors.Join(png.Encode(file, img), file.Close()))

	return path
}

func writeJPEG(t *testing.T, path string, img image.Image) string {
	t.Helper()

	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, errors.Join(jpeg.Encode(file, img, nil), file.Close()))

	return path
}

func TestAssemble_BuildsOnePagePerImage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	images := []string{
		writePNG(t, filepath.Join(dir, "b.png"), solid(600, 300, color.NRGBA{R: 200, G: 10, B: 10, A: 255})),
		writePNG(t, filepath.Join(dir, "a.png"), solid(300, 600, color.NRGBA{R: 0, G: 0, B: 0, A: 0})),
		writeJPEG(t, filepath.Join(dir, "c.jpg"), solid(150, 150, color.Gray{Y: 128})),
	}

	outPDF := filepath.Join(t.TempDir(), "out", "NoWatermark_doc.pdf")

	stats, err := newTestAssembler(t).Assemble(context.Background(), images, outPDF)
	require.NoError(t, err)
	assert.Equal(t, outPDF, stats.Output)
	assert.Equal(t, 3, stats.Pages)
	assert.Empty(t, stats.Skipped)
	assert.Positive(t, stats.SizeBytes)

	pages, err := api.PageCountFile(outPDF)
	require.NoError(t, err)
	assert.Equal(t, 3, pages)

	// 300 DPI: 600 px is two inches, 144 points.
	dims, err := api.PageDimsFile(outPDF)
	require.NoError(t, err)
	require.Len(t, dims, 3)
	assertDim(t, 144, 72, dims[0])
	assertDim(t, 72, 144, dims[1])
	assertDim(t, 36, 36, dims[2])
}

func assertDim(t *testing.T, width, height float64, dim types.Dim) {
	t.Helper()

	assert.InDelta(t, width, dim.Width, 0.01)
	assert.InDelta(t, height, dim.Height, 0.01)
}

func TestAssemble_PageSizeFollowsDPI(t *testing.T) {
	t.Parallel()

	log, err := logger.New(t.TempDir(), "t.log")
	require.NoError(t, err)

	dir := t.TempDir()
	page := writePNG(t, filepath.Join(dir, "p.png"), solid(300, 150, color.White))

	testCases := []struct {
		name   string
		dpi    int
		width  float64
		height float64
	}{
		{name: "Render resolution", dpi: 150, width: 144, height: 72},
		{name: "One pixel per point", dpi: 72, width: 300, height: 150},
		{name: "Unset falls back to 300", dpi: 0, width: 72, height: 36},
	}

	for _, tc := range testCases {
		outPDF := filepath.Join(t.TempDir(), "out.pdf")

		assembler := assemble.New(90, tc.dpi, log)

		_, assembleErr := assembler.Assemble(context.Background(), []string{page, page}, outPDF)
		require.NoError(t, assembleErr, tc.name)

		dims, dimsErr := api.PageDimsFile(outPDF)
		require.NoError(t, dimsErr, tc.name)
		require.Len(t, dims, 2, tc.name)

		for _, dim := range dims {
			assertDim(t, tc.width, tc.height, dim)
		}
	}
}

func TestAssemble_ReplacesExistingOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	page := writePNG(t, filepath.Join(dir, "p.png"), solid(10, 10, color.Black))
	outPDF := filepath.Join(dir, "out.pdf")
	assembler := newTestAssembler(t)

	_, err := assembler.Assemble(context.Background(), []string{page, page}, outPDF)
	require.NoError(t, err)

	_, err = assembler.Assemble(context.Background(), []string{page}, outPDF)
	require.NoError(t, err)

	pages, err := api.PageCountFile(outPDF)
	require.NoError(t, err)
	assert.Equal(t, 1, pages)
}

func TestAssemble_SkipsUnreadableImages(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	corrupt := filepath.Join(dir, "corrupt.png")
	require.NoError(t, os.WriteFile(corrupt, []byte("not an image"), 0o600))

	missing := filepath.Join(dir, "missing.png")
	good := writePNG(t, filepath.Join(dir, "good.png"), solid(10, 10, color.Black))

	stats, err := newTestAssembler(t).Assemble(
		context.Background(),
		[]string{missing, good, corrupt},
		filepath.Join(dir, "out.pdf"),
	)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pages)
	assert.Equal(t, []string{missing, corrupt}, stats.Skipped)
}

func TestAssemble_Errors(t *testing.T) {
	t.Parallel()

	assembler := newTestAssembler(t)
	dir := t.TempDir()

	_, err := assembler.Assemble(context.Background(), nil, filepath.Join(dir, "out.pdf"))
	require.ErrorIs(t, err, assemble.ErrNoImages)

	_, err = assembler.Assemble(context.Background(), []string{filepath.Join(dir, "x.png")}, "")
	require.ErrorIs(t, err, assemble.ErrOutputPathRequired)

	stats, err := assembler.Assemble(
		context.Background(),
		[]string{filepath.Join(dir, "x.png")},
		filepath.Join(dir, "out.pdf"),
	)
	require.ErrorIs(t, err, assemble.ErrNoValidImages)
	assert.Len(t, stats.Skipped, 1)
	assert.NoFileExists(t, filepath.Join(dir, "out.pdf"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	good := writePNG(t, filepath.Join(dir, "good.png"), solid(4, 4, color.Black))
	_, err = assembler.Assemble(ctx, []string{good}, filepath.Join(dir, "out.pdf"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestFromFolder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "page_0002.PNG"), solid(8, 8, color.Black))
	writeJPEG(t, filepath.Join(dir, "page_0001.jpeg"), solid(8, 8, color.White))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0o750))

	listed, err := assemble.ListImages(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "page_0001.jpeg"),
		filepath.Join(dir, "page_0002.PNG"),
	}, listed)

	stats, err := newTestAssembler(t).FromFolder(context.Background(), dir, filepath.Join(t.TempDir(), "out.pdf"))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Pages)

	_, err = newTestAssembler(t).FromFolder(context.Background(), t.TempDir(), filepath.Join(dir, "empty.pdf"))
	require.ErrorIs(t, err, assemble.ErrNoImages)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := writePNG(t, filepath.Join(dir, "1.png"), solid(10, 20, color.Black))
	second := writePNG(t, filepath.Join(dir, "2.png"), solid(20, 10, color.Black))
	corrupt := filepath.Join(dir, "3.png")
	require.NoError(t, os.WriteFile(corrupt, []byte("junk"), 0o600))

	missing := filepath.Join(dir, "4.png")

	report := assemble.Validate([]string{first, second, corrupt, missing})
	assert.Equal(t, []string{first, second}, report.Valid)
	assert.Equal(t, []string{corrupt}, report.Invalid)
	assert.Equal(t, []string{missing}, report.Missing)
	assert.Equal(t, []string{"10x20", "20x10"}, report.Sizes)
	require.Len(t, report.Recommendations, 1)
	assert.Contains(t, report.Recommendations[0], "2 different sizes")

	uniform := assemble.Validate([]string{first})
	assert.Empty(t, uniform.Recommendations)
}
