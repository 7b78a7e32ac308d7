package pdfrender_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/pdf-watermark-remover/internal/pdfrender"
)

var errGhostscript = errors.New("ghostscript crashed")

// fakeExec answers pdfinfo from a fixed string and simulates Ghostscript by
// writing a PNG to the -o path. Pages listed in failPages fail; pages in
// blankPages are rendered white.
type fakeExec struct {
	pdfInfoErr error
	failPages  map[string]bool
	blankPages map[string]bool
	pdfInfoOut string
	calls      []string
	mu         sync.Mutex
}

func (f *fakeExec) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.record(name, args)

	if f.pdfInfoErr != nil {
		return nil, f.pdfInfoErr
	}

	return []byte(f.pdfInfoOut), nil
}

func (f *fakeExec) RunCombined(_ context.Context, name string, args ...string) ([]byte, error) {
	f.record(name, args)

	var firstPage, outPath string

	for i, arg := range args {
		if strings.HasPrefix(arg, "-dFirstPage=") {
			firstPage = strings.TrimPrefix(arg, "-dFirstPage=")
		}

		if arg == "-o" && i+1 < len(args) {
			outPath = args[i+1]
		}
	}

	if f.failPages[firstPage] {
		return []byte("boom"), errGhostscript
	}

	fill := color.Color(color.Black)
	if f.blankPages[firstPage] {
		fill = color.White
	}

	return nil, writeSolidPNG(outPath, fill)
}

func (f *fakeExec) record(name string, args []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
}

func writeSolidPNG(path string, fill color.Color) error {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := range 8 {
		for x := range 8 {
			img.Set(x, y, fill)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}

	encodeErr := png.Encode(file, img)
	closeErr := file.Close()

	return errors.Join(encodeErr, closeErr)
}

func newTestRenderer(t *testing.T, detectBlank bool, progress io.Writer) *pdfrender.Renderer {
	t.Helper()

	log, err := logger.New(t.TempDir(), "t.log")
	require.NoError(t, err)

	return pdfrender.NewRenderer(&pdfrender.Options{
		ProgressBarOutput:      progress,
		Backend:                pdfrender.BackendGhostscript,
		DPI:                    300,
		Workers:                2,
		DetectBlank:            detectBlank,
		BlankFuzzPercent:       5,
		BlankNonWhiteThreshold: 0.01,
	}, log)
}

func writeDummyPDF(t *testing.T) string {
	t.Helper()

	pdfPath := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4"), 0o600))

	return pdfPath
}

func TestRenderPages_OrderedWithPartialFailure(t *testing.T) {
	t.Parallel()

	var progress bytes.Buffer

	renderer := newTestRenderer(t, true, &progress)
	executor := &fakeExec{
		pdfInfoOut: "Pages: 4\n",
		failPages:  map[string]bool{"3": true},
		blankPages: map[string]bool{"2": true},
	}
	renderer.SetExecutorForTest(executor)

	outDir := filepath.Join(t.TempDir(), "pages")
	pages, err := renderer.RenderPages(context.Background(), writeDummyPDF(t), outDir)
	require.NoError(t, err)
	require.Len(t, pages, 4)

	for i, page := range pages {
		assert.Equal(t, i+1, page.Index)
		assert.Equal(t, filepath.Join(outDir, pdfrender.PageFileName(i+1)), page.Path)
	}

	require.NoError(t, pages[0].Err)
	assert.False(t, pages[0].Blank)
	require.NoError(t, pages[1].Err)
	assert.True(t, pages[1].Blank)
	require.ErrorIs(t, pages[2].Err, errGhostscript)
	require.NoError(t, pages[3].Err)
	assert.FileExists(t, pages[3].Path)
	assert.NotEqual(t, 0, progress.Len())
}

func TestRenderPages_BlankDetectionDisabled(t *testing.T) {
	t.Parallel()

	renderer := newTestRenderer(t, false, io.Discard)
	renderer.SetExecutorForTest(&fakeExec{
		pdfInfoOut: "Pages: 1\n",
		blankPages: map[string]bool{"1": true},
	})

	pages, err := renderer.RenderPages(context.Background(), writeDummyPDF(t), t.TempDir())
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.False(t, pages[0].Blank)
}

func TestRenderPages_Errors(t *testing.T) {
	t.Parallel()

	t.Run("Zero pages", func(t *testing.T) {
		t.Parallel()

		renderer := newTestRenderer(t, false, io.Discard)
		renderer.SetExecutorForTest(&fakeExec{pdfInfoOut: "Pages: 0\n"})

		_, err := renderer.RenderPages(context.Background(), writeDummyPDF(t), t.TempDir())
		require.ErrorIs(t, err, pdfrender.ErrPDFZeroOrNegativePages)
	})

	t.Run("Missing output directory", func(t *testing.T) {
		t.Parallel()

		renderer := newTestRenderer(t, false, io.Discard)

		_, err := renderer.RenderPages(context.Background(), writeDummyPDF(t), "")
		require.ErrorIs(t, err, pdfrender.ErrOutputPathRequired)
	})

	t.Run("Empty pdf path", func(t *testing.T) {
		t.Parallel()

		renderer := newTestRenderer(t, false, io.Discard)

		_, err := renderer.PageCount(context.Background(), "")
		require.ErrorIs(t, err, pdfrender.ErrPDFPathRequired)
	})

	t.Run("pdfinfo missing and file unparsable", func(t *testing.T) {
		t.Parallel()

		renderer := newTestRenderer(t, false, io.Discard)
		renderer.SetExecutorForTest(&fakeExec{pdfInfoErr: os.ErrNotExist})

		_, err := renderer.PageCount(context.Background(), writeDummyPDF(t))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("Unknown backend", func(t *testing.T) {
		t.Parallel()

		log, err := logger.New(t.TempDir(), "t.log")
		require.NoError(t, err)

		renderer := pdfrender.NewRenderer(&pdfrender.Options{
			ProgressBarOutput:      io.Discard,
			Backend:                "pdftoppm",
			DPI:                    0,
			Workers:                1,
			DetectBlank:            false,
			BlankFuzzPercent:       0,
			BlankNonWhiteThreshold: 0,
		}, log)
		renderer.SetExecutorForTest(&fakeExec{pdfInfoOut: "Pages: 2\n"})

		_, err = renderer.RenderPages(context.Background(), writeDummyPDF(t), t.TempDir())
		require.ErrorIs(t, err, pdfrender.ErrUnknownBackend)
	})
}

func TestRenderPages_CanceledContext(t *testing.T) {
	t.Parallel()

	renderer := newTestRenderer(t, false, io.Discard)
	renderer.SetExecutorForTest(&fakeExec{pdfInfoOut: "Pages: 3\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pages, err := renderer.RenderPages(ctx, writeDummyPDF(t), t.TempDir())
	require.NoError(t, err)

	for _, page := range pages {
		require.ErrorIs(t, page.Err, context.Canceled)
	}
}

func TestInspect(t *testing.T) {
	t.Parallel()

	renderer := newTestRenderer(t, false, io.Discard)
	renderer.SetExecutorForTest(&fakeExec{pdfInfoOut: "Pages: 12\n"})

	pdfPath := writeDummyPDF(t)
	info, err := renderer.Inspect(context.Background(), pdfPath)
	require.NoError(t, err)
	assert.Equal(t, "doc.pdf", info.FileName)
	assert.Equal(t, int64(8), info.SizeBytes)
	assert.Equal(t, 12, info.Pages)
	assert.Equal(t, pdfrender.BackendGhostscript, info.Backend)

	_, err = renderer.Inspect(context.Background(), filepath.Join(t.TempDir(), "absent.pdf"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDiscoverPDFs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.pdf"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.PDF"), nil, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), nil, 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "d.pdf"), 0o750))

	files, err := pdfrender.DiscoverPDFs(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.PDF"), filepath.Join(dir, "b.pdf")}, files)

	_, err = pdfrender.DiscoverPDFs(filepath.Join(dir, "missing"))
	require.Error(t, err)
}
