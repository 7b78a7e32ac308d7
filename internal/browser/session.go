// Package browser drives a Chrome tab through chromedp for the remover.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/book-expert/pdf-watermark-remover/internal/remover"
)

var (
	// ErrDownloadDirRequired is returned when Launch is given no download directory.
	ErrDownloadDirRequired = errors.New("download directory is required")
	// ErrElementNotFound is returned when an action targets a missing element.
	ErrElementNotFound = errors.New("element not found")
	// ErrTextSelectorUnsupported is returned for text selectors on file inputs.
	ErrTextSelectorUnsupported = errors.New("text selectors cannot target file inputs")
)

const (
	defaultWindowWidth  = 1920
	defaultWindowHeight = 1080
	nativeClickTimeout  = 5 * time.Second
	defaultDirMode      = 0o750
)

var _ remover.Session = (*Session)(nil)

// Options configures the Chrome instance.
type Options struct {
	ExecPath     string
	UserAgent    string
	DownloadDir  string
	WindowWidth  int
	WindowHeight int
	Headless     bool
}

// Session is one Chrome tab.
type Session struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	log         *logger.Logger
}

// Launch starts Chrome, allows downloads into opts.DownloadDir and hides the
// automation marker from page scripts.
func Launch(ctx context.Context, opts Options, log *logger.Logger) (*Session, error) {
	if opts.DownloadDir == "" {
		return nil, ErrDownloadDirRequired
	}

	downloadDir, absErr := filepath.Abs(opts.DownloadDir)
	if absErr != nil {
		return nil, fmt.Errorf("could not resolve download directory: %w", absErr)
	}

	if mkdirErr := os.MkdirAll(downloadDir, defaultDirMode); mkdirErr != nil {
		return nil, fmt.Errorf("could not create download directory %s: %w", downloadDir, mkdirErr)
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOptions(opts)...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	startErr := chromedp.Run(tabCtx,
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(downloadDir).
			WithEventsEnabled(true),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, addErr := page.AddScriptToEvaluateOnNewDocument(hideWebdriverScript).Do(ctx)

			return addErr
		}),
	)
	if startErr != nil {
		cancelTab()
		cancelAlloc()

		return nil, fmt.Errorf("failed to start browser: %w", startErr)
	}

	log.Info("Browser started (headless: %t, downloads: %s)", opts.Headless, downloadDir)

	return &Session{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		log:         log,
	}, nil
}

func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	width, height := opts.WindowWidth, opts.WindowHeight
	if width <= 0 || height <= 0 {
		width, height = defaultWindowWidth, defaultWindowHeight
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", opts.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(width, height),
	)

	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	return allocOpts
}

// Navigate loads url and waits for the body element.
func (session *Session) Navigate(ctx context.Context, url string) error {
	return session.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Probe evaluates the element state in the page.
func (session *Session) Probe(ctx context.Context, selector string) (remover.ElementState, error) {
	script, scriptErr := probeScript(selector)
	if scriptErr != nil {
		return remover.ElementState{}, scriptErr
	}

	var state probeResult

	if evalErr := session.run(ctx, chromedp.Evaluate(script, &state)); evalErr != nil {
		return remover.ElementState{}, fmt.Errorf("probe %s: %w", selector, evalErr)
	}

	return remover.ElementState{
		Exists:  state.Exists,
		Visible: state.Visible,
		Enabled: state.Enabled,
	}, nil
}

// Upload sets path on the file input matching selector.
func (session *Session) Upload(ctx context.Context, selector, path string) error {
	if isTextSelector(selector) {
		return fmt.Errorf("%w: %s", ErrTextSelectorUnsupported, selector)
	}

	return session.run(ctx, chromedp.SetUploadFiles(selector, []string{path}, chromedp.ByQuery))
}

// Click scrolls the element into view and clicks it. A native click is tried
// first for CSS selectors; a JavaScript click is the fallback.
func (session *Session) Click(ctx context.Context, selector string) error {
	if !isTextSelector(selector) {
		nativeCtx, cancel := context.WithTimeout(ctx, nativeClickTimeout)
		nativeErr := session.run(nativeCtx,
			chromedp.ScrollIntoView(selector, chromedp.ByQuery),
			chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible),
		)

		cancel()

		if nativeErr == nil {
			return nil
		}

		session.log.Warn("Native click on %s failed, using JavaScript: %v", selector, nativeErr)
	}

	script, scriptErr := clickScript(selector)
	if scriptErr != nil {
		return scriptErr
	}

	var clicked bool

	if evalErr := session.run(ctx, chromedp.Evaluate(script, &clicked)); evalErr != nil {
		return fmt.Errorf("click %s: %w", selector, evalErr)
	}

	if !clicked {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}

	return nil
}

// PressEscape sends Escape to the focused element.
func (session *Session) PressEscape(ctx context.Context) error {
	return session.run(ctx, chromedp.KeyEvent(kb.Escape))
}

// Close shuts the tab and the browser process.
func (session *Session) Close() error {
	cancelErr := chromedp.Cancel(session.ctx)
	session.cancelTab()
	session.cancelAlloc()

	if cancelErr != nil && !errors.Is(cancelErr, context.Canceled) {
		return fmt.Errorf("failed to close browser: %w", cancelErr)
	}

	return nil
}

// run executes actions on the tab, bounded by the caller's context.
func (session *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(session.ctx)
	defer cancel()

	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc

		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}
