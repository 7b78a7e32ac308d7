// Package remover submits page images to the watermark removal web service
// through a browser Session and collects the cleaned downloads.
package remover

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/book-expert/logger"
)

var (
	// ErrImageNotFound is returned when the image to submit does not exist.
	ErrImageNotFound = errors.New("image not found")
	// ErrUploadInputNotFound is returned when no upload selector matched.
	ErrUploadInputNotFound = errors.New("upload input not found")
	// ErrDownloadButtonNotFound is returned when processing never offered a
	// download.
	ErrDownloadButtonNotFound = errors.New("download button not found")
	// ErrDownloadTimeout is returned when no completed download appeared.
	ErrDownloadTimeout = errors.New("timed out waiting for download")
)

const (
	processedPrefix = "processed_"
	defaultDirMode  = 0o750
)

// partialDownloadSuffixes mark files the browser is still writing.
var partialDownloadSuffixes = []string{".crdownload", ".tmp", ".part"}

// Result is the outcome of submitting one image.
type Result struct {
	Err      error
	Source   string
	Output   string
	Duration time.Duration
}

// Remover drives one browser session through the removal flow.
type Remover struct {
	session     Session
	log         *logger.Logger
	downloadDir string
	site        Site
}

// New creates a Remover that downloads into downloadDir, creating it if needed.
func New(session Session, site Site, downloadDir string, log *logger.Logger) (*Remover, error) {
	absDir, absErr := filepath.Abs(downloadDir)
	if absErr != nil {
		return nil, fmt.Errorf("could not resolve download directory %s: %w", downloadDir, absErr)
	}

	if mkdirErr := os.MkdirAll(absDir, defaultDirMode); mkdirErr != nil {
		return nil, fmt.Errorf("could not create download directory %s: %w", absDir, mkdirErr)
	}

	site.applyDefaults()

	return &Remover{
		session:     session,
		log:         log,
		downloadDir: absDir,
		site:        site,
	}, nil
}

// DownloadDir is where cleaned images are saved.
func (remover *Remover) DownloadDir() string {
	return remover.downloadDir
}

// ProcessImage runs one image through the service and returns the path of the
// cleaned download.
func (remover *Remover) ProcessImage(ctx context.Context, imagePath string) (string, error) {
	absPath, absErr := filepath.Abs(imagePath)
	if absErr != nil {
		return "", fmt.Errorf("could not resolve %s: %w", imagePath, absErr)
	}

	if _, statErr := os.Stat(absPath); statErr != nil {
		return "", fmt.Errorf("%w: %s", ErrImageNotFound, imagePath)
	}

	remover.log.Info("Processing image: %s", filepath.Base(absPath))

	if navErr := remover.navigate(ctx); navErr != nil {
		return "", navErr
	}

	if uploadErr := remover.upload(ctx, absPath); uploadErr != nil {
		return "", uploadErr
	}

	if _, popupErr := remover.dismissPopups(ctx); popupErr != nil {
		return "", popupErr
	}

	downloadSelector, waitErr := remover.waitForProcessing(ctx)
	if waitErr != nil {
		return "", waitErr
	}

	if _, popupErr := remover.dismissPopups(ctx); popupErr != nil {
		return "", popupErr
	}

	return remover.download(ctx, downloadSelector, filepath.Base(absPath))
}

// ProcessAll submits images one after another, pausing between them. A failed
// image does not stop the others; cancellation does.
func (remover *Remover) ProcessAll(ctx context.Context, imagePaths []string) []Result {
	results := make([]Result, 0, len(imagePaths))
	succeeded := 0

	for i, imagePath := range imagePaths {
		if ctxErr := ctx.Err(); ctxErr != nil {
			results = append(results, Result{Err: ctxErr, Source: imagePath, Output: "", Duration: 0})

			continue
		}

		remover.log.Info("Image %d/%d: %s", i+1, len(imagePaths), filepath.Base(imagePath))

		started := time.Now()
		output, processErr := remover.ProcessImage(ctx, imagePath)
		results = append(results, Result{
			Err:      processErr,
			Source:   imagePath,
			Output:   output,
			Duration: time.Since(started),
		})

		if processErr != nil {
			remover.log.Error("Image %d failed: %v", i+1, processErr)
		} else {
			succeeded++

			remover.log.Success("Image %d cleaned: %s", i+1, filepath.Base(output))
		}

		if i < len(imagePaths)-1 {
			_ = sleep(ctx, remover.site.PageDelay)
		}
	}

	remover.log.Info("Summary: %d/%d images processed", succeeded, len(imagePaths))

	return results
}

func (remover *Remover) navigate(ctx context.Context) error {
	navCtx, cancel := withOptionalTimeout(ctx, remover.site.PageTimeout)
	defer cancel()

	if navErr := remover.session.Navigate(navCtx, remover.site.URL); navErr != nil {
		return fmt.Errorf("failed to load %s: %w", remover.site.URL, navErr)
	}

	return sleep(ctx, remover.site.PageLoadSettle)
}

// upload finds the first usable upload input, in selector order, and submits
// the image through it.
func (remover *Remover) upload(ctx context.Context, absPath string) error {
	selector, findErr := remover.findUploadInput(ctx)
	if findErr != nil {
		return findErr
	}

	if uploadErr := remover.session.Upload(ctx, selector, absPath); uploadErr != nil {
		return fmt.Errorf("failed to upload through %s: %w", selector, uploadErr)
	}

	remover.log.Info("Uploaded %s through %s", filepath.Base(absPath), selector)

	return sleep(ctx, remover.site.UploadSettle)
}

func (remover *Remover) findUploadInput(ctx context.Context) (string, error) {
	for _, selector := range remover.site.UploadSelectors {
		found, waitErr := remover.waitFor(ctx, remover.site.SelectorTimeout, remover.site.PollInterval,
			func(state ElementState) bool { return state.Exists && state.Enabled },
			selector,
		)
		if waitErr != nil {
			return "", waitErr
		}

		if found {
			return selector, nil
		}
	}

	return "", ErrUploadInputNotFound
}

// dismissPopups closes the first visible popup, preferring a close button and
// falling back to Escape. It reports whether a close button was clicked.
func (remover *Remover) dismissPopups(ctx context.Context) (bool, error) {
	for _, popupSelector := range remover.site.PopupSelectors {
		present, waitErr := remover.waitFor(ctx, remover.site.PopupTimeout, remover.site.PollInterval,
			func(state ElementState) bool { return state.Exists },
			popupSelector,
		)
		if waitErr != nil {
			return false, waitErr
		}

		if !present || !remover.probe(ctx, popupSelector).Visible {
			continue
		}

		remover.log.Info("Popup detected: %s", popupSelector)

		for _, closeSelector := range remover.site.CloseSelectors {
			if !remover.probe(ctx, closeSelector).Clickable() {
				continue
			}

			if clickErr := remover.session.Click(ctx, closeSelector); clickErr != nil {
				continue
			}

			remover.log.Info("Popup closed with %s", closeSelector)

			return true, sleep(ctx, remover.site.PopupCloseSettle)
		}

		if escErr := remover.session.PressEscape(ctx); escErr == nil {
			remover.log.Info("Popup dismissed with Escape")
		}

		return false, nil
	}

	return false, nil
}

// waitForProcessing waits for visible progress indicators to disappear, then
// polls the download selectors in order until one is clickable.
func (remover *Remover) waitForProcessing(ctx context.Context) (string, error) {
	for _, selector := range remover.site.ProcessingSelectors {
		if !remover.probe(ctx, selector).Visible {
			continue
		}

		remover.log.Info("Waiting for %s to finish", selector)

		gone, waitErr := remover.waitFor(ctx, remover.site.ProcessingTimeout, remover.site.PollInterval,
			func(state ElementState) bool { return !state.Visible },
			selector,
		)
		if waitErr != nil {
			return "", waitErr
		}

		if !gone {
			remover.log.Warn("%s still visible after %s", selector, remover.site.ProcessingTimeout)
		}
	}

	var chosen string

	found, pollErr := poll(ctx, remover.site.ProcessingTimeout, remover.site.PollInterval, func() bool {
		for _, selector := range remover.site.DownloadSelectors {
			if remover.probe(ctx, selector).Clickable() {
				chosen = selector

				return true
			}
		}

		return false
	})
	if pollErr != nil {
		return "", pollErr
	}

	if !found {
		return "", ErrDownloadButtonNotFound
	}

	remover.log.Info("Download button found: %s", chosen)

	return chosen, nil
}

// download clicks the download button and waits for a new, complete file in
// the download directory, then renames it processed_<stem><ext>.
func (remover *Remover) download(ctx context.Context, selector, originalName string) (string, error) {
	before, listErr := listFiles(remover.downloadDir)
	if listErr != nil {
		return "", listErr
	}

	if clickErr := remover.session.Click(ctx, selector); clickErr != nil {
		return "", fmt.Errorf("failed to click %s: %w", selector, clickErr)
	}

	var downloaded string

	found, pollErr := poll(ctx, remover.site.DownloadTimeout, remover.site.DownloadPollInterval, func() bool {
		current, currentErr := listFiles(remover.downloadDir)
		if currentErr != nil {
			remover.log.Warn("Could not list downloads: %v", currentErr)

			return false
		}

		downloaded = firstCompleteNewFile(before, current)

		return downloaded != ""
	})
	if pollErr != nil {
		return "", pollErr
	}

	if !found {
		return "", ErrDownloadTimeout
	}

	return remover.renameDownload(downloaded, originalName), nil
}

func (remover *Remover) renameDownload(downloaded, originalName string) string {
	downloadedPath := filepath.Join(remover.downloadDir, downloaded)

	ext := filepath.Ext(downloaded)
	if ext == "" {
		ext = filepath.Ext(originalName)
	}

	stem := strings.TrimSuffix(originalName, filepath.Ext(originalName))
	renamedPath := filepath.Join(remover.downloadDir, processedPrefix+stem+ext)

	if renameErr := os.Rename(downloadedPath, renamedPath); renameErr != nil {
		remover.log.Warn("Could not rename %s: %v", downloaded, renameErr)

		return downloadedPath
	}

	if stat, statErr := os.Stat(renamedPath); statErr == nil {
		remover.log.Info("Downloaded %s (%d bytes)", filepath.Base(renamedPath), stat.Size())
	}

	return renamedPath
}

// probe returns the element state, treating probe errors as absence.
func (remover *Remover) probe(ctx context.Context, selector string) ElementState {
	state, probeErr := remover.session.Probe(ctx, selector)
	if probeErr != nil {
		return ElementState{Exists: false, Visible: false, Enabled: false}
	}

	return state
}

// waitFor polls selector until cond holds or timeout elapses.
func (remover *Remover) waitFor(
	ctx context.Context,
	timeout, interval time.Duration,
	cond func(ElementState) bool,
	selector string,
) (bool, error) {
	return poll(ctx, timeout, interval, func() bool {
		return cond(remover.probe(ctx, selector))
	})
}

// poll evaluates check at least once and then every interval until it holds or
// timeout elapses. Only context cancellation is returned as an error.
func poll(ctx context.Context, timeout, interval time.Duration, check func() bool) (bool, error) {
	deadline := time.Now().Add(timeout)

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}

		if check() {
			return true, nil
		}

		if !time.Now().Before(deadline) {
			return false, nil
		}

		if sleepErr := sleep(ctx, min(interval, time.Until(deadline))); sleepErr != nil {
			return false, sleepErr
		}
	}
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

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}

func listFiles(dir string) (map[string]bool, error) {
	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		return nil, fmt.Errorf("could not read %s: %w", dir, readErr)
	}

	files := make(map[string]bool, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() {
			files[entry.Name()] = true
		}
	}

	return files, nil
}

// firstCompleteNewFile returns the alphabetically first file in current that
// is not in before and is not a partial download.
func firstCompleteNewFile(before, current map[string]bool) string {
	var candidates []string

	for name := range current {
		if before[name] || isPartialDownload(name) {
			continue
		}

		candidates = append(candidates, name)
	}

	if len(candidates) == 0 {
		return ""
	}

	sort.Strings(candidates)

	return candidates[0]
}

func isPartialDownload(name string) bool {
	for _, suffix := range partialDownloadSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}

	return false
}
