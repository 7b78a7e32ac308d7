package remover

import (
	"context"
	"time"

	"github.com/book-expert/pdf-watermark-remover/internal/config"
)

const (
	defaultPollInterval         = 500 * time.Millisecond
	defaultDownloadPollInterval = time.Second
	defaultPopupCloseSettle     = time.Second
)

// ElementState is what a Session can tell about the first element matching a
// selector.
type ElementState struct {
	Exists  bool
	Visible bool
	Enabled bool
}

// Clickable reports whether the element can receive a click.
func (state ElementState) Clickable() bool {
	return state.Exists && state.Visible && state.Enabled
}

// Session is a browser tab driven by the remover. Selectors are CSS selectors
// or "text=<substring>" to match a button or link by its visible text.
type Session interface {
	// Navigate loads url and returns once the document body is present.
	Navigate(ctx context.Context, url string) error
	// Probe reports the state of the first element matching selector. A missing
	// element is not an error.
	Probe(ctx context.Context, selector string) (ElementState, error)
	// Upload sets the file of the input matching selector.
	Upload(ctx context.Context, selector, path string) error
	// Click clicks the element matching selector.
	Click(ctx context.Context, selector string) error
	// PressEscape sends the Escape key to the page.
	PressEscape(ctx context.Context) error
	// Close releases the browser.
	Close() error
}

// Site describes the watermark removal page and the waits used against it.
type Site struct {
	URL                  string
	UploadSelectors      []string
	PopupSelectors       []string
	CloseSelectors       []string
	ProcessingSelectors  []string
	DownloadSelectors    []string
	PageTimeout          time.Duration
	SelectorTimeout      time.Duration
	PopupTimeout         time.Duration
	ProcessingTimeout    time.Duration
	DownloadTimeout      time.Duration
	PageLoadSettle       time.Duration
	UploadSettle         time.Duration
	PopupCloseSettle     time.Duration
	PageDelay            time.Duration
	PollInterval         time.Duration
	DownloadPollInterval time.Duration
}

// SiteFromConfig builds a Site from the service section of the configuration.
func SiteFromConfig(service config.Service) Site {
	return Site{
		URL:                  service.URL,
		UploadSelectors:      service.UploadSelectors,
		PopupSelectors:       service.PopupSelectors,
		CloseSelectors:       service.CloseSelectors,
		ProcessingSelectors:  service.ProcessingSelectors,
		DownloadSelectors:    service.DownloadSelectors,
		PageTimeout:          service.PageTimeout.Duration,
		SelectorTimeout:      service.SelectorTimeout.Duration,
		PopupTimeout:         service.PopupTimeout.Duration,
		ProcessingTimeout:    service.ProcessingTimeout.Duration,
		DownloadTimeout:      service.DownloadTimeout.Duration,
		PageLoadSettle:       service.PageLoadSettle.Duration,
		UploadSettle:         service.UploadSettle.Duration,
		PopupCloseSettle:     defaultPopupCloseSettle,
		PageDelay:            service.PageDelay.Duration,
		PollInterval:         defaultPollInterval,
		DownloadPollInterval: defaultDownloadPollInterval,
	}
}

func (site *Site) applyDefaults() {
	if site.PollInterval <= 0 {
		site.PollInterval = defaultPollInterval
	}

	if site.DownloadPollInterval <= 0 {
		site.DownloadPollInterval = defaultDownloadPollInterval
	}
}
