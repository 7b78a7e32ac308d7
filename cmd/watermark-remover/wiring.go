package main

import (
	"errors"
	"fmt"

	"github.com/book-expert/pdf-watermark-remover/internal/assemble"
	"github.com/book-expert/pdf-watermark-remover/internal/browser"
	"github.com/book-expert/pdf-watermark-remover/internal/history"
	"github.com/book-expert/pdf-watermark-remover/internal/notify"
	"github.com/book-expert/pdf-watermark-remover/internal/pdfrender"
	"github.com/book-expert/pdf-watermark-remover/internal/pipeline"
	"github.com/book-expert/pdf-watermark-remover/internal/remover"
)

// pipelineMode selects the optional stages of a coordinator.
type pipelineMode struct {
	notify      bool
	writeReport bool
}

func (application *app) renderer() *pdfrender.Renderer {
	cfg := application.cfg

	return pdfrender.NewRenderer(&pdfrender.Options{
		ProgressBarOutput:      nil,
		Backend:                cfg.Render.Backend,
		DPI:                    cfg.Render.DPI,
		Workers:                cfg.Render.Workers,
		DetectBlank:            cfg.BlankDetection.Enabled,
		BlankFuzzPercent:       cfg.BlankDetection.FuzzPercent,
		BlankNonWhiteThreshold: cfg.BlankDetection.NonWhiteThreshold,
	}, application.log)
}

func (application *app) browserOptions(downloadDir string) browser.Options {
	cfg := application.cfg.Browser

	return browser.Options{
		ExecPath:     cfg.ExecPath,
		UserAgent:    cfg.UserAgent,
		DownloadDir:  downloadDir,
		WindowWidth:  cfg.WindowWidth,
		WindowHeight: cfg.WindowHeight,
		Headless:     cfg.Headless,
	}
}

func (application *app) pipelineOptions(mode pipelineMode) pipeline.Options {
	cfg := application.cfg

	return pipeline.Options{
		ProgressBarOutput: nil,
		OutputDir:         cfg.Paths.OutputDir,
		WorkDir:           cfg.Paths.WorkDir,
		OutputPrefix:      cfg.Assemble.OutputPrefix,
		DocumentDelay:     cfg.Service.DocumentDelay.Duration,
		PassThroughBlank:  cfg.BlankDetection.Enabled,
		KeepFailedPages:   cfg.Assemble.KeepFailedPages,
		SkipProcessed:     cfg.History.Enabled && cfg.History.SkipProcessed,
		WriteReport:       mode.writeReport,
	}
}

// coordinator wires every stage from the configuration. The returned
// function releases the history database and the NATS connection.
func (application *app) coordinator(mode pipelineMode) (*pipeline.Coordinator, func() error, error) {
	cfg := application.cfg

	deps := pipeline.Dependencies{
		Rasterizer: application.renderer(),
		Cleaners: pipeline.BrowserCleaners(
			application.browserOptions(""),
			remover.SiteFromConfig(cfg.Service),
			application.log,
		),
		Assembler: assemble.New(cfg.Assemble.Quality, cfg.Render.DPI, application.log),
		Recorder:  nil,
		Notifier:  nil,
	}

	var closers []func() error

	release := func() error {
		var errs []error
		for _, closeFn := range closers {
			errs = append(errs, closeFn())
		}

		return errors.Join(errs...)
	}

	if cfg.History.Enabled {
		store, openErr := history.Open(cfg.Paths.HistoryDB)
		if openErr != nil {
			return nil, nil, fmt.Errorf("could not open history: %w", openErr)
		}

		deps.Recorder = store
		closers = append(closers, store.Close)
	}

	if mode.notify && cfg.NATS.URL != "" {
		publisher, connectErr := notify.Connect(cfg.NATS.URL, cfg.NATS.NotifySubject, application.log)
		if connectErr != nil {
			return nil, nil, errors.Join(connectErr, release())
		}

		deps.Notifier = publisher
		closers = append(closers, publisher.Close)
	}

	coordinator, newErr := pipeline.New(deps, application.pipelineOptions(mode), application.log)
	if newErr != nil {
		return nil, nil, errors.Join(newErr, release())
	}

	return coordinator, release, nil
}
