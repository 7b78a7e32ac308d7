package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/logger"

	"github.com/book-expert/pdf-watermark-remover/internal/browser"
	"github.com/book-expert/pdf-watermark-remover/internal/remover"
)

// browserCleaner is a Remover bound to the Chrome session it drives.
type browserCleaner struct {
	*remover.Remover

	session *browser.Session
}

func (cleaner *browserCleaner) Close() error {
	return cleaner.session.Close()
}

// BrowserCleaners returns a CleanerFactory that launches Chrome with opts for
// every document and drives site through it.
func BrowserCleaners(opts browser.Options, site remover.Site, log *logger.Logger) CleanerFactory {
	return func(ctx context.Context, downloadDir string) (Cleaner, error) {
		sessionOpts := opts
		sessionOpts.DownloadDir = downloadDir

		session, launchErr := browser.Launch(ctx, sessionOpts, log)
		if launchErr != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", launchErr)
		}

		rem, newErr := remover.New(session, site, downloadDir, log)
		if newErr != nil {
			return nil, errors.Join(newErr, session.Close())
		}

		return &browserCleaner{Remover: rem, session: session}, nil
	}
}
