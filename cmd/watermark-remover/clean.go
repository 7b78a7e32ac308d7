package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/book-expert/pdf-watermark-remover/internal/browser"
	"github.com/book-expert/pdf-watermark-remover/internal/remover"
)

func newCleanCommand() *cobra.Command {
	cleanCmd := &cobra.Command{
		Use:   "clean <image>...",
		Short: "Send page images through the removal service",
		Long: `Clean opens one Chrome session and submits each image to the watermark
removal page in turn. Cleaned downloads are saved to the output directory.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			application, appErr := newApp(cmd)
			if appErr != nil {
				return appErr
			}
			defer application.close()

			outputDir := application.cfg.Paths.OutputDir

			session, launchErr := browser.Launch(cmd.Context(), application.browserOptions(outputDir), application.log)
			if launchErr != nil {
				return launchErr
			}

			defer func() {
				err = errors.Join(err, session.Close())
			}()

			rem, newErr := remover.New(session, remover.SiteFromConfig(application.cfg.Service), outputDir, application.log)
			if newErr != nil {
				return newErr
			}

			var failures []error

			for _, result := range rem.ProcessAll(cmd.Context(), args) {
				if result.Err != nil {
					failures = append(failures, fmt.Errorf("%s: %w", result.Source, result.Err))

					continue
				}

				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s)\n", result.Source, result.Output, result.Duration)
			}

			return errors.Join(failures...)
		},
	}

	flags := cleanCmd.Flags()
	flags.String("output", "", "directory for the cleaned images")
	flags.Bool("headless", true, "run Chrome without a window")
	flags.String("chrome", "", "path to the Chrome executable")
	flags.String("service-url", "", "watermark removal page")
	flags.Duration("page-delay", 0, "pause between images")

	return cleanCmd
}
