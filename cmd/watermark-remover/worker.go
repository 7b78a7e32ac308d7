package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/book-expert/pdf-watermark-remover/internal/worker"
)

func newWorkerCommand() *cobra.Command {
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Clean PDFs announced on a NATS JetStream subject",
		Long: `Worker consumes PDF-created events, downloads each PDF from the input
object store, runs it through the pipeline and uploads the cleaned PDF to the
output object store before publishing a completion event.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, appErr := newApp(cmd)
			if appErr != nil {
				return appErr
			}
			defer application.close()

			// The worker publishes its own events with the object key.
			coordinator, release, wireErr := application.coordinator(pipelineMode{notify: false, writeReport: false})
			if wireErr != nil {
				return wireErr
			}

			runErr := worker.Run(cmd.Context(), application.cfg.NATS, coordinator,
				application.cfg.Paths.WorkDir, application.log)
			if errors.Is(runErr, cmd.Context().Err()) {
				application.log.Info("Worker stopped: %v", runErr)

				runErr = nil
			}

			return errors.Join(runErr, release())
		},
	}

	flags := workerCmd.Flags()
	flags.String("nats-url", "", "NATS server URL")
	flags.String("output", "", "directory for intermediate cleaned PDFs")
	flags.String("work-dir", "", "parent directory for downloads and page images")
	flags.Bool("headless", true, "run Chrome without a window")
	flags.String("chrome", "", "path to the Chrome executable")

	return workerCmd
}
