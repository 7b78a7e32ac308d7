package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/book-expert/pdf-watermark-remover/internal/pipeline"
)

// ErrInputRequired is returned when neither an argument nor paths.input_dir
// names something to process.
var ErrInputRequired = errors.New("an input PDF or directory is required")

func newProcessCommand() *cobra.Command {
	processCmd := &cobra.Command{
		Use:   "process [pdf|dir]",
		Short: "Remove watermarks from a PDF or from every PDF in a directory",
		Long: `Process rasterizes each PDF, cleans every page through the removal
service and writes NoWatermark_<name>.pdf to the output directory. Without an
argument the configured input directory is processed. A YAML run report is
written next to the cleaned PDFs.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, appErr := newApp(cmd)
			if appErr != nil {
				return appErr
			}
			defer application.close()

			input, inputErr := inputPath(args, application.cfg.Paths.InputDir)
			if inputErr != nil {
				return inputErr
			}

			name, _ := cmd.Flags().GetString("name")

			coordinator, release, wireErr := application.coordinator(pipelineMode{notify: true, writeReport: true})
			if wireErr != nil {
				return wireErr
			}

			batch, processErr := coordinator.Process(cmd.Context(), input, name)

			printBatch(cmd, batch)

			return errors.Join(processErr, release())
		},
	}

	flags := processCmd.Flags()
	flags.String("output", "", "directory for cleaned PDFs and reports")
	flags.String("name", "", "output file name for a single PDF")
	flags.Int("dpi", 0, "render resolution")
	flags.Int("workers", 0, "pages rendered concurrently")
	flags.String("backend", "", "rasterizer: ghostscript or mupdf")
	flags.Bool("headless", true, "run Chrome without a window")
	flags.String("chrome", "", "path to the Chrome executable")
	flags.String("service-url", "", "watermark removal page")
	flags.Duration("page-delay", 0, "pause between pages")
	flags.Duration("document-delay", 0, "pause between documents")
	flags.Int("quality", 0, "JPEG quality of the assembled pages")
	flags.Bool("skip-blank", false, "keep blank pages without submitting them")
	flags.Bool("keep-failed", false, "keep the original page when cleaning fails")
	flags.Bool("history", true, "record processed documents")
	flags.Bool("skip-processed", false, "skip documents already cleaned successfully")
	flags.String("work-dir", "", "parent directory for temporary page images")
	flags.String("history-db", "", "sqlite history database")
	flags.String("nats-url", "", "publish a completion event to this NATS server")

	return processCmd
}

// inputPath is the first argument, or fallback when none is given.
func inputPath(args []string, fallback string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}

	if fallback == "" {
		return "", ErrInputRequired
	}

	return fallback, nil
}

func printBatch(cmd *cobra.Command, batch pipeline.Batch) {
	out := cmd.OutOrStdout()

	for _, document := range batch.Documents {
		status := "ok"
		if !document.Success {
			status = "failed: " + document.Error
		}

		_, _ = fmt.Fprintf(out, "%s -> %s (%d/%d pages cleaned) %s\n",
			document.InputPath, document.OutputPath, document.CleanedPages, document.TotalPages, status)
	}

	summary := batch.Summary
	_, _ = fmt.Fprintf(out, "%d documents, %d succeeded, %d failed, %d skipped (%.1f%%)\n",
		summary.Documents, summary.Succeeded, summary.Failed, summary.Skipped, summary.SuccessRate)

	if batch.ReportPath != "" {
		_, _ = fmt.Fprintf(out, "Report: %s\n", batch.ReportPath)
	}
}
