package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/book-expert/pdf-watermark-remover/internal/assemble"
	"github.com/book-expert/pdf-watermark-remover/internal/config"
)

const (
	defaultAssembledName = "assembled.pdf"
	bytesPerMB           = 1024 * 1024
)

func newAssembleCommand() *cobra.Command {
	assembleCmd := &cobra.Command{
		Use:   "assemble <images-dir | image...>",
		Short: "Build a PDF with one page per image",
		Long: `Assemble checks the images, reports mixed page sizes and very large
batches, then writes them into one PDF. A single directory argument assembles
every image in it sorted by name; a list of files keeps the order given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, appErr := newApp(cmd)
			if appErr != nil {
				return appErr
			}
			defer application.close()

			outPDF := assembledPath(cmd, application.cfg.Paths.OutputDir)

			images, sorted, listErr := assembleInputs(args)
			if listErr != nil {
				return listErr
			}

			printValidation(cmd, assemble.Validate(images))

			cfg := application.cfg
			assembler := assemble.New(cfg.Assemble.Quality, cfg.Render.DPI, application.log)

			assembleFn := assembler.Assemble
			if sorted {
				assembleFn = assembler.AssembleSorted
			}

			stats, assembleErr := assembleFn(cmd.Context(), images, outPDF)
			if assembleErr != nil {
				return assembleErr
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pages, %d skipped, %.2f MB\n",
				stats.Output, stats.Pages, len(stats.Skipped), float64(stats.SizeBytes)/bytesPerMB)

			return nil
		},
	}

	assembleCmd.Flags().String("output", "", "path of the PDF to write")
	// --output names a file here, not paths.output_dir.
	_ = assembleCmd.Flags().SetAnnotation("output", config.UnboundAnnotation, []string{"true"})
	assembleCmd.Flags().Int("quality", 0, "JPEG quality of the pages")
	assembleCmd.Flags().Int("dpi", 0, "resolution the images were rendered at")

	return assembleCmd
}

// assembledPath is --output when given, else assembled.pdf in outputDir.
func assembledPath(cmd *cobra.Command, outputDir string) string {
	if flag := cmd.Flags().Lookup("output"); flag != nil && flag.Changed {
		return flag.Value.String()
	}

	return filepath.Join(outputDir, defaultAssembledName)
}

// assembleInputs expands a single directory argument into its images. The
// second result reports whether the images should be sorted by name.
func assembleInputs(args []string) ([]string, bool, error) {
	if len(args) == 1 {
		stat, statErr := os.Stat(args[0])
		if statErr == nil && stat.IsDir() {
			images, listErr := assemble.ListImages(args[0])
			if listErr != nil {
				return nil, false, listErr
			}

			if len(images) == 0 {
				return nil, false, fmt.Errorf("%w in %s", assemble.ErrNoImages, args[0])
			}

			return images, true, nil
		}
	}

	return args, false, nil
}

func printValidation(cmd *cobra.Command, report assemble.ValidationReport) {
	out := cmd.OutOrStdout()

	_, _ = fmt.Fprintf(out, "%d valid, %d invalid, %d missing images (%.2f MB)\n",
		len(report.Valid), len(report.Invalid), len(report.Missing), report.TotalMB)

	for _, recommendation := range report.Recommendations {
		_, _ = fmt.Fprintf(out, "  - %s\n", recommendation)
	}
}
