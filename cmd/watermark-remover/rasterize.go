package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRasterizeCommand() *cobra.Command {
	rasterizeCmd := &cobra.Command{
		Use:   "rasterize <pdf>",
		Short: "Render every page of a PDF to a numbered PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, appErr := newApp(cmd)
			if appErr != nil {
				return appErr
			}
			defer application.close()

			renderer := application.renderer()

			info, inspectErr := renderer.Inspect(cmd.Context(), args[0])
			if inspectErr != nil {
				return inspectErr
			}

			application.log.Info("%s: %d pages, %.2f MB, backend %s",
				info.FileName, info.Pages, info.SizeMB, info.Backend)

			pages, renderErr := renderer.RenderPages(cmd.Context(), args[0], application.cfg.Paths.OutputDir)
			if renderErr != nil {
				return renderErr
			}

			var rendered, blank, failed int

			for _, page := range pages {
				switch {
				case page.Err != nil:
					failed++
				case page.Blank:
					blank++
					rendered++
				default:
					rendered++
				}
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d of %d pages rendered to %s (%d blank, %d failed)\n",
				rendered, info.Pages, application.cfg.Paths.OutputDir, blank, failed)

			return nil
		},
	}

	flags := rasterizeCmd.Flags()
	flags.String("output", "", "directory for the page images")
	flags.String("backend", "", "rasterizer: ghostscript or mupdf")
	flags.Int("dpi", 0, "render resolution")
	flags.Int("workers", 0, "pages rendered concurrently")
	flags.Bool("skip-blank", false, "flag blank pages")

	return rasterizeCmd
}
