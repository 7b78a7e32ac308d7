package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/book-expert/pdf-watermark-remover/internal/history"
)

const defaultHistoryLimit = 20

func newHistoryCommand() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recently processed documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			application, appErr := newApp(cmd)
			if appErr != nil {
				return appErr
			}
			defer application.close()

			store, openErr := history.Open(application.cfg.Paths.HistoryDB)
			if openErr != nil {
				return openErr
			}

			defer func() {
				if closeErr := store.Close(); closeErr != nil && err == nil {
					err = closeErr
				}
			}()

			limit, _ := cmd.Flags().GetInt("limit")

			results, recentErr := store.Recent(cmd.Context(), limit)
			if recentErr != nil {
				return recentErr
			}

			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(writer, "STARTED\tINPUT\tPAGES\tCLEANED\tFAILED\tSTATUS")

			for _, result := range results {
				status := "ok"
				if !result.Success {
					status = "failed"
				}

				_, _ = fmt.Fprintf(writer, "%s\t%s\t%d\t%d\t%d\t%s\n",
					result.StartedAt.Format("2006-01-02 15:04"), result.InputPath,
					result.TotalPages, result.CleanedPages, result.FailedPages, status)
			}

			return writer.Flush()
		},
	}

	historyCmd.Flags().Int("limit", defaultHistoryLimit, "number of documents to list")
	historyCmd.Flags().String("history-db", "", "sqlite history database")

	return historyCmd
}
