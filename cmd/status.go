package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/adscout/adscout-cli/internal/model"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show advert counts and recent scrape runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		counts, err := st.CountByStatus(ctx)
		if err != nil {
			return eris.Wrap(err, "status: counts")
		}

		fmt.Printf("adverts: %d active, %d expired\n\n",
			counts[model.AdvertStatusActive], counts[model.AdvertStatusExpired])

		runs, err := st.ListScrapeRuns(ctx, statusLimit)
		if err != nil {
			return eris.Wrap(err, "status: list runs")
		}

		if len(runs) == 0 {
			fmt.Println("no scrape runs recorded, run 'adscout scrape' first")
			return nil
		}

		formatRuns(os.Stdout, runs)
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(statusCmd)
}

// formatRuns writes a tabular representation of scrape runs to w.
func formatRuns(out io.Writer, runs []model.ScrapeRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tDURATION\tSEEN\tSKIPPED\tNEW\tKEPT\tEXPIRED\tERROR")

	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		errMsg := "-"
		if r.Error != "" {
			errMsg = r.Error
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			shortID(r.ID), r.Status, r.StartedAt.Format(time.RFC3339),
			dur, r.RowsSeen, r.RowsSkipped, r.Inserted, r.Reaffirmed, r.Expired, errMsg,
		)
	}
	_ = w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
