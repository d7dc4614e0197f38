package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/disaster-gis/internal/runlog"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent ingestion runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx, "runs")
		if err != nil {
			return err
		}
		defer pool.Close()

		runs, err := runlog.NewStore(pool).Recent(ctx, runsLimit)
		if err != nil {
			return eris.Wrap(err, "runs")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []runlog.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTABLE\tSTATE\tINSERTED\tERRORS\tREDUCTION\tFINISHED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-----\t-----\t--------\t------\t---------\t--------\t--------")

	for _, r := range runs {
		reduction := "-"
		if r.ReductionPercent != nil {
			reduction = fmt.Sprintf("%.1f%%", *r.ReductionPercent)
		}
		table := r.Table
		if len(table) > 30 {
			table = table[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d/%d\t%d\t%s\t%s\t%s\n",
			r.ID,
			table,
			r.State,
			r.InsertedCount, r.TotalFeatures,
			r.ErrorCount,
			reduction,
			r.FinishedAt.Format("2006-01-02 15:04"),
			(time.Duration(r.DurationMS) * time.Millisecond).Round(time.Millisecond).String(),
		)
	}
	_ = w.Flush()
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", runlog.DefaultLimit, "max number of runs to display")
	rootCmd.AddCommand(runsCmd)
}
