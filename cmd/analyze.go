package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/disaster-gis/internal/ingest"
	"github.com/sells-group/disaster-gis/internal/shapefile"
)

var (
	analyzeSampleSize int
	analyzeJSON       bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file.shp>",
	Short: "Infer column types from a shapefile's attribute table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("analyze"); err != nil {
			return err
		}

		reader, err := shapefile.Open(args[0])
		if err != nil {
			return err
		}
		defer reader.Close() //nolint:errcheck

		n := analyzeSampleSize
		if n == 0 {
			n = cfg.Ingest.SampleSize
		}
		analysis, err := ingest.Analyze(reader, ingest.ClampSampleSize(n))
		if err != nil {
			return err
		}

		if analyzeJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(analysis)
		}
		formatAnalysis(os.Stdout, analysis)
		return nil
	},
}

// formatAnalysis writes the inferred columns as a table.
func formatAnalysis(out io.Writer, a *ingest.Analysis) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Features:\t%d\n", a.TotalFeatures)
	_, _ = fmt.Fprintf(w, "Sampled:\t%d\n\n", a.SampleSize)
	_, _ = fmt.Fprintln(w, "FIELD\tTYPE")
	_, _ = fmt.Fprintln(w, "-----\t----")
	for _, c := range a.Columns {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", c.Name, c.Type.SQL())
	}
	_ = w.Flush()
}

func init() {
	analyzeCmd.Flags().IntVar(&analyzeSampleSize, "sample-size", 0, "records to sample, 20..100 (default from config)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the full analysis as JSON")
	rootCmd.AddCommand(analyzeCmd)
}
