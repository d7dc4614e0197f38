package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/disaster-gis/internal/ingest"
	"github.com/sells-group/disaster-gis/internal/shapefile"
	"github.com/sells-group/disaster-gis/internal/simplify"
)

var (
	simplifyOpts simplifyFlags
	simplifyJSON bool
)

var simplifyCmd = &cobra.Command{
	Use:   "simplify <file.shp>",
	Short: "Preview geometry simplification without writing anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("simplify"); err != nil {
			return err
		}
		if simplifyOpts.target <= 0 {
			return eris.New("simplify: --target must be greater than 0")
		}
		sc, err := simplifyOpts.config()
		if err != nil {
			return err
		}

		reader, err := shapefile.Open(args[0])
		if err != nil {
			return err
		}
		defer reader.Close() //nolint:errcheck

		report, err := ingest.Preview(reader, *sc, simplify.NewCalibrator(cfg.Simplify.CalibrationConfig))
		if err != nil {
			return err
		}

		if simplifyJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		formatPreview(os.Stdout, report)
		return nil
	},
}

// formatPreview writes the overall reduction followed by any features that
// could not be decoded.
func formatPreview(out io.Writer, r *ingest.PreviewReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Algorithm:\t%s\n", r.Config.Algorithm)
	_, _ = fmt.Fprintf(w, "Target:\t%.1f%%\n", r.Config.TargetPercentage)
	_, _ = fmt.Fprintf(w, "Features:\t%d (%d simplified)\n", r.TotalFeatures, r.SimplifiedCount)
	_, _ = fmt.Fprintf(w, "Points:\t%d -> %d\n", r.OriginalPoints, r.SimplifiedPoints)
	_, _ = fmt.Fprintf(w, "Reduction:\t%.1f%%\n", r.ReductionPercent)
	for _, f := range r.Features {
		if f.Error != "" {
			_, _ = fmt.Fprintf(w, "  feature %d:\t%s\n", f.Ordinal, f.Error)
		}
	}
	_ = w.Flush()
}

func init() {
	simplifyOpts.register(simplifyCmd)
	simplifyCmd.Flags().BoolVar(&simplifyJSON, "json", false, "print per-feature results as JSON")
	rootCmd.AddCommand(simplifyCmd)
}
