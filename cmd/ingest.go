package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/disaster-gis/internal/db"
	"github.com/sells-group/disaster-gis/internal/ingest"
	"github.com/sells-group/disaster-gis/internal/mapping"
	"github.com/sells-group/disaster-gis/internal/progress"
	"github.com/sells-group/disaster-gis/internal/runlog"
	"github.com/sells-group/disaster-gis/internal/shapefile"
	"github.com/sells-group/disaster-gis/internal/simplify"
)

// mappingFile is the on-disk form of a column mapping:
//
//	columns:
//	  - column: nama_desa
//	    mode: shapefile
//	    source: NAMOBJ
//	  - column: kode
//	    mode: auto
//	    auto: {mode: sequence, start_from: 100, increment: 5}
type mappingFile struct {
	Columns []mapping.Column `yaml:"columns"`
}

func loadMappingFile(path string) ([]mapping.Column, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read mapping file %s", path)
	}
	var mf mappingFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, eris.Wrapf(mapping.ErrInvalidMapping, "parse %s: %v", path, err)
	}
	if len(mf.Columns) == 0 {
		return nil, eris.Wrapf(mapping.ErrInvalidMapping, "%s has no columns", path)
	}
	return mf.Columns, nil
}

// simplifyFlags are shared by ingest and simplify.
type simplifyFlags struct {
	target    float64
	algorithm string
	prevent   bool
}

func (f *simplifyFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.target, "target", 0, "maximum share of points to remove, in percent (0 disables simplification)")
	cmd.Flags().StringVar(&f.algorithm, "algorithm", "", "douglas-peucker or visvalingam (default from config)")
	cmd.Flags().BoolVar(&f.prevent, "prevent-shape-removal", true, "never reduce a ring below four points")
}

func (f *simplifyFlags) config() (*simplify.Config, error) {
	name := f.algorithm
	if name == "" {
		name = cfg.Simplify.Algorithm
	}
	alg, err := simplify.ParseAlgorithm(name)
	if err != nil {
		return nil, err
	}
	c := &simplify.Config{Algorithm: alg, TargetPercentage: f.target, PreventShapeRemoval: f.prevent}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// logReporter writes progress events to the global logger.
func logReporter(table string) progress.Reporter {
	log := zap.L().With(zap.String("component", "cmd.ingest"), zap.String("table", table))
	return progress.ReporterFunc(func(ev progress.Event) {
		log.Info("progress",
			zap.String("phase", string(ev.Phase)),
			zap.Int("inserted", ev.InsertedCount),
			zap.Int("total", ev.TotalFeatures),
			zap.Float64("percentage", ev.Percentage),
		)
	})
}

var (
	ingestTable    string
	ingestNewTable bool
	ingestMapping  string
	ingestGeomCol  string
	ingestSimplify simplifyFlags
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.shp>",
	Short: "Stream a shapefile into a PostGIS table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		table, err := db.ParseTable(ingestTable)
		if err != nil {
			return err
		}
		var mappings []mapping.Column
		if ingestMapping != "" {
			if mappings, err = loadMappingFile(ingestMapping); err != nil {
				return err
			}
		}
		simplifyCfg, err := ingestSimplify.config()
		if err != nil {
			return err
		}

		pool, err := openPool(ctx, "ingest")
		if err != nil {
			return err
		}
		defer pool.Close()

		reader, err := shapefile.Open(args[0])
		if err != nil {
			return err
		}

		sum, runErr := ingest.New(pool, pipelineOptions()).Run(ctx, ingest.Request{
			Table:          table,
			Source:         reader,
			Mappings:       mappings,
			Simplify:       simplifyCfg,
			NewTable:       ingestNewTable,
			GeometryColumn: ingestGeomCol,
			Reporter:       logReporter(table.String()),
			Release:        func() { _ = reader.Close() },
		})

		if _, err := runlog.NewStore(pool).Record(ctx, sum); err != nil {
			zap.L().Warn("run history not recorded", zap.Error(err))
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			return eris.Wrap(err, "ingest: write summary")
		}
		return runErr
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTable, "table", "", "destination table, optionally schema-qualified")
	ingestCmd.Flags().BoolVar(&ingestNewTable, "new-table", false, "create the table from inferred column types first")
	ingestCmd.Flags().StringVar(&ingestMapping, "mapping", "", "YAML column mapping file (default maps every field)")
	ingestCmd.Flags().StringVar(&ingestGeomCol, "geometry-column", ingest.GeometryColumn, "geometry column name")
	ingestSimplify.register(ingestCmd)
	_ = ingestCmd.MarkFlagRequired("table")
	rootCmd.AddCommand(ingestCmd)
}
