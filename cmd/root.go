package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/disaster-gis/internal/config"
	"github.com/sells-group/disaster-gis/internal/db"
	"github.com/sells-group/disaster-gis/internal/ingest"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "disaster-gis",
	Short: "Shapefile ingestion and simplification into PostGIS",
	Long:  "Analyzes uploaded shapefiles, infers table schemas, simplifies geometries to a target point reduction, and streams features into PostGIS tables.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// openPool validates the config for command and connects to PostGIS.
func openPool(ctx context.Context, command string) (*pgxpool.Pool, error) {
	if err := cfg.Validate(command); err != nil {
		return nil, err
	}
	return db.Connect(ctx, cfg.Database.URL, db.RetryConfig{
		Attempts:       cfg.Database.ConnectAttempts,
		InitialBackoff: cfg.Database.ConnectBackoff,
	})
}

// pipelineOptions maps configuration onto the ingestion pipeline.
func pipelineOptions() ingest.Options {
	return ingest.Options{
		SampleSize:  cfg.Ingest.SampleSize,
		Calibration: cfg.Simplify.CalibrationConfig,
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
