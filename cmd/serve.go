package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/disaster-gis/internal/db"
	"github.com/sells-group/disaster-gis/internal/ingest"
	"github.com/sells-group/disaster-gis/internal/progress"
	"github.com/sells-group/disaster-gis/internal/runlog"
	"github.com/sells-group/disaster-gis/internal/server"
	"github.com/sells-group/disaster-gis/internal/simplify"
	"github.com/sells-group/disaster-gis/internal/upload"
)

// shutdownTimeout bounds how long in-flight uploads may finish after a
// termination signal.
const shutdownTimeout = 30 * time.Second

var (
	servePort    int
	serveMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP upload server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := openPool(ctx, "serve")
		if err != nil {
			return err
		}
		defer pool.Close()

		if serveMigrate {
			if err := db.Migrate(ctx, pool); err != nil {
				return eris.Wrap(err, "serve migrate")
			}
		}

		stager, err := upload.NewStager(cfg.Upload.TempDir)
		if err != nil {
			return err
		}
		alg, err := simplify.ParseAlgorithm(cfg.Simplify.Algorithm)
		if err != nil {
			return err
		}

		hub := progress.NewHub(progress.Options{
			Buffer: cfg.Ingest.ProgressBuffer,
			Rate:   cfg.Ingest.ProgressRate,
		})
		srv := server.New(pool, ingest.New(pool, pipelineOptions()), hub, stager, runlog.NewStore(pool), server.Options{
			AllowedOrigins:   cfg.Server.AllowedOrigins,
			MaxUploadBytes:   cfg.Server.MaxUploadMB << 20,
			SampleSize:       cfg.Ingest.SampleSize,
			DefaultAlgorithm: alg,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port), zap.String("temp_dir", stager.Root()))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			// Graceful shutdown
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply pending migrations before serving")
	rootCmd.AddCommand(serveCmd)
}
