package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/activityflow/internal/activity"
	"github.com/felixgeelhaar/activityflow/internal/config"
	"github.com/felixgeelhaar/activityflow/internal/health"
	"github.com/felixgeelhaar/activityflow/internal/metrics"
	"github.com/felixgeelhaar/activityflow/internal/server"
	"github.com/felixgeelhaar/activityflow/internal/session"
	"github.com/felixgeelhaar/activityflow/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session API over HTTP",
	Long: `Start an HTTP server that hosts activity sessions for remote renderers.

Endpoints:
  /api/v1/activities                 catalog summaries
  /api/v1/sessions                   create a session (POST)
  /api/v1/sessions/{id}              current screen, delete (GET, DELETE)
  /api/v1/sessions/{id}/next|back    navigate (POST)
  /api/v1/sessions/{id}/response     answer the current screen (PUT)
  /api/v1/sessions/{id}/reload       re-resolve the activity (POST)
  /api/v1/openapi.yaml               API description
  /health/live, /health/ready        probes
  /metrics                           Prometheus metrics

Examples:
  activityflow serve
  activityflow serve --address 127.0.0.1:9000 --catalog ./catalog.yaml
`,
	Annotations: map[string]string{logsAnnotation: "stderr"},
	Args:        cobra.NoArgs,
	RunE:        runServe,
}

var (
	serveAddress         string
	serveCatalog         string
	serveShutdownTimeout time.Duration
	serveMaxSessions     int
)

func init() {
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "listen address (default from config, :8080)")
	serveCmd.Flags().StringVar(&serveCatalog, "catalog", "", "catalog file served at /api/v1/activities (default from config)")
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 0, "time to drain connections on shutdown (default from config)")
	serveCmd.Flags().IntVar(&serveMaxSessions, "max-sessions", server.DefaultLiveSessions, "sessions kept in memory; older ones are reloaded from the store")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cc, err := commandContext(cmd)
	if err != nil {
		return err
	}
	ctx := contextOf(cmd)
	logger := cc.Logger.WithComponent("serve")

	address := serveAddress
	if address == "" {
		address = cc.Config.Server.Address
	}
	shutdownTimeout := serveShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = cc.Config.Server.ShutdownTimeout
	}
	catalogPath := cc.catalogPath(serveCatalog)

	resolver, err := cc.newResolver()
	if err != nil {
		return err
	}

	dsn := config.ExpandHome(cc.Config.Store.DSN)
	store, err := cc.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	probes := health.NewProbeManager(version.GetInfo().Version)
	probes.AddChecker(health.NewStoreChecker(store, string(session.DetectDSNType(dsn))))
	if catalogPath != "" {
		probes.AddChecker(health.NewCatalogChecker(catalogPath))
	}

	factory := func() *activity.Controller { return cc.newController(resolver) }
	hub, err := server.NewHub(factory, store, serveMaxSessions, logger, cc.Metrics)
	if err != nil {
		return err
	}

	api, err := server.NewAPI(ctx, hub, resolver, catalogPath)
	if err != nil {
		return err
	}

	srv := server.NewServer(probes, server.Config{
		Address:         address,
		ShutdownTimeout: shutdownTimeout,
	},
		server.WithAPI(api),
		server.WithMetricsHandler(metrics.Handler()),
		server.WithLogger(logger),
		server.WithMetrics(cc.Metrics),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	fmt.Fprintf(cmd.ErrOrStderr(), "activityflow %s serving on %s\n", version.GetInfo().Short(), address)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", shutdownTimeout)
	if err := srv.Shutdown(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
