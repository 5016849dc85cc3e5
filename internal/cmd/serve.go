package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/finhub/internal/api"
	"github.com/felixgeelhaar/finhub/internal/health"
	"github.com/felixgeelhaar/finhub/internal/market"
	"github.com/felixgeelhaar/finhub/internal/metrics"
	"github.com/felixgeelhaar/finhub/internal/roles"
	"github.com/felixgeelhaar/finhub/internal/server"
	"github.com/felixgeelhaar/finhub/internal/telemetry"
	"github.com/felixgeelhaar/finhub/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the market data API",
	Long: `Start the HTTP API that proxies the market data vendors, together with
Kubernetes-style health endpoints and Prometheus metrics.

Routes:
  /api/crypto, /api/forex, /api/ohlc, /api/stocks  - Market data (rate limited)
  /api/me                                          - Caller identity and role
  /api/admin/status                                - Dependency health (admin only)
  /api/openapi.json                                - API description
  /health/live, /health/ready, /health/startup     - Probes
  /metrics                                         - Prometheus metrics

The server drains connections on SIGTERM or SIGINT.

Example:
  # Start on the configured address (default :8080)
  finhub serve

  # Start on a custom address
  finhub serve --address :9090`,
	RunE: runServe,
}

var (
	serveAddress         string
	serveShutdownTimeout time.Duration
	serveAuditAll        bool
)

func init() {
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "Address to listen on (overrides server.address)")
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 0, "Maximum time to wait for connections to drain (overrides server.shutdown_timeout)")
	serveCmd.Flags().BoolVar(&serveAuditAll, "audit-all", false, "Audit every admin access decision, not only denials")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddress != "" {
		cfg.Server.Address = serveAddress
	}
	if serveShutdownTimeout > 0 {
		cfg.Server.ShutdownTimeout = serveShutdownTimeout
	}

	logger, closeLog, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	info := version.GetInfo()

	shutdownTracing, err := telemetry.InitProvider(ctx, telemetry.FromConfig(cfg.Telemetry, info.Version))
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	reg, m := metrics.NewRegistry()
	mk := market.NewClient(cfg.Upstream, market.WithMetrics(m), market.WithLogger(logger))

	store, err := openRoleStore(ctx, cfg, requestToken, m)
	if err != nil {
		return err
	}
	defer store.Close()

	audit := roles.NewJSONAuditLogger(os.Stderr, serveAuditAll)
	defer audit.Close()

	pm := health.NewProbeManager(info.Version)
	pm.AddChecker(health.NewVendorChecker(mk.Endpoints(), nil))
	pm.AddChecker(health.NewRoleStoreChecker(store))

	router, err := api.NewRouter(ctx, api.Config{
		Market:        mk,
		Verifier:      openVerifier(cfg, logger),
		Roles:         store,
		LookupTimeout: cfg.Roles.LookupTimeout,
		Audit:         audit,
		Health:        pm.Manager,
		RateLimit:     cfg.RateLimit,
		CORS:          cfg.CORS,
		Metrics:       m,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	srv := server.NewServer(pm, router, metrics.HandlerFor(reg), server.FromConfig(cfg.Server))
	listenAddr := cfg.Server.Address

	fmt.Printf("\nfinhub %s\n", info.Short())
	fmt.Printf("Listening on: %s\n\n", listenAddr)
	fmt.Printf("Identity provider: %s\n", cfg.Identity.Provider)
	fmt.Printf("Role store:        %s\n\n", store.Name())
	fmt.Printf("Press Ctrl+C to stop the server\n\n")

	logger.Info("server starting",
		"address", listenAddr,
		"identity", cfg.Identity.Provider,
		"roles", store.Name(),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		fmt.Println("\nInitiating graceful shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}

		logger.Info("server stopped")
		fmt.Println("Server stopped gracefully")
		return nil
	}
}
