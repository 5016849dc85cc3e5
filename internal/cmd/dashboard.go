package cmd

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/finhub/internal/api"
	"github.com/felixgeelhaar/finhub/internal/guard"
	"github.com/felixgeelhaar/finhub/internal/health"
	"github.com/felixgeelhaar/finhub/internal/market"
	"github.com/felixgeelhaar/finhub/internal/metrics"
	"github.com/felixgeelhaar/finhub/internal/session"
	"github.com/felixgeelhaar/finhub/internal/telemetry"
	"github.com/felixgeelhaar/finhub/internal/tui"
	"github.com/felixgeelhaar/finhub/internal/version"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Open the terminal dashboard",
	Long: `Open the terminal dashboard.

You sign in with the configured identity provider. Your role is read from
the role store; the Admin view is only reachable with role "admin".

By default market data comes from a running finhub API (dashboard.api_url).
With --embedded the dashboard queries the vendors itself.

Logs are written to log.file since the terminal belongs to the dashboard.

Example:
  # Against a local API
  finhub dashboard --api-url http://localhost:8080

  # Standalone
  finhub dashboard --embedded`,
	RunE: runDashboard,
}

var (
	dashboardEmbedded bool
	dashboardAPIURL   string
	dashboardTheme    string
)

func init() {
	dashboardCmd.Flags().BoolVar(&dashboardEmbedded, "embedded", false, "Query market vendors directly instead of a finhub API")
	dashboardCmd.Flags().StringVar(&dashboardAPIURL, "api-url", "", "finhub API base URL (overrides dashboard.api_url)")
	dashboardCmd.Flags().StringVar(&dashboardTheme, "theme", "", "Color theme: dark or light (overrides dashboard.theme)")

	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dashboardAPIURL != "" {
		cfg.Dashboard.APIURL = dashboardAPIURL
	}
	if dashboardTheme != "" {
		cfg.Dashboard.Theme = dashboardTheme
	}

	logger, closeLog, err := newLogger(cfg, true)
	if err != nil {
		return err
	}
	defer closeLog()

	shutdownTracing, err := telemetry.InitProvider(ctx, telemetry.FromConfig(cfg.Telemetry, version.GetInfo().Version))
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	provider, err := openIdentity(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer provider.Close()

	_, m := metrics.NewRegistry()

	store, err := openRoleStore(ctx, cfg, provider.IDToken, m)
	if err != nil {
		return err
	}
	defer store.Close()

	resolver := session.NewResolver(provider, store,
		session.WithLookupTimeout(cfg.Roles.LookupTimeout),
		session.WithLogger(logger),
		session.WithMetrics(m),
	)
	g := guard.New(guard.DefaultRegistry(), guard.WithMetrics(m), guard.WithLogger(logger))

	var (
		source api.MarketSource
		status tui.StatusSource
	)
	if dashboardEmbedded {
		mk := market.NewClient(cfg.Upstream, market.WithMetrics(m), market.WithLogger(logger))
		hm := health.NewManager()
		hm.AddChecker(health.NewVendorChecker(mk.Endpoints(), nil))
		hm.AddChecker(health.NewRoleStoreChecker(store))
		source = mk
		status = tui.StatusFunc(func(ctx context.Context) (*api.StatusReport, error) {
			return api.Report(ctx, hm), nil
		})
	} else {
		client := api.NewClient(cfg.Dashboard.APIURL, provider.IDToken, nil)
		source, status = client, client
	}

	model, err := tui.New(ctx, tui.Config{
		Resolver:      resolver,
		Guard:         g,
		Market:        source,
		Accounts:      provider,
		Status:        status,
		Logger:        logger,
		Theme:         tui.ParseTheme(cfg.Dashboard.Theme),
		CryptoRefresh: cfg.Dashboard.CryptoRefresh,
		ForexRefresh:  cfg.Dashboard.ForexRefresh,
	})
	if err != nil {
		return err
	}
	defer model.Close()

	logger.Info("dashboard starting", "embedded", dashboardEmbedded, "identity", provider.Name(), "roles", store.Name())

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("dashboard: %w", err)
	}
	return model.Err()
}
