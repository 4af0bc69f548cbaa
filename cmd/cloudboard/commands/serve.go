package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/catherinevee/cloudboard/internal/cache"
	"github.com/catherinevee/cloudboard/internal/dashboard"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web dashboard",
	Long: `Start the web dashboard. Changes to the cache TTL and log level in the
configuration file are applied without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "Listen address (defaults to dashboard.listen_addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := env.config
	addr := serveAddr
	if addr == "" {
		addr = cfg.Dashboard.ListenAddr
	}

	srv, err := dashboard.NewServer(dashboard.Options{
		Client:         env.client,
		Syncer:         env.syncer,
		Cache:          cache.NewQueryCache(cache.NewTTLCache(cfg.Dashboard.CacheTTLDuration(), 1000, env.metrics)),
		Metrics:        env.metrics,
		Logger:         env.log,
		AllowedOrigins: cfg.Dashboard.AllowedOrigins,
		SecureCookies:  cfg.Dashboard.SecureCookies,
	})
	if err != nil {
		return fmt.Errorf("failed to create dashboard: %w", err)
	}
	if env.manager != nil {
		env.manager.OnChange(srv.ApplyConfig)
	}

	env.out.Info("Dashboard available at http://%s", displayAddr(addr))
	env.out.Muted("Press Ctrl+C to stop the server")
	return srv.ListenAndServe(cmd.Context(), addr)
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
