// Package commands implements the cloudboard command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/catherinevee/cloudboard/internal/api"
	"github.com/catherinevee/cloudboard/internal/cli"
	"github.com/catherinevee/cloudboard/internal/credentials"
	"github.com/catherinevee/cloudboard/internal/metrics"
	"github.com/catherinevee/cloudboard/internal/session"
	"github.com/catherinevee/cloudboard/internal/shared/config"
	apierrors "github.com/catherinevee/cloudboard/internal/shared/errors"
	"github.com/catherinevee/cloudboard/internal/shared/logger"
	cbsync "github.com/catherinevee/cloudboard/internal/sync"
)

// environment carries what every command needs once flags and
// configuration are resolved
type environment struct {
	config  *config.Config
	manager *config.Manager
	client  *api.Client
	syncer  *cbsync.Syncer
	store   session.Store
	loader  *credentials.Loader
	metrics *metrics.Collector
	out     *cli.OutputFormatter
	prompt  *cli.Prompt
	log     zerolog.Logger
}

var (
	configPath   string
	outputFormat string
	noColor      bool
	logLevel     string

	// newEnvironment builds the environment; tests replace it
	newEnvironment = defaultEnvironment
	env            *environment
)

var errNotLoggedIn = errors.New("not logged in, run 'cloudboard login' first")

var rootCmd = &cobra.Command{
	Use:   "cloudboard",
	Short: "Manage cloud credentials and browse what they can see",
	Long: `cloudboard stores Azure, AWS and GCP credentials with the inventory service,
mirrors the subscriptions they can reach as projects and keeps resource groups in sync.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		format, err := cli.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		e, err := newEnvironment(cmd)
		if err != nil {
			return err
		}
		e.out.SetFormat(format)
		if noColor {
			e.out.DisableColor()
		}
		env = e
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to the configuration file")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd)
	rootCmd.AddCommand(credentialsCmd, subscriptionsCmd, resourceGroupsCmd)
	rootCmd.AddCommand(diagramCmd, serveCmd, configCmd)
}

// Execute runs the command line and returns the process exit code
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx); err != nil {
		out := cli.NewOutputFormatterTo(os.Stderr)
		if noColor {
			out.DisableColor()
		}
		out.Error("%v", err)
		return 1
	}
	return 0
}

// execute runs the command tree and releases the environment whether or not
// the command failed
func execute(ctx context.Context) error {
	env = nil
	defer func() {
		if env != nil && env.manager != nil {
			env.manager.Stop()
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

func defaultEnvironment(cmd *cobra.Command) (*environment, error) {
	manager, err := config.NewManager(configPath)
	if err != nil {
		return nil, err
	}
	effective := *manager.Get()
	cfg := &effective

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := logger.Init(cfg.Logging); err != nil {
		manager.Stop()
		return nil, err
	}
	log := logger.WithComponent("cli")

	m := metrics.NewCollector()
	client := api.NewClient(cfg.Identity.BaseURL, cfg.Inventory.BaseURL,
		api.WithMetrics(m),
		api.WithLogger(log),
	)

	return &environment{
		config:  cfg,
		manager: manager,
		client:  client,
		syncer:  cbsync.NewSyncer(client, cbsync.WithMetrics(m), cbsync.WithLogger(log)),
		store:   session.NewFileStore(config.ExpandPath(cfg.Session.TokenPath)),
		loader:  credentials.NewLoader(),
		metrics: m,
		out:     cli.NewOutputFormatterTo(cmd.OutOrStdout()),
		prompt:  cli.NewPrompt(),
		log:     log,
	}, nil
}

// requireToken returns the stored token, clearing it when it has expired
func requireToken() (string, error) {
	token, err := env.store.Get()
	if err != nil {
		return "", fmt.Errorf("failed to read session: %w", err)
	}
	if token == "" {
		return "", errNotLoggedIn
	}
	if !session.IsAuthenticated(env.store) {
		_ = env.store.Clear()
		return "", errors.New("your session has expired, run 'cloudboard login' again")
	}
	return token, nil
}

// sessionError ends the stored session when the server rejected the token
func sessionError(err error) error {
	if apierrors.StatusCode(err) == http.StatusUnauthorized {
		_ = env.store.Clear()
		return errors.New("your session has expired, run 'cloudboard login' again")
	}
	return err
}
