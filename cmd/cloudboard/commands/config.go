package commands

import (
	"errors"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/catherinevee/cloudboard/internal/shared/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change cloudboard settings",
}

var showConfigCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runShowConfig,
}

var setConfigCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting and save it to the configuration file",
	Long: `Change a setting and save it to the configuration file.

Settable keys: ` + strings.Join(config.Settable, ", ") + `

CLOUDBOARD_* environment variables still take precedence over saved values.`,
	Example: `  cloudboard config set identity.base_url https://id.example.com
  cloudboard config set dashboard.cache_ttl 5m`,
	Args: cobra.ExactArgs(2),
	RunE: runSetConfig,
}

func init() {
	configCmd.AddCommand(showConfigCmd, setConfigCmd)
}

func runShowConfig(_ *cobra.Command, _ []string) error {
	cfg := env.config
	if handled, err := env.out.Structured(cfg); handled {
		return err
	}

	path := configPath
	if env.manager != nil {
		path = env.manager.Path()
	}
	env.out.Header("Configuration")
	env.out.Muted("file: %s", path)
	env.out.KeyValue(config.Settable, map[string]string{
		"identity.base_url":        cfg.Identity.BaseURL,
		"inventory.base_url":       cfg.Inventory.BaseURL,
		"session.token_path":       cfg.Session.TokenPath,
		"dashboard.listen_addr":    cfg.Dashboard.ListenAddr,
		"dashboard.cache_ttl":      cfg.Dashboard.CacheTTL,
		"dashboard.secure_cookies": strconv.FormatBool(cfg.Dashboard.SecureCookies),
		"logging.level":            cfg.Logging.Level,
		"logging.format":           cfg.Logging.Format,
	})
	return nil
}

func runSetConfig(_ *cobra.Command, args []string) error {
	if env.manager == nil {
		return errors.New("no configuration file in use")
	}
	key, value := args[0], args[1]

	if err := env.manager.Update(func(c *config.Config) error {
		return c.Set(key, value)
	}); err != nil {
		return err
	}
	if err := env.manager.Save(); err != nil {
		return err
	}
	env.out.Success("Set %s to %s", key, value)
	return nil
}
