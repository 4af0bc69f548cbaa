package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/catherinevee/cloudboard/internal/shared/logger"
)

// DefaultPath is where the CLI and dashboard look for configuration
const DefaultPath = "~/.cloudboard/config.yaml"

// Config represents the complete cloudboard configuration
type Config struct {
	Identity  ServiceConfig     `json:"identity" yaml:"identity"`
	Inventory ServiceConfig     `json:"inventory" yaml:"inventory"`
	Session   SessionSettings   `json:"session" yaml:"session"`
	Dashboard DashboardSettings `json:"dashboard" yaml:"dashboard"`
	Logging   logger.Config     `json:"logging" yaml:"logging"`
}

// ServiceConfig points at one remote REST backend
type ServiceConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
}

// SessionSettings controls where the bearer token is persisted
type SessionSettings struct {
	TokenPath string `json:"token_path" yaml:"token_path"`
}

// DashboardSettings represents web dashboard settings
type DashboardSettings struct {
	ListenAddr     string   `json:"listen_addr" yaml:"listen_addr"`
	CacheTTL       string   `json:"cache_ttl" yaml:"cache_ttl"`
	AllowedOrigins []string `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
	SecureCookies  bool     `json:"secure_cookies" yaml:"secure_cookies"`
}

// CacheTTLDuration returns the parsed cache TTL. Validation has already
// rejected unparsable values.
func (d DashboardSettings) CacheTTLDuration() time.Duration {
	ttl, err := time.ParseDuration(d.CacheTTL)
	if err != nil {
		return time.Minute
	}
	return ttl
}

// Manager manages configuration with hot reload capability
type Manager struct {
	config     *Config
	file       *Config // config as stored, before environment overrides
	configPath string
	mu         sync.RWMutex
	watcher    *fsnotify.Watcher
	callbacks  []func(*Config)
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewManager creates a new configuration manager
func NewManager(configPath string) (*Manager, error) {
	configPath = ExpandPath(configPath)

	m := &Manager{
		configPath: configPath,
		callbacks:  []func(*Config){},
		stopCh:     make(chan struct{}),
	}

	if err := m.Load(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return m, nil
	}

	m.watcher = watcher

	// A missing file has nothing to watch; defaults stay in effect.
	if err := watcher.Add(configPath); err != nil {
		watcher.Close()
		m.watcher = nil
		return m, nil
	}

	go m.watchChanges()

	return m, nil
}

// Load loads or reloads the configuration from file
func (m *Manager) Load() error {
	cfg := DefaultConfig()

	data, err := os.ReadFile(m.configPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyDefaults(cfg)
	file := cfg.clone()
	applyEnvironmentOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	m.mu.Lock()
	m.config = cfg
	m.file = file
	m.mu.Unlock()
	return nil
}

// Update applies fn to the stored configuration and makes the result
// current once it validates. Call Save to persist it.
func (m *Manager) Update(fn func(*Config) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file := m.file.clone()
	if err := fn(file); err != nil {
		return err
	}
	cfg := file.clone()
	applyEnvironmentOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	m.file = file
	m.config = cfg
	return nil
}

// Get returns the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Path returns the resolved configuration file path
func (m *Manager) Path() string {
	return m.configPath
}

// Save writes the stored configuration to file. Environment overrides are
// not persisted.
func (m *Manager) Save() error {
	m.mu.RLock()
	data, err := yaml.Marshal(m.file)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// OnChange registers a callback for configuration changes
func (m *Manager) OnChange(callback func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

func (m *Manager) watchChanges() {
	log := logger.WithComponent("config")

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}

			if event.Op&fsnotify.Write == fsnotify.Write {
				log.Info().Str("path", m.configPath).Msg("configuration file changed, reloading")

				if err := m.Load(); err != nil {
					log.Error().Err(err).Msg("failed to reload configuration")
					continue
				}

				m.mu.RLock()
				config := m.config
				callbacks := append([]func(*Config){}, m.callbacks...)
				m.mu.RUnlock()

				for _, callback := range callbacks {
					callback(config)
				}
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("configuration watcher error")

		case <-m.stopCh:
			return
		}
	}
}

// Stop stops the configuration manager
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		if m.watcher != nil {
			m.watcher.Close()
		}
	})
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Identity:  ServiceConfig{BaseURL: "http://localhost:3000"},
		Inventory: ServiceConfig{BaseURL: "http://localhost:3001"},
		Session:   SessionSettings{TokenPath: "~/.cloudboard/token"},
		Dashboard: DashboardSettings{
			ListenAddr: ":8080",
			CacheTTL:   "1m",
		},
		Logging: logger.DefaultConfig(),
	}
}

func (c *Config) clone() *Config {
	out := *c
	out.Dashboard.AllowedOrigins = append([]string(nil), c.Dashboard.AllowedOrigins...)
	return &out
}

// Settable lists the keys accepted by Set
var Settable = []string{
	"identity.base_url",
	"inventory.base_url",
	"session.token_path",
	"dashboard.listen_addr",
	"dashboard.cache_ttl",
	"dashboard.secure_cookies",
	"logging.level",
	"logging.format",
}

// Set changes one setting by its dotted yaml key
func (c *Config) Set(key, value string) error {
	switch key {
	case "identity.base_url":
		c.Identity.BaseURL = value
	case "inventory.base_url":
		c.Inventory.BaseURL = value
	case "session.token_path":
		c.Session.TokenPath = value
	case "dashboard.listen_addr":
		c.Dashboard.ListenAddr = value
	case "dashboard.cache_ttl":
		c.Dashboard.CacheTTL = value
	case "dashboard.secure_cookies":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %q", key, value)
		}
		c.Dashboard.SecureCookies = b
	case "logging.level":
		c.Logging.Level = value
	case "logging.format":
		c.Logging.Format = value
	default:
		return fmt.Errorf("unknown setting %q (settable: %s)", key, strings.Join(Settable, ", "))
	}
	return nil
}

func applyDefaults(config *Config) {
	defaults := DefaultConfig()

	if config.Identity.BaseURL == "" {
		config.Identity.BaseURL = defaults.Identity.BaseURL
	}
	if config.Inventory.BaseURL == "" {
		config.Inventory.BaseURL = defaults.Inventory.BaseURL
	}
	if config.Session.TokenPath == "" {
		config.Session.TokenPath = defaults.Session.TokenPath
	}
	if config.Dashboard.ListenAddr == "" {
		config.Dashboard.ListenAddr = defaults.Dashboard.ListenAddr
	}
	if config.Dashboard.CacheTTL == "" {
		config.Dashboard.CacheTTL = defaults.Dashboard.CacheTTL
	}
	if config.Logging.Level == "" {
		config.Logging.Level = defaults.Logging.Level
	}
	if config.Logging.Format == "" {
		config.Logging.Format = defaults.Logging.Format
	}
}

// Validate validates the configuration
func Validate(config *Config) error {
	for name, raw := range map[string]string{
		"identity.base_url":  config.Identity.BaseURL,
		"inventory.base_url": config.Inventory.BaseURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid %s: %q", name, raw)
		}
	}

	if _, err := time.ParseDuration(config.Dashboard.CacheTTL); err != nil {
		return fmt.Errorf("invalid dashboard.cache_ttl: %v", err)
	}

	switch strings.ToLower(config.Logging.Level) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s", config.Logging.Level)
	}

	switch config.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging.format: %s", config.Logging.Format)
	}

	return nil
}

func applyEnvironmentOverrides(config *Config) {
	if v := os.Getenv("CLOUDBOARD_IDENTITY_URL"); v != "" {
		config.Identity.BaseURL = v
	}
	if v := os.Getenv("CLOUDBOARD_INVENTORY_URL"); v != "" {
		config.Inventory.BaseURL = v
	}
	if v := os.Getenv("CLOUDBOARD_TOKEN_PATH"); v != "" {
		config.Session.TokenPath = v
	}
	if v := os.Getenv("CLOUDBOARD_LISTEN_ADDR"); v != "" {
		config.Dashboard.ListenAddr = v
	}
	if v := os.Getenv("CLOUDBOARD_CACHE_TTL"); v != "" {
		config.Dashboard.CacheTTL = v
	}
	if v := os.Getenv("CLOUDBOARD_SECURE_COOKIES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Dashboard.SecureCookies = b
		}
	}
	if v := os.Getenv("CLOUDBOARD_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("CLOUDBOARD_LOG_FORMAT"); v != "" {
		config.Logging.Format = v
	}
}

// ExpandPath resolves a leading ~ to the user's home directory
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
