package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager(t *testing.T) {
	t.Run("with_existing_file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.yaml")

		configContent := `
identity:
  base_url: "https://id.example.com"
inventory:
  base_url: "https://inventory.example.com"
session:
  token_path: "/tmp/cloudboard-token"
dashboard:
  listen_addr: ":9090"
  cache_ttl: "30s"
  allowed_origins: ["https://app.example.com"]
  secure_cookies: true
logging:
  level: "debug"
  format: "json"
`

		require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

		manager, err := NewManager(configPath)
		require.NoError(t, err)
		defer manager.Stop()

		config := manager.Get()
		assert.Equal(t, "https://id.example.com", config.Identity.BaseURL)
		assert.Equal(t, "https://inventory.example.com", config.Inventory.BaseURL)
		assert.Equal(t, "/tmp/cloudboard-token", config.Session.TokenPath)
		assert.Equal(t, ":9090", config.Dashboard.ListenAddr)
		assert.Equal(t, 30*time.Second, config.Dashboard.CacheTTLDuration())
		assert.Equal(t, []string{"https://app.example.com"}, config.Dashboard.AllowedOrigins)
		assert.True(t, config.Dashboard.SecureCookies)
		assert.Equal(t, "debug", config.Logging.Level)
		assert.Equal(t, "json", config.Logging.Format)
	})

	t.Run("without_file_uses_defaults", func(t *testing.T) {
		manager, err := NewManager(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		defer manager.Stop()

		config := manager.Get()
		assert.Equal(t, "http://localhost:3000", config.Identity.BaseURL)
		assert.Equal(t, "http://localhost:3001", config.Inventory.BaseURL)
		assert.Equal(t, ":8080", config.Dashboard.ListenAddr)
		assert.Equal(t, "info", config.Logging.Level)
	})

	t.Run("invalid_yaml", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(configPath, []byte("identity: ["), 0o644))

		_, err := NewManager(configPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config")
	})
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("CLOUDBOARD_IDENTITY_URL", "http://identity:3000")
	t.Setenv("CLOUDBOARD_INVENTORY_URL", "http://inventory:3001")
	t.Setenv("CLOUDBOARD_TOKEN_PATH", "/run/token")
	t.Setenv("CLOUDBOARD_LISTEN_ADDR", ":7000")
	t.Setenv("CLOUDBOARD_CACHE_TTL", "5m")
	t.Setenv("CLOUDBOARD_SECURE_COOKIES", "true")
	t.Setenv("CLOUDBOARD_LOG_LEVEL", "warn")
	t.Setenv("CLOUDBOARD_LOG_FORMAT", "json")

	manager, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	defer manager.Stop()

	config := manager.Get()
	assert.Equal(t, "http://identity:3000", config.Identity.BaseURL)
	assert.Equal(t, "http://inventory:3001", config.Inventory.BaseURL)
	assert.Equal(t, "/run/token", config.Session.TokenPath)
	assert.Equal(t, ":7000", config.Dashboard.ListenAddr)
	assert.Equal(t, 5*time.Minute, config.Dashboard.CacheTTLDuration())
	assert.True(t, config.Dashboard.SecureCookies)
	assert.Equal(t, "warn", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)
}

func TestManager_Save(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	manager, err := NewManager(configPath)
	require.NoError(t, err)
	defer manager.Stop()

	require.NoError(t, manager.Update(func(c *Config) error {
		return c.Set("dashboard.listen_addr", ":9999")
	}))
	assert.Equal(t, ":9999", manager.Get().Dashboard.ListenAddr)
	require.NoError(t, manager.Save())

	manager2, err := NewManager(configPath)
	require.NoError(t, err)
	defer manager2.Stop()

	assert.Equal(t, ":9999", manager2.Get().Dashboard.ListenAddr)
}

func TestManager_SaveSkipsEnvironmentOverrides(t *testing.T) {
	t.Setenv("CLOUDBOARD_INVENTORY_URL", "https://env.example.com")
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	manager, err := NewManager(configPath)
	require.NoError(t, err)
	defer manager.Stop()

	require.NoError(t, manager.Update(func(c *Config) error {
		return c.Set("identity.base_url", "https://id.example.com")
	}))
	assert.Equal(t, "https://env.example.com", manager.Get().Inventory.BaseURL)
	require.NoError(t, manager.Save())

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "https://id.example.com")
	assert.NotContains(t, string(data), "env.example.com")
}

func TestManager_UpdateRejectsInvalid(t *testing.T) {
	manager, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	defer manager.Stop()

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown key", key: "dashboard.theme", value: "dark"},
		{name: "bad url", key: "identity.base_url", value: "not a url"},
		{name: "bad duration", key: "dashboard.cache_ttl", value: "soon"},
		{name: "bad bool", key: "dashboard.secure_cookies", value: "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := manager.Update(func(c *Config) error { return c.Set(tt.key, tt.value) })
			assert.Error(t, err)
			assert.Equal(t, DefaultConfig().Identity.BaseURL, manager.Get().Identity.BaseURL)
			assert.Equal(t, "1m", manager.Get().Dashboard.CacheTTL)
		})
	}
}

func TestManager_OnChange(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("logging:\n  level: info\n"), 0o644))

	manager, err := NewManager(configPath)
	require.NoError(t, err)
	defer manager.Stop()

	changed := make(chan *Config, 4)
	manager.OnChange(func(c *Config) { changed <- c })

	require.NoError(t, os.WriteFile(configPath, []byte("logging:\n  level: debug\n"), 0o644))

	select {
	case c := <-changed:
		assert.Equal(t, "debug", c.Logging.Level)
	case <-time.After(5 * time.Second):
		t.Skip("file watcher did not deliver an event on this platform")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := DefaultConfig()
		return c
	}

	t.Run("valid_config", func(t *testing.T) {
		assert.NoError(t, Validate(valid()))
	})

	t.Run("invalid_identity_url", func(t *testing.T) {
		c := valid()
		c.Identity.BaseURL = "localhost:3000"
		err := Validate(c)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "identity.base_url")
	})

	t.Run("invalid_inventory_scheme", func(t *testing.T) {
		c := valid()
		c.Inventory.BaseURL = "ftp://inventory"
		err := Validate(c)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "inventory.base_url")
	})

	t.Run("invalid_cache_ttl", func(t *testing.T) {
		c := valid()
		c.Dashboard.CacheTTL = "soon"
		err := Validate(c)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid dashboard.cache_ttl")
	})

	t.Run("invalid_log_level", func(t *testing.T) {
		c := valid()
		c.Logging.Level = "loud"
		err := Validate(c)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid logging.level")
	})

	t.Run("invalid_log_format", func(t *testing.T) {
		c := valid()
		c.Logging.Format = "xml"
		err := Validate(c)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid logging.format")
	})
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".cloudboard/token"), ExpandPath("~/.cloudboard/token"))
	assert.Equal(t, "/abs/path", ExpandPath("/abs/path"))
}
