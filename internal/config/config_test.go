package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bryanchriswhite/capshim/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewManager_CreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	m, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, path, m.GetConfigPath())

	cfg := m.Get()
	assert.Equal(t, []int{8, 9, 10}, cfg.Policy.IDs)
	assert.Empty(t, cfg.Policy.Ranges)
	assert.Equal(t, 622, cfg.Placeholder.Width)
	assert.Equal(t, 450, cfg.Placeholder.Height)
	assert.Equal(t, 5*time.Second, cfg.Queries.Timeout)
	assert.Equal(t, "file", cfg.Idle.Source)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var written Config
	require.NoError(t, yaml.Unmarshal(data, &written))
	assert.Equal(t, []int{8, 9, 10}, written.Policy.IDs)
	assert.Equal(t, "grim", written.Capture.Command)
}

func TestNewManager_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
log_level: debug
policy:
  ids: [3]
  ranges:
    - min: 20
      max: 29
queries:
  timeout: 750ms
  workspace: "echo 21"
placeholder:
  width: 800
  height: 600
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	m, err := NewManager(path)
	require.NoError(t, err)

	cfg := m.Get()
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, policy.AllowSet{IDs: []int{3}, Ranges: []policy.Range{{Min: 20, Max: 29}}}, cfg.Policy)
	assert.True(t, cfg.Policy.Contains(25))
	assert.False(t, cfg.Policy.Contains(8))
	assert.Equal(t, 750*time.Millisecond, cfg.Queries.Timeout)
	assert.Equal(t, "echo 21", cfg.Queries.Workspace)
	assert.Equal(t, 800, cfg.Placeholder.Width)

	// unset keys keep their defaults
	assert.Equal(t, "hyprctl cursorpos", cfg.Queries.Cursor)
	assert.Equal(t, "WAYLAND_DISPLAY_REAL", cfg.Capture.RealDisplayEnv)
}

func TestNewManager_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("CAPSHIM_CACHE_PATH", "/var/tmp/snap.json")
	t.Setenv("CAPSHIM_IDLE_SOURCE", "mutter")

	m, err := NewManager(path)
	require.NoError(t, err)

	cfg := m.Get()
	assert.Equal(t, "/var/tmp/snap.json", cfg.Cache.Path)
	assert.Equal(t, "mutter", cfg.Idle.Source)
}

func TestNewManager_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("idle:\n  source: carrier-pigeon\n"), 0644))

	_, err := NewManager(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("policy: [unterminated\n"), 0644))
	_, err = NewManager(path)
	assert.Error(t, err)
}

func TestManager_Set(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	require.NoError(t, err)

	require.NoError(t, m.Set("policy.ids", "1,2"))
	assert.Equal(t, []int{1, 2}, m.Get().Policy.IDs)

	require.NoError(t, m.Set("capture.timeout", "10s"))
	assert.Equal(t, 10*time.Second, m.Get().Capture.Timeout)

	assert.Error(t, m.Set("no.such.key", "x"))

	// invalid values are rolled back
	assert.Error(t, m.Set("log_level", "loud"))
	assert.Equal(t, "info", m.Get().LogLevel)

	reopened, err := NewManager(path)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, reopened.Get().Policy.IDs)
	assert.Equal(t, 10*time.Second, reopened.Get().Capture.Timeout)
}

func TestManager_GetReturnsCopy(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	cfg := m.Get()
	cfg.Policy.IDs[0] = 99
	cfg.LogLevel = "error"

	assert.Equal(t, 8, m.Get().Policy.IDs[0])
	assert.Equal(t, "info", m.Get().LogLevel)
}

func TestManager_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	require.NoError(t, err)

	changed := make(chan *Config, 4)
	m.Watch(func(cfg *Config) { changed <- cfg })

	require.NoError(t, os.WriteFile(path, []byte("policy:\n  ids: [4]\n"), 0644))

	// a truncating write may be observed before the new content lands
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changed:
			if len(cfg.Policy.IDs) == 1 && cfg.Policy.IDs[0] == 4 {
				assert.Equal(t, []int{4}, m.Get().Policy.IDs)
				return
			}
		case <-deadline:
			t.Fatal("config change not observed")
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad level", func(c *Config) { c.LogLevel = "trace" }, false},
		{"inverted range", func(c *Config) { c.Policy.Ranges = []policy.Range{{Min: 5, Max: 1}} }, false},
		{"no temp path", func(c *Config) { c.Capture.TempPath = "" }, false},
		{"negative timeout", func(c *Config) { c.Queries.Timeout = -time.Second }, false},
		{"no cache path", func(c *Config) { c.Cache.Path = "" }, false},
		{"mutter idle", func(c *Config) {
			c.Idle.Source = "mutter"
			c.Idle.Path = ""
		}, true},
		{"file idle without path", func(c *Config) { c.Idle.Path = "" }, false},
		{"negative placeholder", func(c *Config) { c.Placeholder.Width = -1 }, false},
		{"port only", func(c *Config) {
			c.Server.Socket = ""
			c.Server.Port = 8765
		}, true},
		{"no listener", func(c *Config) {
			c.Server.Socket = ""
			c.Server.Port = 0
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
