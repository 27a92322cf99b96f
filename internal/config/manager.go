package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bryanchriswhite/capshim/internal/logger"
	"github.com/bryanchriswhite/capshim/internal/policy"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g.
// CAPSHIM_CACHE_PATH for cache.path
const EnvPrefix = "CAPSHIM"

// Manager handles configuration
type Manager struct {
	configPath string
	v          *viper.Viper
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns $HOME/.config/capshim/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "capshim", "config.yaml"), nil
}

// NewManager creates a new configuration manager. A missing config file is
// created with the defaults.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	m := &Manager{
		configPath: path,
		v:          newViper(path),
	}

	if err := m.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		logger.WithComponent("config").Info().
			Str("path", m.configPath).
			Msg("Config file not found, creating new config")
		if err := m.reload(); err != nil {
			return nil, err
		}
		if err := m.Save(); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else if err := m.reload(); err != nil {
		return nil, err
	}

	cfg := m.Get()
	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Ints("allowed_workspaces", cfg.Policy.IDs).
		Int("allowed_ranges", len(cfg.Policy.Ranges)).
		Msg("Config loaded")

	return m, nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())
	return v
}

// setDefaults registers every key so env overrides and Unmarshal see it
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_pretty", d.LogPretty)

	v.SetDefault("policy.ids", d.Policy.IDs)
	v.SetDefault("policy.ranges", d.Policy.Ranges)

	v.SetDefault("capture.command", d.Capture.Command)
	v.SetDefault("capture.command_env", d.Capture.CommandEnv)
	v.SetDefault("capture.real_display_env", d.Capture.RealDisplayEnv)
	v.SetDefault("capture.display_env", d.Capture.DisplayEnv)
	v.SetDefault("capture.temp_path", d.Capture.TempPath)
	v.SetDefault("capture.timeout", d.Capture.Timeout)

	v.SetDefault("cache.path", d.Cache.Path)

	v.SetDefault("queries.shell", d.Queries.Shell)
	v.SetDefault("queries.timeout", d.Queries.Timeout)
	v.SetDefault("queries.workspace", d.Queries.Workspace)
	v.SetDefault("queries.window_title", d.Queries.WindowTitle)
	v.SetDefault("queries.window_pid", d.Queries.WindowPID)
	v.SetDefault("queries.cursor", d.Queries.Cursor)

	v.SetDefault("idle.source", d.Idle.Source)
	v.SetDefault("idle.path", d.Idle.Path)

	v.SetDefault("placeholder.x", d.Placeholder.X)
	v.SetDefault("placeholder.y", d.Placeholder.Y)
	v.SetDefault("placeholder.width", d.Placeholder.Width)
	v.SetDefault("placeholder.height", d.Placeholder.Height)

	v.SetDefault("display.name", d.Display.Name)
	v.SetDefault("display.enabled", d.Display.Enabled)

	v.SetDefault("server.socket", d.Server.Socket)
	v.SetDefault("server.port", d.Server.Port)
}

// reload decodes viper's merged view into a fresh Config
func (m *Manager) reload() error {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Policy.IDs == nil {
		cfg.Policy.IDs = []int{}
	}
	if cfg.Policy.Ranges == nil {
		cfg.Policy.Ranges = []policy.Range{}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	m.mu.Lock()
	m.config = &cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg := *m.config
	cfg.Policy.IDs = append([]int(nil), m.config.Policy.IDs...)
	cfg.Policy.Ranges = append([]policy.Range(nil), m.config.Policy.Ranges...)
	return &cfg
}

// GetViper exposes the underlying viper instance for flag binding
func (m *Manager) GetViper() *viper.Viper {
	return m.v
}

// GetConfigPath returns the path of the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// Set updates a single key and persists the result
func (m *Manager) Set(key string, value any) error {
	if !m.v.IsSet(key) {
		return fmt.Errorf("unknown config key: %s", key)
	}

	prev := m.v.Get(key)
	m.v.Set(key, value)
	if err := m.reload(); err != nil {
		m.v.Set(key, prev)
		return err
	}
	return m.Save()
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	cfg := m.Get()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// Watch reloads the configuration whenever the file changes and passes
// each valid result to fn. An invalid edit is logged and ignored.
func (m *Manager) Watch(fn func(*Config)) {
	m.v.OnConfigChange(func(e fsnotify.Event) {
		log := logger.WithComponent("config")
		if err := m.reload(); err != nil {
			log.Error().Err(err).Str("file", e.Name).Msg("Config reload failed, keeping previous config")
			return
		}
		log.Info().Str("file", e.Name).Str("op", e.Op.String()).Msg("Config reloaded")
		if fn != nil {
			fn(m.Get())
		}
	})
	m.v.WatchConfig()
}
