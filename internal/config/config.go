package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bryanchriswhite/capshim/internal/policy"
	"github.com/bryanchriswhite/capshim/internal/window"
)

// Config represents the application configuration
type Config struct {
	LogLevel  string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty bool   `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`

	// Policy lists the workspaces where fresh captures are permitted
	Policy policy.AllowSet `json:"policy" yaml:"policy" mapstructure:"policy"`

	Capture     CaptureConfig `json:"capture" yaml:"capture" mapstructure:"capture"`
	Cache       CacheConfig   `json:"cache" yaml:"cache" mapstructure:"cache"`
	Queries     QueryConfig   `json:"queries" yaml:"queries" mapstructure:"queries"`
	Idle        IdleConfig    `json:"idle" yaml:"idle" mapstructure:"idle"`
	Placeholder window.Rect   `json:"placeholder" yaml:"placeholder" mapstructure:"placeholder"`
	Display     DisplayConfig `json:"display" yaml:"display" mapstructure:"display"`
	Server      ServerConfig  `json:"server" yaml:"server" mapstructure:"server"`
}

// CaptureConfig controls the external capture program
type CaptureConfig struct {
	// Command is used when the CommandEnv variable is unset
	Command        string        `json:"command" yaml:"command" mapstructure:"command"`
	CommandEnv     string        `json:"command_env" yaml:"command_env" mapstructure:"command_env"`
	RealDisplayEnv string        `json:"real_display_env" yaml:"real_display_env" mapstructure:"real_display_env"`
	DisplayEnv     string        `json:"display_env" yaml:"display_env" mapstructure:"display_env"`
	TempPath       string        `json:"temp_path" yaml:"temp_path" mapstructure:"temp_path"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// CacheConfig locates the snapshot record
type CacheConfig struct {
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// QueryConfig holds the compositor query commands
type QueryConfig struct {
	Shell       string        `json:"shell" yaml:"shell" mapstructure:"shell"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	Workspace   string        `json:"workspace" yaml:"workspace" mapstructure:"workspace"`
	WindowTitle string        `json:"window_title" yaml:"window_title" mapstructure:"window_title"`
	WindowPID   string        `json:"window_pid" yaml:"window_pid" mapstructure:"window_pid"`
	Cursor      string        `json:"cursor" yaml:"cursor" mapstructure:"cursor"`
}

// IdleConfig selects where idle time comes from
type IdleConfig struct {
	Source string `json:"source" yaml:"source" mapstructure:"source"`
	Path   string `json:"path" yaml:"path" mapstructure:"path"`
}

// DisplayConfig selects the X display used for genuine calls
type DisplayConfig struct {
	// Name is an X display such as ":0"; empty means $DISPLAY
	Name    string `json:"name" yaml:"name" mapstructure:"name"`
	Enabled bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
}

// ServerConfig controls the bridge listener
type ServerConfig struct {
	// Socket is a unix socket path; when empty Port is used on localhost
	Socket string `json:"socket" yaml:"socket" mapstructure:"socket"`
	Port   int    `json:"port" yaml:"port" mapstructure:"port"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Policy: policy.AllowSet{
			IDs:    []int{8, 9, 10},
			Ranges: []policy.Range{},
		},
		Capture: CaptureConfig{
			Command:        "grim",
			CommandEnv:     "CAPSHIM_CAPTURE_COMMAND",
			RealDisplayEnv: "WAYLAND_DISPLAY_REAL",
			DisplayEnv:     "WAYLAND_DISPLAY",
			TempPath:       filepath.Join(os.TempDir(), "capshim-capture.png"),
		},
		Cache: CacheConfig{
			Path: defaultCachePath(),
		},
		Queries: QueryConfig{
			Shell:       "/bin/sh",
			Timeout:     5 * time.Second,
			Workspace:   "hyprctl activeworkspace -j | jq -r '.id'",
			WindowTitle: "hyprctl activewindow -j | jq -r '.title'",
			WindowPID:   "hyprctl activewindow -j | jq -r '.pid'",
			Cursor:      "hyprctl cursorpos",
		},
		Idle: IdleConfig{
			Source: "file",
			Path:   filepath.Join(os.TempDir(), "capshim-idle-ms"),
		},
		Placeholder: window.Rect{X: 0, Y: 0, Width: 622, Height: 450},
		Display: DisplayConfig{
			Enabled: true,
		},
		Server: ServerConfig{
			Socket: defaultSocketPath(),
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s (use: debug, info, warn, error)", c.LogLevel)
	}

	for _, r := range c.Policy.Ranges {
		if r.Min > r.Max {
			return fmt.Errorf("invalid workspace range %d-%d", r.Min, r.Max)
		}
	}

	if c.Capture.TempPath == "" {
		return fmt.Errorf("capture temp path cannot be empty")
	}
	if c.Capture.Timeout < 0 || c.Queries.Timeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}
	if c.Cache.Path == "" {
		return fmt.Errorf("cache path cannot be empty")
	}

	switch c.Idle.Source {
	case "file", "mutter", "dbus":
	default:
		return fmt.Errorf("invalid idle source: %s (use: file, mutter)", c.Idle.Source)
	}
	if c.Idle.Source == "file" && c.Idle.Path == "" {
		return fmt.Errorf("idle file path cannot be empty")
	}

	if c.Placeholder.Width < 0 || c.Placeholder.Height < 0 {
		return fmt.Errorf("placeholder dimensions cannot be negative")
	}

	if c.Server.Socket == "" && (c.Server.Port < 1 || c.Server.Port > 65535) {
		return fmt.Errorf("server needs a socket path or a port between 1 and 65535, got %d", c.Server.Port)
	}

	return nil
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "capshim", "snapshot.json")
}

func defaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "capshim.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("capshim-%d.sock", os.Getuid()))
}
