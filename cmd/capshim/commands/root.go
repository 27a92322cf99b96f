package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/capshim/internal/app"
	"github.com/bryanchriswhite/capshim/internal/config"
	"github.com/bryanchriswhite/capshim/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	logLevel  string
	logPretty bool

	rootCmd = &cobra.Command{
		Use:   "capshim",
		Short: "capshim - consistent screen capture and activity answers for a monitored application",
		Long: `capshim sits between a monitored application and the windowing system.
It answers the application's capture, window and idle queries so that what
the application sees stays consistent with a workspace policy.

Features:
  • Fresh captures on allowed workspaces, cached snapshot elsewhere
  • Window title and pid that match the image last returned
  • Idle time from an external idle tracker
  • Cursor position from the compositor
  • HTTP bridge over a unix socket for the native preload stub
  • Persistent configuration with live reload`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := logLevel
			if level == "" {
				level = "info"
			}
			logger.Init(level, logPretty)
		},
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/capshim/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "log-pretty", false, "human-readable log output")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// loadConfig reads the config file and applies the global flags on top
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()
	withFlags(cfg)
	logger.Init(cfg.LogLevel, cfg.LogPretty)

	return configMgr, cfg, nil
}

// withFlags lays the global logging flags over cfg. Reloaded configs go
// through it too, so a flag keeps winning over the file.
func withFlags(cfg *config.Config) *config.Config {
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logPretty {
		cfg.LogPretty = true
	}
	return cfg
}

// newApp loads the config and wires every component
func newApp() (*app.App, *config.Manager, error) {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(cfg, app.Options{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return a, configMgr, nil
}
