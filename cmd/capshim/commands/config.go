package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/bryanchriswhite/capshim/internal/config"
	"github.com/bryanchriswhite/capshim/internal/policy"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or edit the capshim config file",
	Long: `Inspect or edit the config file that holds the workspace allow-set, the
capture and compositor query commands, and the bridge listener. A running
"capshim serve" picks up allow-set and logging changes without a restart.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration by section",
	Long: `Show the effective configuration after CAPSHIM_* environment overrides.
The text view groups settings by what they steer; yaml and json print the
file form.`,
	Example: `  capshim config show
  capshim config show --format yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a configuration value",
	Long: `Set a specific configuration value. Lists are comma separated and
durations use Go syntax (5s, 250ms). A value that fails validation is not
written.`,
	Example: `  # Allow fresh captures on workspaces 2 and 3
  capshim config set policy.ids 2,3

  # Use a different screenshot program
  capshim config set capture.command "grim -t jpeg"

  # Set log level
  capshim config set log_level debug`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print one configuration value",
	Long:  `Print one configuration value. Sections such as "queries" print as yaml.`,
	Example: `  capshim config get policy.ids
  capshim config get queries`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

var showFormat string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configSetCmd, configGetCmd, configPathCmd)

	configShowCmd.Flags().StringVarP(&showFormat, "format", "f", "text", "output format (text, yaml or json)")
}

func openConfig() (*config.Manager, error) {
	m, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return m, nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	m, err := openConfig()
	if err != nil {
		return err
	}
	cfg := m.Get()
	out := cmd.OutOrStdout()

	switch showFormat {
	case "text":
		return writeSections(out, m.GetConfigPath(), cfg)
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return fmt.Errorf("unsupported format: %s (use text, yaml or json)", showFormat)
}

// writeSections renders cfg grouped by the component each setting steers
func writeSections(w io.Writer, path string, cfg *config.Config) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	section := func(name string, rows ...[2]string) {
		fmt.Fprintf(tw, "%s\n", name)
		for _, r := range rows {
			fmt.Fprintf(tw, "  %s\t%s\n", r[0], r[1])
		}
		fmt.Fprintln(tw)
	}

	captureCmd := cfg.Capture.Command
	if cfg.Capture.CommandEnv != "" {
		captureCmd += fmt.Sprintf(" (unless $%s is set)", cfg.Capture.CommandEnv)
	}

	fmt.Fprintf(tw, "File\t%s\n\n", path)
	section("Policy",
		[2]string{"fresh captures on", describeAllowSet(cfg.Policy)},
	)
	section("Capture",
		[2]string{"command", captureCmd},
		[2]string{"display", fmt.Sprintf("$%s from $%s", cfg.Capture.DisplayEnv, cfg.Capture.RealDisplayEnv)},
		[2]string{"output", cfg.Capture.TempPath},
		[2]string{"timeout", durationOrNone(cfg.Capture.Timeout.String(), cfg.Capture.Timeout == 0)},
		[2]string{"snapshot", cfg.Cache.Path},
	)
	section("Queries",
		[2]string{"shell", cfg.Queries.Shell},
		[2]string{"timeout", durationOrNone(cfg.Queries.Timeout.String(), cfg.Queries.Timeout == 0)},
		[2]string{"workspace", cfg.Queries.Workspace},
		[2]string{"window title", cfg.Queries.WindowTitle},
		[2]string{"window pid", cfg.Queries.WindowPID},
		[2]string{"cursor", cfg.Queries.Cursor},
	)

	idleFrom := cfg.Idle.Source
	if cfg.Idle.Source == "file" {
		idleFrom += " " + cfg.Idle.Path
	}
	display := "disabled"
	if cfg.Display.Enabled {
		display = cfg.Display.Name
		if display == "" {
			display = "$DISPLAY"
		}
	}
	listen := "unix " + cfg.Server.Socket
	if cfg.Server.Socket == "" {
		listen = fmt.Sprintf("tcp 127.0.0.1:%d", cfg.Server.Port)
	}
	section("Windowing",
		[2]string{"idle", idleFrom},
		[2]string{"x display", display},
		[2]string{"placeholder", fmt.Sprintf("%dx%d+%d+%d", cfg.Placeholder.Width, cfg.Placeholder.Height, cfg.Placeholder.X, cfg.Placeholder.Y)},
	)
	section("Bridge",
		[2]string{"listen", listen},
		[2]string{"log level", cfg.LogLevel},
	)

	return tw.Flush()
}

func describeAllowSet(a policy.AllowSet) string {
	var parts []string
	for _, id := range a.IDs {
		parts = append(parts, fmt.Sprint(id))
	}
	for _, r := range a.Ranges {
		parts = append(parts, fmt.Sprintf("%d-%d", r.Min, r.Max))
	}
	if len(parts) == 0 {
		return "no workspace"
	}
	return "workspaces " + strings.Join(parts, ", ")
}

func durationOrNone(d string, none bool) string {
	if none {
		return "none"
	}
	return d
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	m, err := openConfig()
	if err != nil {
		return err
	}

	key, value := args[0], args[1]
	if err := m.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s = %v (saved to %s)\n", key, m.GetViper().Get(key), m.GetConfigPath())
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	m, err := openConfig()
	if err != nil {
		return err
	}

	v := m.GetViper()
	if !v.IsSet(args[0]) {
		return fmt.Errorf("configuration key not found: %s", args[0])
	}

	value := v.Get(args[0])
	if section, ok := value.(map[string]interface{}); ok {
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(section)
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	m, err := openConfig()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), m.GetConfigPath())
	return nil
}
