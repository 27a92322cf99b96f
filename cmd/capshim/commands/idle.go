package commands

import (
	"fmt"
	"time"

	"github.com/bryanchriswhite/capshim/internal/window"
	"github.com/spf13/cobra"
)

var idleJSON bool

var idleCmd = &cobra.Command{
	Use:   "idle [DRAWABLE]",
	Short: "Show the idle time the application would see",
	Long: `Show the idle information the application's screen saver query would
return. The value comes from the configured idle source; a missing idle file
reads as an active user.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIdle,
}

func init() {
	rootCmd.AddCommand(idleCmd)

	idleCmd.Flags().BoolVar(&idleJSON, "json", false, "print the full info block as JSON")
}

func runIdle(cmd *cobra.Command, args []string) error {
	var drawable window.Window
	if len(args) == 1 {
		id, err := window.ParseID(args[0])
		if err != nil {
			return err
		}
		drawable = window.Window(id)
	}

	a, _, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	info := a.Interceptor.AllocIdleInfo()
	if !a.Interceptor.QueryIdleInfo(cmd.Context(), drawable, info) {
		return fmt.Errorf("idle info unavailable")
	}

	if idleJSON {
		return printJSON(info)
	}
	fmt.Println(time.Duration(info.Idle) * time.Millisecond)
	return nil
}
