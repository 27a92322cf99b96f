package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bryanchriswhite/capshim/internal/window"
	"github.com/spf13/cobra"
)

var titleCmd = &cobra.Command{
	Use:   "title",
	Short: "Print the window title the application would see",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		title, err := a.Metadata.WindowTitle(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(title)
		return nil
	},
}

var pidCmd = &cobra.Command{
	Use:   "pid",
	Short: "Print the window pid the application would see",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		pid, err := a.Metadata.WindowPID(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(pid)
		return nil
	},
}

var attrsCmd = &cobra.Command{
	Use:   "attrs WINDOW",
	Short: "Show intercepted window attributes",
	Long: `Show the window attributes the application would receive. A window
the display does not know is reported with the placeholder geometry.`,
	Example: `  capshim attrs 0x1a00003`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		win, err := window.ParseID(args[0])
		if err != nil {
			return err
		}

		a, _, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		return printJSON(a.Interceptor.GetWindowAttributes(cmd.Context(), window.Window(win)))
	},
}

var (
	propOffset uint32
	propLength uint32
)

var propCmd = &cobra.Command{
	Use:   "prop WINDOW ATOM",
	Short: "Show an intercepted window property",
	Long: `Show a window property as the application would receive it. ATOM is an
atom id or name; _NET_WM_PID and names containing NAME are synthesized,
everything else comes from the display.`,
	Example: `  capshim prop 0x1a00003 _NET_WM_PID
  capshim prop 0x1a00003 WM_NAME`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		win, err := window.ParseID(args[0])
		if err != nil {
			return err
		}

		a, _, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var atom window.Atom
		if id, err := window.ParseID(args[1]); err == nil {
			atom = window.Atom(id)
		} else if atom, err = a.Interceptor.Delegate().InternAtom(args[1]); err != nil {
			return fmt.Errorf("cannot resolve atom %q: %w", args[1], err)
		}

		reply, err := a.Interceptor.GetWindowProperty(cmd.Context(), window.PropertyRequest{
			Window:   window.Window(win),
			Property: atom,
			Offset:   propOffset,
			Length:   propLength,
		})
		if err != nil {
			return err
		}

		return printJSON(struct {
			window.PropertyReply
			Text string `json:"text,omitempty"`
		}{reply, textValue(reply)})
	},
}

var pointerCmd = &cobra.Command{
	Use:     "pointer WINDOW",
	Short:   "Show the intercepted pointer position",
	Example: `  capshim pointer 0x1a00003`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		win, err := window.ParseID(args[0])
		if err != nil {
			return err
		}

		a, _, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		reply, err := a.Interceptor.QueryPointer(cmd.Context(), window.Window(win))
		if err != nil {
			return err
		}
		return printJSON(reply)
	},
}

func init() {
	rootCmd.AddCommand(titleCmd)
	rootCmd.AddCommand(pidCmd)
	rootCmd.AddCommand(attrsCmd)
	rootCmd.AddCommand(propCmd)
	rootCmd.AddCommand(pointerCmd)

	propCmd.Flags().Uint32Var(&propOffset, "offset", 0, "offset in 32-bit units")
	propCmd.Flags().Uint32Var(&propLength, "length", 1<<20, "length in 32-bit units")
}

// textValue renders 8-bit property data without its trailing NUL
func textValue(reply window.PropertyReply) string {
	if reply.Format != 8 || len(reply.Value) == 0 {
		return ""
	}
	v := reply.Value
	if v[len(v)-1] == 0 {
		v = v[:len(v)-1]
	}
	return string(v)
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
