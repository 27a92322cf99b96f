package commands

import (
	"errors"
	"fmt"

	"github.com/bryanchriswhite/capshim/internal/cache"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show policy and snapshot state",
	Long: `Show the active workspace, whether it allows a fresh capture, and the
metadata of the cached snapshot.`,
	Args: cobra.NoArgs,
	RunE: runState,
}

var clearCache bool

func init() {
	rootCmd.AddCommand(stateCmd)

	stateCmd.Flags().BoolVar(&clearCache, "clear-cache", false, "delete the cached snapshot")
}

func runState(cmd *cobra.Command, args []string) error {
	a, _, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if clearCache {
		if err := a.Store.Clear(); err != nil {
			return err
		}
		fmt.Printf("Cleared %s\n", a.Store.Path())
		return nil
	}

	ctx := cmd.Context()
	out := map[string]interface{}{
		"allow_set": a.Gate.AllowSet(),
		"allowed":   a.Gate.Allowed(ctx),
		"cache":     a.Store.Path(),
	}
	if id, err := a.Queries.WorkspaceID(ctx); err == nil {
		out["workspace"] = id
	} else {
		out["workspace_error"] = err.Error()
	}

	meta, err := a.Store.LoadMeta()
	switch {
	case err == nil:
		out["snapshot"] = meta
	case errors.Is(err, cache.ErrNotFound):
		out["snapshot"] = nil
	default:
		out["snapshot_error"] = err.Error()
	}

	return printJSON(out)
}
