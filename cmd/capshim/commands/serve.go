package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/capshim/internal/api"
	"github.com/bryanchriswhite/capshim/internal/config"
	"github.com/bryanchriswhite/capshim/internal/logger"
	"github.com/spf13/cobra"
)

var (
	serveSocket string
	servePort   int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the capshim bridge",
	Long: `Start the HTTP bridge used by the native preload stub.

The bridge listens on a unix socket (or a localhost TCP port) and exposes
capture, window metadata, attribute, property, pointer and idle calls.
Changes to the workspace allow-set in the config file apply immediately.`,
	Example: `  # Start on the configured socket
  capshim serve

  # Start on a custom socket
  capshim serve --socket /run/user/1000/capshim.sock

  # Start on a TCP port instead of a socket
  capshim serve --socket "" --port 8765

  # Start with debug logging
  capshim serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveSocket, "socket", "", "unix socket path (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "TCP port on localhost, used when the socket is empty")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	a, configMgr, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := configMgr.Get()
	socket, port := cfg.Server.Socket, cfg.Server.Port
	if cmd.Flags().Changed("socket") {
		socket = serveSocket
	}
	if cmd.Flags().Changed("port") {
		port = servePort
	}

	listener, err := api.Listen(socket, port)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	if socket != "" {
		defer os.Remove(socket)
	}

	// Hot-reload the allow-set and log settings
	configMgr.Watch(func(cfg *config.Config) {
		a.Apply(withFlags(cfg))
	})

	server := api.NewServer(a)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("listen", listener.Addr().String()).
		Ints("allowed_workspaces", cfg.Policy.IDs).
		Msg("capshim is running")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
