package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bryanchriswhite/capshim/internal/logger"
	"github.com/bryanchriswhite/capshim/internal/proc"
)

// ErrNoCommand is returned when no capture command is configured
var ErrNoCommand = errors.New("no capture command configured")

// Outcome is the result of running the external capture program
type Outcome struct {
	Path     string
	ExitCode int
	Err      error
}

// Success reports whether the program produced its output file
func (o Outcome) Success() bool {
	return o.Err == nil
}

// ExecutorConfig names the environment variables and paths the executor uses
type ExecutorConfig struct {
	// Command is used when CommandEnv is unset
	Command    string
	CommandEnv string

	// RealDisplayEnv holds the display the capture program must talk to;
	// it is installed as DisplayEnv in the child.
	RealDisplayEnv string
	DisplayEnv     string

	OutputPath string
	Timeout    time.Duration
}

// Executor runs the external capture program through the user's shell
type Executor struct {
	runner proc.Runner
	cfg    ExecutorConfig
	getenv func(string) string
}

// NewExecutor creates an executor reading the process environment
func NewExecutor(runner proc.Runner, cfg ExecutorConfig) *Executor {
	return &Executor{runner: runner, cfg: cfg, getenv: os.Getenv}
}

// Run captures into the configured output path and blocks until the
// program exits. The environment is read on every call.
func (e *Executor) Run(ctx context.Context) Outcome {
	log := logger.WithComponent("capture-executor")

	command := strings.TrimSpace(e.getenv(e.cfg.CommandEnv))
	if command == "" {
		command = strings.TrimSpace(e.cfg.Command)
	}
	if command == "" {
		log.Error().Str("env", e.cfg.CommandEnv).Msg("No capture command")
		return Outcome{Path: e.cfg.OutputPath, ExitCode: -1, Err: ErrNoCommand}
	}

	line := command + " " + e.cfg.OutputPath
	cmd := proc.Shell(e.getenv("SHELL"), line)
	cmd.Timeout = e.cfg.Timeout

	if display := e.getenv(e.cfg.RealDisplayEnv); display != "" {
		cmd.Env = map[string]string{e.cfg.DisplayEnv: display}
	} else {
		log.Warn().
			Str("env", e.cfg.RealDisplayEnv).
			Msg("Real display not set, capturing with inherited display")
	}

	log.Debug().
		Str("command", line).
		Str("shell", cmd.Path).
		Msg("Running capture command")

	res, err := e.runner.Run(ctx, cmd)
	if err != nil {
		log.Error().Err(err).Msg("Capture command could not run")
		return Outcome{Path: e.cfg.OutputPath, ExitCode: -1, Err: err}
	}
	if !res.Success() {
		log.Error().
			Int("exit_code", res.ExitCode).
			Str("stderr", strings.TrimSpace(string(res.Stderr))).
			Msg("Capture command failed")
		return Outcome{
			Path:     e.cfg.OutputPath,
			ExitCode: res.ExitCode,
			Err:      fmt.Errorf("capture command exited with status %d", res.ExitCode),
		}
	}

	return Outcome{Path: e.cfg.OutputPath}
}
