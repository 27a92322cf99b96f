// Package proc runs short-lived external commands and reports how they ended.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/bryanchriswhite/capshim/internal/logger"
)

// DefaultShell is used when neither the command nor $SHELL names one
const DefaultShell = "/bin/sh"

// Command describes a single subprocess invocation
type Command struct {
	// Path is the program to execute (looked up in PATH)
	Path string
	Args []string

	// Env holds overrides applied on top of the parent environment.
	// An empty value removes the variable.
	Env map[string]string

	// Timeout kills the process when exceeded. Zero means wait forever.
	Timeout time.Duration
}

// Shell returns a Command that runs line through shell -c
func Shell(shell, line string) Command {
	if shell == "" {
		shell = DefaultShell
	}
	return Command{Path: shell, Args: []string{"-c", line}}
}

// String renders the command for logs
func (c Command) String() string {
	return strings.TrimSpace(c.Path + " " + strings.Join(c.Args, " "))
}

// Result is the structured outcome of a finished process
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
}

// Success reports whether the process exited with status 0
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// FirstLine returns the first line of stdout without the line terminator
func (r *Result) FirstLine() string {
	out := r.Stdout
	if i := bytes.IndexByte(out, '\n'); i >= 0 {
		out = out[:i]
	}
	return strings.TrimRight(string(out), "\r")
}

// Runner executes commands. A nil error means the process ran to completion,
// whatever its exit code; start failures and timeouts are errors.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

const waitDelay = time.Second

// ErrTimeout is returned when a command exceeded its timeout
var ErrTimeout = errors.New("command timed out")

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

// NewExecRunner returns a Runner backed by os/exec
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes cmd and waits for it to exit
func (ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	log := logger.WithComponent("proc")

	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Env = mergeEnv(os.Environ(), cmd.Env)
	// grandchildren may hold the output pipes open after a kill
	c.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	log.Debug().
		Str("cmd", cmd.String()).
		Dur("duration", res.Duration).
		Err(err).
		Msg("Command finished")

	if err == nil {
		return res, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return res, fmt.Errorf("%s: %w after %v", cmd.Path, ErrTimeout, cmd.Timeout)
		}
		return res, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}

	res.ExitCode = -1
	return res, fmt.Errorf("failed to start %s: %w", cmd.Path, err)
}

// mergeEnv applies overrides to a KEY=VALUE environment list
func mergeEnv(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}

	env := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, replaced := overrides[key]; replaced {
			continue
		}
		env = append(env, kv)
	}
	for key, value := range overrides {
		if value == "" {
			continue
		}
		env = append(env, key+"="+value)
	}
	return env
}
