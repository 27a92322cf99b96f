package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bryanchriswhite/capshim/internal/proc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	res  *proc.Result
	err  error
	cmds []proc.Command
}

func (r *recordingRunner) Run(ctx context.Context, cmd proc.Command) (*proc.Result, error) {
	r.cmds = append(r.cmds, cmd)
	return r.res, r.err
}

func testExecutor(r proc.Runner, env map[string]string) *Executor {
	e := NewExecutor(r, ExecutorConfig{
		Command:        "grim",
		CommandEnv:     "CAPSHIM_CAPTURE_COMMAND",
		RealDisplayEnv: "WAYLAND_DISPLAY_REAL",
		DisplayEnv:     "WAYLAND_DISPLAY",
		OutputPath:     "/tmp/capshim-test.png",
		Timeout:        time.Minute,
	})
	e.getenv = func(key string) string { return env[key] }
	return e
}

func TestExecutor_BuildsCommandAndDisplay(t *testing.T) {
	r := &recordingRunner{res: &proc.Result{}}
	e := testExecutor(r, map[string]string{
		"CAPSHIM_CAPTURE_COMMAND": "grim -t png",
		"WAYLAND_DISPLAY_REAL":    "wayland-1",
		"SHELL":                   "/usr/bin/zsh",
	})

	out := e.Run(context.Background())
	require.True(t, out.Success())
	assert.Equal(t, "/tmp/capshim-test.png", out.Path)

	require.Len(t, r.cmds, 1)
	cmd := r.cmds[0]
	assert.Equal(t, "/usr/bin/zsh", cmd.Path)
	assert.Equal(t, []string{"-c", "grim -t png /tmp/capshim-test.png"}, cmd.Args)
	assert.Equal(t, map[string]string{"WAYLAND_DISPLAY": "wayland-1"}, cmd.Env)
	assert.Equal(t, time.Minute, cmd.Timeout)
}

func TestExecutor_NoRealDisplay(t *testing.T) {
	r := &recordingRunner{res: &proc.Result{}}
	e := testExecutor(r, map[string]string{})

	out := e.Run(context.Background())
	require.True(t, out.Success())

	cmd := r.cmds[0]
	assert.Equal(t, proc.DefaultShell, cmd.Path)
	assert.Equal(t, "grim /tmp/capshim-test.png", cmd.Args[1], "falls back to configured command")
	assert.Empty(t, cmd.Env)
}

func TestExecutor_Failures(t *testing.T) {
	t.Run("nonzero exit", func(t *testing.T) {
		e := testExecutor(&recordingRunner{res: &proc.Result{ExitCode: 2}}, nil)
		out := e.Run(context.Background())
		assert.False(t, out.Success())
		assert.Equal(t, 2, out.ExitCode)
	})

	t.Run("exec failure", func(t *testing.T) {
		e := testExecutor(&recordingRunner{res: &proc.Result{ExitCode: -1}, err: errors.New("no such file")}, nil)
		out := e.Run(context.Background())
		assert.False(t, out.Success())
	})

	t.Run("no command", func(t *testing.T) {
		r := &recordingRunner{res: &proc.Result{}}
		e := NewExecutor(r, ExecutorConfig{CommandEnv: "CAPSHIM_UNSET_FOR_TEST"})
		e.getenv = func(string) string { return "" }
		out := e.Run(context.Background())
		assert.ErrorIs(t, out.Err, ErrNoCommand)
		assert.Empty(t, r.cmds)
	})
}
