// Package query asks the compositor about the active workspace, window and
// cursor by running short external commands and parsing their first line.
package query

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bryanchriswhite/capshim/internal/proc"
)

// ErrNoOutput is returned when a query command printed nothing usable
var ErrNoOutput = errors.New("query produced no output")

// Commands holds the shell command lines for each query
type Commands struct {
	Workspace   string
	WindowTitle string
	WindowPID   string
	Cursor      string
}

// Point is a cursor position in root coordinates
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Adapter runs query commands through a proc.Runner
type Adapter struct {
	runner   proc.Runner
	shell    string
	timeout  time.Duration
	commands Commands
}

// NewAdapter creates a query adapter
func NewAdapter(runner proc.Runner, shell string, timeout time.Duration, commands Commands) *Adapter {
	return &Adapter{
		runner:   runner,
		shell:    shell,
		timeout:  timeout,
		commands: commands,
	}
}

// WorkspaceID returns the id of the active workspace
func (a *Adapter) WorkspaceID(ctx context.Context) (int, error) {
	line, err := a.firstLine(ctx, "workspace", a.commands.Workspace)
	if err != nil {
		return 0, err
	}
	return ParseLeadingInt(line)
}

// WindowTitle returns the title of the active window
func (a *Adapter) WindowTitle(ctx context.Context) (string, error) {
	return a.firstLine(ctx, "window title", a.commands.WindowTitle)
}

// WindowPID returns the process id owning the active window
func (a *Adapter) WindowPID(ctx context.Context) (int, error) {
	line, err := a.firstLine(ctx, "window pid", a.commands.WindowPID)
	if err != nil {
		return 0, err
	}
	return ParseLeadingInt(line)
}

// CursorPosition returns the pointer position as reported by the compositor
func (a *Adapter) CursorPosition(ctx context.Context) (Point, error) {
	line, err := a.firstLine(ctx, "cursor", a.commands.Cursor)
	if err != nil {
		return Point{}, err
	}
	return ParsePoint(line)
}

func (a *Adapter) firstLine(ctx context.Context, what, line string) (string, error) {
	if strings.TrimSpace(line) == "" {
		return "", fmt.Errorf("%s query: no command configured", what)
	}

	cmd := proc.Shell(a.shell, line)
	cmd.Timeout = a.timeout

	res, err := a.runner.Run(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("%s query: %w", what, err)
	}
	if !res.Success() {
		return "", fmt.Errorf("%s query exited with status %d", what, res.ExitCode)
	}

	first := res.FirstLine()
	if first == "" {
		return "", fmt.Errorf("%s query: %w", what, ErrNoOutput)
	}
	return first, nil
}

// ParseLeadingInt parses the integer at the start of s, ignoring leading
// whitespace and anything after the digits.
func ParseLeadingInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) {
		c := s[end]
		if (c == '-' || c == '+') && end == 0 {
			end++
			continue
		}
		if c < '0' || c > '9' {
			break
		}
		end++
	}

	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, fmt.Errorf("no integer in %q", s)
	}
	return n, nil
}

// ParsePoint parses an "X, Y" position
func ParsePoint(s string) (Point, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return Point{}, fmt.Errorf("malformed position %q", s)
	}

	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return Point{}, fmt.Errorf("malformed x in %q: %w", s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return Point{}, fmt.Errorf("malformed y in %q: %w", s, err)
	}
	return Point{X: x, Y: y}, nil
}
