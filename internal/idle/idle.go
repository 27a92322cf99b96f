// Package idle reports how long the user has been idle.
package idle

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

// Source reports the current idle duration
type Source interface {
	IdleTime(ctx context.Context) (time.Duration, error)
}

// FileSource reads idle milliseconds written by an external idle tracker.
// A missing file means the user is active.
type FileSource struct {
	Path string
}

// NewFileSource creates a file-backed idle source
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// IdleTime returns the idle duration stored in the signal file
func (s *FileSource) IdleTime(ctx context.Context) (time.Duration, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read idle file: %w", err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, nil
	}
	ms, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed idle file %s: %w", s.Path, err)
	}
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Mutter IdleMonitor D-Bus endpoint
const (
	idleMonitorDestination = "org.gnome.Mutter.IdleMonitor"
	idleMonitorObjectPath  = "/org/gnome/Mutter/IdleMonitor/Core"
	idleMonitorInterface   = "org.gnome.Mutter.IdleMonitor"
	idleMonitorMethod      = idleMonitorInterface + ".GetIdletime"
)

// MutterSource asks GNOME's Mutter IdleMonitor over the session bus
type MutterSource struct {
	connect func() (*dbus.Conn, error)
}

// NewMutterSource creates a D-Bus backed idle source
func NewMutterSource() *MutterSource {
	return &MutterSource{connect: dbus.SessionBus}
}

// IdleTime returns Mutter's idle time
func (s *MutterSource) IdleTime(ctx context.Context) (time.Duration, error) {
	conn, err := s.connect()
	if err != nil {
		return 0, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	var ms uint64
	obj := conn.Object(idleMonitorDestination, dbus.ObjectPath(idleMonitorObjectPath))
	if err := obj.CallWithContext(ctx, idleMonitorMethod, 0).Store(&ms); err != nil {
		return 0, fmt.Errorf("failed to query idle monitor: %w", err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// NewSource builds the source named by kind ("file" or "mutter")
func NewSource(kind, path string) (Source, error) {
	switch strings.ToLower(kind) {
	case "", "file":
		return NewFileSource(path), nil
	case "mutter", "dbus":
		return NewMutterSource(), nil
	default:
		return nil, fmt.Errorf("unknown idle source: %s", kind)
	}
}
