// Package intercept implements the entry points that replace the monitored
// application's windowing and idle-tracking calls. Each one keeps the
// genuine call's contract and alters only the fields it must.
package intercept

import (
	"context"

	"github.com/bryanchriswhite/capshim/internal/idle"
	"github.com/bryanchriswhite/capshim/internal/query"
	"github.com/bryanchriswhite/capshim/internal/session"
	"github.com/bryanchriswhite/capshim/internal/window"
)

// DefaultPlaceholder is reported when the genuine attribute query fails
var DefaultPlaceholder = window.Rect{X: 0, Y: 0, Width: 622, Height: 450}

// Metadata supplies the title and pid of the window in the last image
type Metadata interface {
	WindowTitle(ctx context.Context) (string, error)
	WindowPID(ctx context.Context) (int, error)
}

// Cursor reports the true pointer position from the compositor
type Cursor interface {
	CursorPosition(ctx context.Context) (query.Point, error)
}

// Interceptor holds the collaborators shared by all entry points
type Interceptor struct {
	delegate    window.Delegate
	meta        Metadata
	state       *session.State
	idle        idle.Source
	cursor      Cursor
	placeholder window.Rect
}

// Options configures an Interceptor
type Options struct {
	Delegate    window.Delegate
	Metadata    Metadata
	State       *session.State
	Idle        idle.Source
	Cursor      Cursor
	Placeholder *window.Rect
}

// New creates an Interceptor
func New(opts Options) *Interceptor {
	placeholder := DefaultPlaceholder
	if opts.Placeholder != nil {
		placeholder = *opts.Placeholder
	}
	delegate := opts.Delegate
	if delegate == nil {
		delegate = window.Unavailable{}
	}
	return &Interceptor{
		delegate:    delegate,
		meta:        opts.Metadata,
		state:       opts.State,
		idle:        opts.Idle,
		cursor:      opts.Cursor,
		placeholder: placeholder,
	}
}

// Delegate returns the genuine implementation
func (i *Interceptor) Delegate() window.Delegate {
	return i.delegate
}
