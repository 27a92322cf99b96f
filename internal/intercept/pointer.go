package intercept

import (
	"context"

	"github.com/bryanchriswhite/capshim/internal/logger"
	"github.com/bryanchriswhite/capshim/internal/window"
)

// QueryPointer keeps the genuine status and auxiliary fields but replaces
// the coordinates with the compositor's cursor position. Unfocused
// XWayland windows otherwise report a stale position.
func (i *Interceptor) QueryPointer(ctx context.Context, win window.Window) (window.PointerReply, error) {
	reply, err := i.delegate.QueryPointer(win)
	if err != nil {
		return reply, err
	}

	if i.cursor == nil {
		return reply, nil
	}

	pos, err := i.cursor.CursorPosition(ctx)
	if err != nil {
		logger.WithComponent("intercept").Warn().Err(err).Msg("Cursor position unavailable, keeping genuine coordinates")
		return reply, nil
	}

	reply.RootX, reply.RootY = pos.X, pos.Y
	reply.WinX, reply.WinY = pos.X, pos.Y
	return reply, nil
}
