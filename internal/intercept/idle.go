package intercept

import (
	"context"

	"github.com/bryanchriswhite/capshim/internal/logger"
	"github.com/bryanchriswhite/capshim/internal/window"
)

// Screen saver states and kinds, as in the MIT-SCREEN-SAVER extension
const (
	ScreenSaverOff      = 0
	ScreenSaverOn       = 1
	ScreenSaverDisabled = 3

	ScreenSaverBlanked  = 0
	ScreenSaverInternal = 1
	ScreenSaverExternal = 2
)

// IdleInfo mirrors XScreenSaverInfo
type IdleInfo struct {
	Window     window.Window `json:"window"`
	State      int           `json:"state"`
	Kind       int           `json:"kind"`
	TilOrSince uint32        `json:"til_or_since"`
	Idle       uint32        `json:"idle"`
	EventMask  uint32        `json:"event_mask"`
}

// QueryIdleExtension always reports the extension as present
func (i *Interceptor) QueryIdleExtension() (eventBase, errorBase int, ok bool) {
	return 0, 0, true
}

// AllocIdleInfo returns a zeroed info block
func (i *Interceptor) AllocIdleInfo() *IdleInfo {
	return &IdleInfo{}
}

// QueryIdleInfo fills info with the idle time from the idle source. Any
// failure reports zero, which the caller reads as "user active".
func (i *Interceptor) QueryIdleInfo(ctx context.Context, drawable window.Window, info *IdleInfo) bool {
	if info == nil {
		return false
	}

	var ms uint32
	if i.idle != nil {
		d, err := i.idle.IdleTime(ctx)
		if err != nil {
			logger.WithComponent("intercept").Warn().Err(err).Msg("Idle time unavailable, reporting 0")
		} else {
			ms = uint32(d.Milliseconds())
		}
	}

	*info = IdleInfo{
		Window: drawable,
		State:  ScreenSaverOff,
		Kind:   ScreenSaverBlanked,
		Idle:   ms,
	}
	return true
}
