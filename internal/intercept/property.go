package intercept

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/bryanchriswhite/capshim/internal/logger"
	"github.com/bryanchriswhite/capshim/internal/window"
)

const pidProperty = "_NET_WM_PID"

// GetWindowProperty passes every property through untouched except the
// window pid and name-like properties, which are synthesized from the
// metadata provider.
func (i *Interceptor) GetWindowProperty(ctx context.Context, req window.PropertyRequest) (window.PropertyReply, error) {
	log := logger.WithComponent("intercept")

	name, err := i.delegate.AtomName(req.Property)
	if err != nil {
		log.Debug().Err(err).Uint32("atom", uint32(req.Property)).Msg("Atom name unknown, passing through")
		return i.delegate.GetProperty(req)
	}

	switch {
	case name == pidProperty:
		pid, err := i.meta.WindowPID(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Window pid unavailable, reporting 0")
			pid = 0
		}
		log.Debug().Int("pid", pid).Msg("Synthesized window pid")

		value := make([]byte, 4)
		binary.LittleEndian.PutUint32(value, uint32(pid))
		return window.PropertyReply{
			Format: 32,
			NItems: 1,
			Value:  value,
		}, nil

	case strings.Contains(name, "NAME"):
		title, err := i.meta.WindowTitle(ctx)
		if err != nil {
			log.Warn().Err(err).Str("property", name).Msg("Window title unavailable")
			return window.PropertyReply{Format: 8}, fmt.Errorf("%s: %w", name, err)
		}
		log.Debug().Str("property", name).Str("title", title).Msg("Synthesized window name")

		value := append([]byte(title), 0)
		return window.PropertyReply{
			Format: 8,
			NItems: uint32(len(value)),
			Value:  value,
		}, nil

	default:
		return i.delegate.GetProperty(req)
	}
}
