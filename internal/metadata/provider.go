// Package metadata answers window title and pid queries so that they agree
// with the image returned by the most recent capture.
package metadata

import (
	"context"

	"github.com/bryanchriswhite/capshim/internal/cache"
	"github.com/bryanchriswhite/capshim/internal/logger"
)

// Live queries the active window directly
type Live interface {
	WindowTitle(ctx context.Context) (string, error)
	WindowPID(ctx context.Context) (int, error)
}

// Session reports what the last capture served
type Session interface {
	Served() (cache.Meta, bool)
}

// Provider returns cached metadata while the session serves cached data and
// live metadata otherwise.
type Provider struct {
	live    Live
	session Session
}

// NewProvider creates a metadata provider
func NewProvider(live Live, session Session) *Provider {
	return &Provider{live: live, session: session}
}

// WindowTitle returns the title matching the last returned image
func (p *Provider) WindowTitle(ctx context.Context) (string, error) {
	if served, cached := p.session.Served(); cached {
		if served.HasTitle() {
			return served.Title, nil
		}
		logger.WithComponent("metadata").Warn().Msg("Cached title unavailable, querying live")
	}
	return p.live.WindowTitle(ctx)
}

// WindowPID returns the pid matching the last returned image
func (p *Provider) WindowPID(ctx context.Context) (int, error) {
	if served, cached := p.session.Served(); cached {
		if served.HasPID() {
			return served.PID, nil
		}
		logger.WithComponent("metadata").Warn().Msg("Cached pid unavailable, querying live")
	}
	return p.live.WindowPID(ctx)
}
