package intercept

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/bryanchriswhite/capshim/internal/imgcodec"
	"github.com/bryanchriswhite/capshim/internal/logger"
	"github.com/bryanchriswhite/capshim/internal/window"
)

// GetWindowAttributes never fails: a genuine failure is reported as the
// placeholder rectangle, since the monitored application treats failure as
// fatal. When the dimension override is armed, one successful query reports
// zero width and height.
func (i *Interceptor) GetWindowAttributes(ctx context.Context, win window.Window) window.Attributes {
	log := logger.WithComponent("intercept")

	attrs, err := i.delegate.GetWindowAttributes(win)
	if err != nil {
		log.Debug().
			Err(err).
			Uint32("window", uint32(win)).
			Msg("Genuine attribute query failed, reporting placeholder")
		return window.Attributes{
			X:      i.placeholder.X,
			Y:      i.placeholder.Y,
			Width:  i.placeholder.Width,
			Height: i.placeholder.Height,
		}
	}

	if i.state.ConsumePoison() {
		log.Info().
			Uint32("window", uint32(win)).
			Int("width", attrs.Width).
			Int("height", attrs.Height).
			Msg("Reporting zero dimensions once")
		attrs.Width = 0
		attrs.Height = 0
	}
	return attrs
}

// SaveToCallback encodes img in format and hands the bytes to sink. It arms
// the dimension override first, so the next attribute query reports a
// zero-area window and the application's secondary capture path reuses the
// image it already has.
func (i *Interceptor) SaveToCallback(ctx context.Context, img image.Image, format string, options []string, sink func([]byte) error) error {
	log := logger.WithComponent("intercept")

	log.Debug().
		Str("format", format).
		Str("options", strings.Join(options, " ")).
		Msg("Save to callback")

	i.state.PoisonDimensions()

	if img == nil {
		return fmt.Errorf("save to callback: nil image")
	}
	data, err := imgcodec.EncodeBytes(img, format)
	if err != nil {
		return fmt.Errorf("save to callback: %w", err)
	}
	return sink(data)
}
