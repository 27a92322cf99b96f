// Package capture produces the image handed to the monitored application,
// choosing between a fresh external capture and the cached snapshot.
package capture

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/bryanchriswhite/capshim/internal/cache"
)

// ErrCaptureFailed wraps every failure that ends in "no image"
var ErrCaptureFailed = errors.New("capture failed")

// Phase is the path an orchestrated capture took
type Phase string

const (
	PhaseFresh              Phase = "fresh"
	PhaseCachedHit          Phase = "cached_hit"
	PhaseCachedMissFallback Phase = "cached_miss_fallback"
	PhaseFailed             Phase = "failed"
)

// Gate decides whether a fresh capture is permitted
type Gate interface {
	Allowed(ctx context.Context) bool
}

// Runner takes a screenshot into a file
type Runner interface {
	Run(ctx context.Context) Outcome
}

// SnapshotStore persists the last fresh capture
type SnapshotStore interface {
	Save(rec cache.Record) error
	Load() (*cache.Record, error)
}

// LiveMetadata queries the active window directly
type LiveMetadata interface {
	WindowTitle(ctx context.Context) (string, error)
	WindowPID(ctx context.Context) (int, error)
}

// Result is a successfully produced image
type Result struct {
	Phase   Phase
	Image   image.Image
	Encoded []byte
	Format  string
}

// Event describes one completed Capture call
type Event struct {
	Phase   Phase     `json:"phase"`
	Allowed bool      `json:"allowed"`
	Title   string    `json:"title,omitempty"`
	PID     int       `json:"pid,omitempty"`
	Width   int       `json:"width,omitempty"`
	Height  int       `json:"height,omitempty"`
	Error   string    `json:"error,omitempty"`
	Time    time.Time `json:"time"`
}
