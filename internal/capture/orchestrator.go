package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bryanchriswhite/capshim/internal/cache"
	"github.com/bryanchriswhite/capshim/internal/imgcodec"
	"github.com/bryanchriswhite/capshim/internal/logger"
	"github.com/bryanchriswhite/capshim/internal/session"
)

// Orchestrator decides per call between a fresh capture and the cached
// snapshot, and records the choice in the session so later title and pid
// queries agree with the returned image.
type Orchestrator struct {
	gate   Gate
	runner Runner
	store  SnapshotStore
	live   LiveMetadata
	state  *session.State

	mu        sync.Mutex
	listeners []chan Event
}

// NewOrchestrator wires an orchestrator
func NewOrchestrator(gate Gate, runner Runner, store SnapshotStore, live LiveMetadata, state *session.State) *Orchestrator {
	return &Orchestrator{
		gate:      gate,
		runner:    runner,
		store:     store,
		live:      live,
		state:     state,
		listeners: make([]chan Event, 0),
	}
}

// Capture returns the image to hand to the monitored application. An error
// means no image; the session is left untouched in that case.
func (o *Orchestrator) Capture(ctx context.Context) (*Result, error) {
	log := logger.WithComponent("capture")

	allowed := o.gate.Allowed(ctx)
	if allowed {
		log.Debug().Msg("Workspace allowed, taking fresh capture")
		return o.finish(PhaseFresh, o.fresh(ctx, PhaseFresh))
	}

	rec, err := o.store.Load()
	if err == nil {
		o.state.MarkCached(rec.Meta)
		log.Info().
			Str("title", rec.Title).
			Int("pid", rec.PID).
			Time("captured_at", rec.CapturedAt).
			Msg("Serving cached snapshot")

		res := &Result{
			Phase:   PhaseCachedHit,
			Image:   rec.Image,
			Encoded: rec.Encoded,
			Format:  rec.Format,
		}
		o.publish(o.event(res, false, rec.Meta))
		return res, nil
	}

	if errors.Is(err, cache.ErrNotFound) {
		log.Warn().Msg("No cached snapshot available, taking fresh capture anyway")
	} else {
		log.Warn().Err(err).Msg("Cached snapshot unusable, taking fresh capture anyway")
	}
	return o.finish(PhaseCachedMissFallback, o.fresh(ctx, PhaseCachedMissFallback))
}

type freshResult struct {
	res  *Result
	meta cache.Meta
	err  error
}

func (o *Orchestrator) finish(phase Phase, f freshResult) (*Result, error) {
	allowed := phase == PhaseFresh
	if f.err != nil {
		o.publish(Event{Phase: PhaseFailed, Allowed: allowed, Error: f.err.Error(), Time: time.Now()})
		return nil, f.err
	}
	o.publish(o.event(f.res, allowed, f.meta))
	return f.res, nil
}

// fresh runs the executor, decodes its output and refreshes the cache
func (o *Orchestrator) fresh(ctx context.Context, phase Phase) freshResult {
	log := logger.WithComponent("capture")

	out := o.runner.Run(ctx)
	if out.Path != "" {
		defer os.Remove(out.Path)
	}
	if !out.Success() {
		return freshResult{err: fmt.Errorf("%w: %w", ErrCaptureFailed, out.Err)}
	}

	data, err := os.ReadFile(out.Path)
	if err != nil {
		return freshResult{err: fmt.Errorf("%w: reading %s: %w", ErrCaptureFailed, out.Path, err)}
	}
	img, format, err := imgcodec.Decode(data)
	if err != nil {
		return freshResult{err: fmt.Errorf("%w: %w", ErrCaptureFailed, err)}
	}

	meta := cache.Meta{CapturedAt: time.Now()}
	if title, err := o.live.WindowTitle(ctx); err != nil {
		log.Warn().Err(err).Msg("Could not query window title for cache")
	} else {
		meta.Title = title
	}
	if pid, err := o.live.WindowPID(ctx); err != nil {
		log.Warn().Err(err).Msg("Could not query window pid for cache")
	} else {
		meta.PID = pid
	}

	if err := o.store.Save(cache.Record{Meta: meta, Encoded: data, Format: format}); err != nil {
		log.Warn().Err(err).Msg("Could not cache snapshot")
	}

	o.state.MarkFresh()

	b := img.Bounds()
	log.Info().
		Str("phase", string(phase)).
		Int("width", b.Dx()).
		Int("height", b.Dy()).
		Msg("Fresh capture succeeded")

	return freshResult{
		res: &Result{
			Phase:   phase,
			Image:   img,
			Encoded: data,
			Format:  format,
		},
		meta: meta,
	}
}

func (o *Orchestrator) event(res *Result, allowed bool, meta cache.Meta) Event {
	ev := Event{
		Phase:   res.Phase,
		Allowed: allowed,
		Title:   meta.Title,
		PID:     meta.PID,
		Time:    time.Now(),
	}
	if res.Image != nil {
		b := res.Image.Bounds()
		ev.Width, ev.Height = b.Dx(), b.Dy()
	}
	return ev
}

// Subscribe adds a listener for capture events
func (o *Orchestrator) Subscribe() chan Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch := make(chan Event, 10)
	o.listeners = append(o.listeners, ch)
	return ch
}

// Unsubscribe removes a listener
func (o *Orchestrator) Unsubscribe(ch chan Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i, listener := range o.listeners {
		if listener == ch {
			o.listeners = append(o.listeners[:i], o.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// publish notifies listeners without blocking on slow ones
func (o *Orchestrator) publish(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, listener := range o.listeners {
		select {
		case listener <- ev:
		default:
			// Listener is not ready, skip
		}
	}
}
