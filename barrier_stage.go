package loading

import (
	"context"
	"errors"
	"fmt"

	"github.com/JesseSolomon/dev.jessesolomon.me/core"
)

// ErrStalled is returned by BarrierStage when its input ends while the
// barrier is still held
var ErrStalled = errors.New("loading: barrier stalled")

// BarrierStage is the channel form of a CountingBarrier. It consumes
// lifecycle events from its input, forwards every other event downstream and
// emits a single LoadedEvent when the barrier opens.
type BarrierStage struct {
	name   string
	config core.BarrierConfig
	opts   Options
}

// NewBarrierStage creates a new barrier stage
func NewBarrierStage(name string, config core.BarrierConfig, opts Options) *BarrierStage {
	return &BarrierStage{
		name:   name,
		config: config,
		opts:   opts,
	}
}

// Name returns the stage name
func (bs *BarrierStage) Name() string {
	return bs.name
}

// Process implements the Stage interface
func (bs *BarrierStage) Process(ctx context.Context, input <-chan core.Event, output chan<- core.Event) error {
	defer close(output)

	barrier := NewCountingBarrier(bs.config, bs.opts)

	// Fire runs on this goroutine for every path except the settle timer,
	// so the buffer keeps the observer from blocking.
	loaded := make(chan core.LoadedEvent, 1)
	if _, err := barrier.Signal().Subscribe(func(ev core.LoadedEvent) {
		loaded <- ev
	}); err != nil {
		return err
	}

	var (
		emitted  bool
		firstErr error
	)
	emit := func(ev core.LoadedEvent) error {
		emitted = true
		if ev.Err != nil {
			firstErr = ev.Err
			if err := send(ctx, output, core.ErrorEvent{Error: ev.Err}); err != nil {
				return err
			}
		}
		return send(ctx, output, ev)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev := <-loaded:
			if err := emit(ev); err != nil {
				return err
			}
			continue

		case event, ok := <-input:
			if !ok {
				return bs.finish(ctx, barrier, loaded, emitted, firstErr, emit)
			}

			if barrier.Handle(event) {
				continue
			}

			// Forward non-lifecycle events downstream
			if err := send(ctx, output, event); err != nil {
				return err
			}
		}
	}
}

// finish runs once the input closed
func (bs *BarrierStage) finish(ctx context.Context, barrier *CountingBarrier, loaded <-chan core.LoadedEvent, emitted bool, firstErr error, emit func(core.LoadedEvent) error) error {
	if emitted {
		return firstErr
	}

	st := barrier.Stats()
	switch {
	case st.Fired, st.Loaded && st.Outstanding == 0:
		// Fired, or waiting out the settle window
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-loaded:
			if err := emit(ev); err != nil {
				return err
			}
			return ev.Err
		}
	case !st.Loaded:
		return fmt.Errorf("%w: load never occurred (%d outstanding)", ErrStalled, st.Outstanding)
	default:
		return fmt.Errorf("%w: %d tasks outstanding", ErrStalled, st.Outstanding)
	}
}

// InputTypes returns the input event types this stage accepts
func (bs *BarrierStage) InputTypes() []core.EventType {
	// Lifecycle events are consumed, everything else passes through
	return []core.EventType{}
}

// OutputTypes returns the output event types this stage produces
func (bs *BarrierStage) OutputTypes() []core.EventType {
	return []core.EventType{
		core.EventTypeLoaded,
		core.EventTypeStalled,
		core.EventTypeCanvasReady,
		core.EventTypeCanvasResize,
		core.EventTypeError,
	}
}

func send(ctx context.Context, output chan<- core.Event, event core.Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case output <- event:
		return nil
	}
}
