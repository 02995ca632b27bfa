package loading

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/JesseSolomon/dev.jessesolomon.me/core"
	"github.com/JesseSolomon/dev.jessesolomon.me/telemetry"
)

// ErrSignalFired is returned when subscribing to a signal that already fired.
// Late subscribers are never replayed.
var ErrSignalFired = errors.New("loading: signal already fired")

// SubscriptionID identifies an observer registration
type SubscriptionID uint64

// Signal is a one-shot broadcast of a LoadedEvent
type Signal struct {
	mu     sync.Mutex
	fired  bool
	event  core.LoadedEvent
	subs   map[SubscriptionID]func(core.LoadedEvent)
	order  []SubscriptionID
	nextID SubscriptionID
	done   chan struct{}
	logger telemetry.Logger
}

// NewSignal creates an unfired signal
func NewSignal() *Signal {
	return newSignal(telemetry.Nop())
}

func newSignal(logger telemetry.Logger) *Signal {
	return &Signal{
		subs:   make(map[SubscriptionID]func(core.LoadedEvent)),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Subscribe registers fn to be called when the signal fires.
// Observers are called in subscription order on the firing goroutine.
func (s *Signal) Subscribe(fn func(core.LoadedEvent)) (SubscriptionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fired {
		return 0, ErrSignalFired
	}

	s.nextID++
	id := s.nextID
	s.subs[id] = fn
	s.order = append(s.order, id)
	return id, nil
}

// Unsubscribe removes an observer. Unknown ids are ignored.
func (s *Signal) Unsubscribe(id SubscriptionID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[id]; !ok {
		return
	}
	delete(s.subs, id)
	for i, sid := range s.order {
		if sid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Fire broadcasts ev to every observer. Only the first call has an effect;
// it returns false on every later call. A panicking observer is logged and
// does not keep the others or Done from running.
func (s *Signal) Fire(ev core.LoadedEvent) bool {
	s.mu.Lock()
	if s.fired {
		s.mu.Unlock()
		return false
	}
	s.fired = true
	s.event = ev

	observers := make([]func(core.LoadedEvent), 0, len(s.order))
	for _, id := range s.order {
		observers = append(observers, s.subs[id])
	}
	s.subs = nil
	s.order = nil
	s.mu.Unlock()

	defer close(s.done)
	for _, fn := range observers {
		s.notify(fn, ev)
	}
	return true
}

func (s *Signal) notify(fn func(core.LoadedEvent), ev core.LoadedEvent) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			s.logger.Error("loaded observer panicked",
				telemetry.Any("panic", r),
				telemetry.String("stack", string(buf[:n])),
			)
		}
	}()
	fn(ev)
}

// Fired reports whether the signal has fired
func (s *Signal) Fired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// Done returns a channel closed once the signal fired and every observer
// returned
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the signal fired or ctx is done
func (s *Signal) Wait(ctx context.Context) (core.LoadedEvent, error) {
	select {
	case <-ctx.Done():
		return core.LoadedEvent{}, ctx.Err()
	case <-s.done:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.event, nil
}
