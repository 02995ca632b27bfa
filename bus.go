package loading

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"

	"github.com/JesseSolomon/dev.jessesolomon.me/core"
	"github.com/JesseSolomon/dev.jessesolomon.me/telemetry"
)

// ErrBusClosed is returned when publishing to a closed bus
var ErrBusClosed = errors.New("loading: bus closed")

// Handler handles an event delivered by a Bus
type Handler func(event core.Event)

// BusConfig configures a Bus
type BusConfig struct {
	Logger telemetry.Logger
}

// Bus is a publish/subscribe medium with serialized dispatch.
//
// Publish only enqueues; Run delivers events one at a time, in publish order,
// on a single goroutine. Handlers never run concurrently with each other and
// may publish further events.
type Bus struct {
	logger telemetry.Logger

	subMu  sync.RWMutex
	subs   map[SubscriptionID]subscription
	nextID SubscriptionID

	queueMu sync.Mutex
	queue   []core.Event
	closed  bool
	wake    chan struct{}
}

type subscription struct {
	eventType core.EventType
	handler   Handler
}

// NewBus creates a bus. Events are delivered once Run is started.
func NewBus(config BusConfig) *Bus {
	logger := config.Logger
	if logger == nil {
		logger = telemetry.Nop()
	}
	return &Bus{
		logger: logger.WithModule("bus"),
		subs:   make(map[SubscriptionID]subscription),
		wake:   make(chan struct{}, 1),
	}
}

// Subscribe registers handler for events of the given type.
// core.EventTypeWildcard receives every event.
func (b *Bus) Subscribe(eventType core.EventType, handler Handler) SubscriptionID {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	b.nextID++
	b.subs[b.nextID] = subscription{eventType: eventType, handler: handler}
	return b.nextID
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id SubscriptionID) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	delete(b.subs, id)
}

// Publish enqueues an event for delivery. It never blocks.
func (b *Bus) Publish(event core.Event) error {
	if event == nil {
		return fmt.Errorf("loading: publish nil event")
	}

	b.queueMu.Lock()
	if b.closed {
		b.queueMu.Unlock()
		return ErrBusClosed
	}
	b.queue = append(b.queue, event)
	b.queueMu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
		// a wakeup is already pending
	}
	return nil
}

// Close stops accepting events. Events already queued are still delivered
// by Run before it returns.
func (b *Bus) Close() {
	b.queueMu.Lock()
	b.closed = true
	b.queueMu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Run dispatches events until ctx is cancelled or the bus is closed and
// drained. It must be called at most once.
func (b *Bus) Run(ctx context.Context) error {
	for {
		for {
			event, ok := b.next()
			if !ok {
				break
			}
			b.dispatch(event)
		}

		b.queueMu.Lock()
		closed := b.closed && len(b.queue) == 0
		b.queueMu.Unlock()
		if closed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.wake:
		}
	}
}

func (b *Bus) next() (core.Event, bool) {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()

	if len(b.queue) == 0 {
		return nil, false
	}
	event := b.queue[0]
	b.queue[0] = nil
	b.queue = b.queue[1:]
	return event, true
}

func (b *Bus) dispatch(event core.Event) {
	b.subMu.RLock()
	handlers := make([]subscriptionEntry, 0, len(b.subs))
	for id, sub := range b.subs {
		if sub.eventType == event.EventType() || sub.eventType == core.EventTypeWildcard {
			handlers = append(handlers, subscriptionEntry{id: id, handler: sub.handler})
		}
	}
	b.subMu.RUnlock()

	slices.SortFunc(handlers, func(a, b subscriptionEntry) int {
		return cmp.Compare(a.id, b.id)
	})
	for _, h := range handlers {
		b.invoke(h.handler, event)
	}
}

// invoke runs a handler and keeps the loop alive if it panics
func (b *Bus) invoke(handler Handler, event core.Event) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			b.logger.Error("handler panicked",
				telemetry.String("event_type", string(event.EventType())),
				telemetry.Any("panic", r),
				telemetry.String("stack", string(buf[:n])),
			)
		}
	}()
	handler(event)
}

type subscriptionEntry struct {
	id      SubscriptionID
	handler Handler
}

// Stream delivers events of the given types (all types when none given) on
// a channel until ctx is done, then closes it. Every subscriber has its own
// unbounded queue, so a slow consumer never loses an event and never holds
// up dispatch.
func (b *Bus) Stream(ctx context.Context, types ...core.EventType) <-chan core.Event {
	out := make(chan core.Event)
	if len(types) == 0 {
		types = []core.EventType{core.EventTypeWildcard}
	}

	var (
		mu      sync.Mutex
		pending []core.Event
	)
	wake := make(chan struct{}, 1)
	deliver := func(ev core.Event) {
		mu.Lock()
		pending = append(pending, ev)
		mu.Unlock()

		select {
		case wake <- struct{}{}:
		default:
		}
	}

	ids := make([]SubscriptionID, 0, len(types))
	for _, t := range types {
		ids = append(ids, b.Subscribe(t, deliver))
	}

	go func() {
		defer close(out)
		defer func() {
			for _, id := range ids {
				b.Unsubscribe(id)
			}
		}()

		for {
			mu.Lock()
			batch := pending
			pending = nil
			mu.Unlock()

			for _, ev := range batch {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			if len(batch) > 0 {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case <-wake:
			}
		}
	}()

	return out
}

// Task publishes the start of a unit of work on a bus and guarantees that
// exactly one matching end or failure follows
type Task struct {
	bus    *Bus
	source string
	once   sync.Once
}

// StartTask publishes a TaskStartEvent for source
func StartTask(bus *Bus, source string) (*Task, error) {
	if err := bus.Publish(core.TaskStartEvent{Source: source}); err != nil {
		return nil, err
	}
	return &Task{bus: bus, source: source}, nil
}

// Done publishes TaskEndEvent when err is nil and TaskFailedEvent otherwise.
// Calls after the first are ignored.
func (t *Task) Done(err error) error {
	var perr error
	t.once.Do(func() {
		if err != nil {
			perr = t.bus.Publish(core.TaskFailedEvent{Source: t.source, Error: err})
			return
		}
		perr = t.bus.Publish(core.TaskEndEvent{Source: t.source})
	})
	return perr
}
