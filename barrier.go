package loading

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JesseSolomon/dev.jessesolomon.me/core"
	"github.com/JesseSolomon/dev.jessesolomon.me/telemetry"
)

// ErrTaskFailed wraps the error of a task that aborted a barrier
var ErrTaskFailed = errors.New("loading: task failed")

// Barrier holds the loaded signal until the base load condition occurred and
// all outstanding work completed
type Barrier interface {
	// Load records the base load condition. Calling it again has no effect.
	Load()
	// Signal returns the one-shot completion broadcast
	Signal() *Signal
	// Done is closed once the barrier opened
	Done() <-chan struct{}
	// Err returns the error that aborted the barrier, if any
	Err() error
	// Stats returns a snapshot of the barrier's bookkeeping
	Stats() Stats
}

// Stats is a point-in-time view of a barrier
type Stats struct {
	Started     int
	Ended       int
	Failed      int
	Outstanding int
	Loaded      bool
	Fired       bool
	LoadedAt    time.Time
}

// Options carries the collaborators of a barrier. Zero values are replaced
// with no-op implementations.
type Options struct {
	Logger  telemetry.Logger
	Metrics core.Metrics
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = telemetry.Nop()
	}
	if o.Metrics == nil {
		o.Metrics = core.NilMetrics{}
	}
	return o
}

// CountingBarrier counts task_start and task_end notifications.
//
// It fires once load occurred and the outstanding count is back to zero.
// Tasks starting while the barrier is held, including after load, hold it
// further. Starts observed after it fired are ignored.
type CountingBarrier struct {
	config  core.BarrierConfig
	logger  telemetry.Logger
	metrics core.Metrics
	signal  *Signal

	mu          sync.Mutex
	outstanding int
	started     int
	ended       int
	failed      int
	loaded      bool
	loadedAt    time.Time
	fired       bool
	err         error

	settle    *time.Timer
	settleGen uint64
}

var _ Barrier = (*CountingBarrier)(nil)

// NewCountingBarrier creates a counting barrier
func NewCountingBarrier(config core.BarrierConfig, opts Options) *CountingBarrier {
	opts = opts.withDefaults()
	if config.FailurePolicy == "" {
		config.FailurePolicy = core.FailureRelease
	}
	logger := opts.Logger.WithModule("lifecycle")
	return &CountingBarrier{
		config:  config,
		logger:  logger,
		metrics: opts.Metrics,
		signal:  newSignal(logger),
	}
}

// TaskStart adds one unit of outstanding work
func (b *CountingBarrier) TaskStart() {
	b.taskStart("")
}

// TaskEnd completes one unit of outstanding work. Ends beyond the number of
// starts are logged and never fire the barrier twice.
func (b *CountingBarrier) TaskEnd() {
	b.taskEnd("")
}

// TaskFailed completes one unit of outstanding work with an error
func (b *CountingBarrier) TaskFailed(err error) {
	b.taskFailed("", err)
}

// Load records the base load condition
func (b *CountingBarrier) Load() {
	b.mu.Lock()
	if b.loaded {
		b.mu.Unlock()
		b.logger.Debug("load already recorded")
		return
	}
	b.loaded = true
	b.loadedAt = time.Now()
	b.logger.Info("load", telemetry.Int("outstanding", b.outstanding))

	ev, fire := b.tryFireLocked()
	b.mu.Unlock()

	if fire {
		b.broadcast(ev)
	}
}

// Handle applies a lifecycle event to the barrier. It returns false for
// events that are not lifecycle events.
func (b *CountingBarrier) Handle(event core.Event) bool {
	switch e := event.(type) {
	case core.TaskStartEvent:
		b.taskStart(e.Source)
	case core.TaskEndEvent:
		b.taskEnd(e.Source)
	case core.TaskFailedEvent:
		b.taskFailed(e.Source, e.Error)
	case core.LoadEvent:
		b.Load()
	default:
		return false
	}
	return true
}

func (b *CountingBarrier) taskStart(source string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fired {
		b.logger.Warn("task started after barrier opened; ignored", telemetry.String("source", source))
		return
	}

	b.started++
	b.outstanding++
	b.cancelSettleLocked()
	b.metrics.TaskStarted()
	b.metrics.Outstanding(b.outstanding)
	b.logger.Debug("task started",
		telemetry.String("source", source),
		telemetry.Int("outstanding", b.outstanding),
		telemetry.Int("total", b.started),
	)
}

func (b *CountingBarrier) taskEnd(source string) {
	b.mu.Lock()
	if b.fired {
		b.mu.Unlock()
		b.logger.Debug("task ended after barrier opened", telemetry.String("source", source))
		return
	}

	b.ended++
	b.release(source)
	b.metrics.TaskEnded()
	b.logger.Debug("task ended",
		telemetry.String("source", source),
		telemetry.Int("outstanding", b.outstanding),
	)

	ev, fire := b.tryFireLocked()
	b.mu.Unlock()

	if fire {
		b.broadcast(ev)
	}
}

func (b *CountingBarrier) taskFailed(source string, err error) {
	b.mu.Lock()
	if b.fired {
		b.mu.Unlock()
		b.logger.Debug("task failed after barrier opened", telemetry.String("source", source), telemetry.Err(err))
		return
	}

	b.failed++
	b.release(source)
	b.metrics.TaskFailed()

	var (
		ev   core.LoadedEvent
		fire bool
	)
	if b.config.FailurePolicy == core.FailureAbort {
		b.logger.Error("task failed; aborting barrier", telemetry.String("source", source), telemetry.Err(err))
		b.err = taskError(source, err)
		ev, fire = b.fireLocked(), true
	} else {
		b.logger.Warn("task failed; releasing", telemetry.String("source", source), telemetry.Err(err))
		ev, fire = b.tryFireLocked()
	}
	b.mu.Unlock()

	if fire {
		b.broadcast(ev)
	}
}

// release decrements the outstanding count. Must hold b.mu.
func (b *CountingBarrier) release(source string) {
	b.outstanding--
	if b.outstanding < 0 {
		b.logger.Warn("more task ends than starts",
			telemetry.String("source", source),
			telemetry.Int("started", b.started),
			telemetry.Int("ended", b.ended+b.failed),
		)
		b.outstanding = 0
	}
	b.metrics.Outstanding(b.outstanding)
}

// tryFireLocked decides whether the barrier opens now. Must hold b.mu.
func (b *CountingBarrier) tryFireLocked() (core.LoadedEvent, bool) {
	if b.fired || !b.loaded || b.outstanding > 0 {
		return core.LoadedEvent{}, false
	}

	if b.config.SettleWindow > 0 {
		b.scheduleSettleLocked()
		return core.LoadedEvent{}, false
	}

	return b.fireLocked(), true
}

// fireLocked marks the barrier fired and builds the completion event.
// Must hold b.mu.
func (b *CountingBarrier) fireLocked() core.LoadedEvent {
	b.fired = true
	b.cancelSettleLocked()

	var elapsed time.Duration
	if b.loaded {
		elapsed = time.Since(b.loadedAt)
	}
	return core.LoadedEvent{
		TasksStarted: b.started,
		TasksEnded:   b.ended,
		TasksFailed:  b.failed,
		Elapsed:      elapsed,
		Err:          b.err,
	}
}

func (b *CountingBarrier) scheduleSettleLocked() {
	b.cancelSettleLocked()
	gen := b.settleGen
	b.settle = time.AfterFunc(b.config.SettleWindow, func() {
		b.settled(gen)
	})
}

func (b *CountingBarrier) cancelSettleLocked() {
	b.settleGen++
	if b.settle != nil {
		b.settle.Stop()
		b.settle = nil
	}
}

func (b *CountingBarrier) settled(gen uint64) {
	b.mu.Lock()
	if gen != b.settleGen || b.fired || !b.loaded || b.outstanding > 0 {
		b.mu.Unlock()
		return
	}
	ev := b.fireLocked()
	b.mu.Unlock()

	b.broadcast(ev)
}

func (b *CountingBarrier) broadcast(ev core.LoadedEvent) {
	b.metrics.Outstanding(0)
	b.metrics.Loaded(ev.Elapsed, ev.Err)
	b.logger.Info("application loaded",
		telemetry.Int("tasks_completed", ev.TasksEnded),
		telemetry.Int("tasks_failed", ev.TasksFailed),
		telemetry.Duration("elapsed", ev.Elapsed),
	)
	b.signal.Fire(ev)
}

// Signal returns the completion broadcast
func (b *CountingBarrier) Signal() *Signal {
	return b.signal
}

// Done is closed once the barrier opened
func (b *CountingBarrier) Done() <-chan struct{} {
	return b.signal.Done()
}

// Err returns the error that aborted the barrier
func (b *CountingBarrier) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Stats returns a snapshot of the counters
func (b *CountingBarrier) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Started:     b.started,
		Ended:       b.ended,
		Failed:      b.failed,
		Outstanding: b.outstanding,
		Loaded:      b.loaded,
		Fired:       b.fired,
		LoadedAt:    b.loadedAt,
	}
}

// Attach drives the barrier from lifecycle events published on bus and
// publishes the LoadedEvent there once it opens. The returned function
// detaches it.
func (b *CountingBarrier) Attach(bus *Bus) (detach func()) {
	ids := make([]SubscriptionID, 0, len(core.LifecycleTypes))
	for _, et := range core.LifecycleTypes {
		ids = append(ids, bus.Subscribe(et, func(ev core.Event) {
			b.Handle(ev)
		}))
	}

	sigID, err := b.signal.Subscribe(func(ev core.LoadedEvent) {
		if perr := bus.Publish(ev); perr != nil {
			b.logger.Error("failed to publish loaded event", telemetry.Err(perr))
		}
	})
	if err != nil {
		b.logger.Warn("attached after barrier opened; loaded event not republished")
	}

	return func() {
		for _, id := range ids {
			bus.Unsubscribe(id)
		}
		if err == nil {
			b.signal.Unsubscribe(sigID)
		}
	}
}

func taskError(source string, err error) error {
	if err == nil {
		err = errors.New("unknown error")
	}
	if source == "" {
		return fmt.Errorf("%w: %w", ErrTaskFailed, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrTaskFailed, source, err)
}
