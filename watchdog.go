package loading

import (
	"context"
	"time"

	"github.com/JesseSolomon/dev.jessesolomon.me/core"
	"github.com/JesseSolomon/dev.jessesolomon.me/telemetry"
)

// DefaultStallInterval is used when WatchdogConfig.Interval is zero
const DefaultStallInterval = 5 * time.Second

// WatchdogConfig configures a Watchdog
type WatchdogConfig struct {
	Interval time.Duration
	Logger   telemetry.Logger
	Metrics  core.Metrics
	// Bus receives a StalledEvent on every stalled tick when set
	Bus *Bus
}

// Watchdog reports a barrier that is still held after load.
//
// A task that never ends holds the barrier forever; the watchdog does not
// release it, it only makes the stall visible.
type Watchdog struct {
	barrier Barrier
	config  WatchdogConfig
	logger  telemetry.Logger
}

// NewWatchdog creates a watchdog for barrier
func NewWatchdog(barrier Barrier, config WatchdogConfig) *Watchdog {
	if config.Interval <= 0 {
		config.Interval = DefaultStallInterval
	}
	if config.Logger == nil {
		config.Logger = telemetry.Nop()
	}
	if config.Metrics == nil {
		config.Metrics = core.NilMetrics{}
	}
	return &Watchdog{
		barrier: barrier,
		config:  config,
		logger:  config.Logger.WithModule("watchdog"),
	}
}

// Run polls the barrier until it opens or ctx is done
func (w *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.barrier.Done():
			return nil
		case now := <-ticker.C:
			w.check(now)
		}
	}
}

// check reports a stall if the barrier is held after load. It returns true
// when a stall was reported.
func (w *Watchdog) check(now time.Time) bool {
	st := w.barrier.Stats()
	if st.Fired || !st.Loaded {
		return false
	}

	waiting := now.Sub(st.LoadedAt)
	w.logger.Warn("barrier still held after load",
		telemetry.Int("outstanding", st.Outstanding),
		telemetry.Int("started", st.Started),
		telemetry.Int("ended", st.Ended),
		telemetry.Duration("waiting", waiting),
	)
	w.config.Metrics.Stalled(st.Outstanding)

	if w.config.Bus != nil {
		ev := core.StalledEvent{Outstanding: st.Outstanding, Waiting: waiting}
		if err := w.config.Bus.Publish(ev); err != nil {
			w.logger.Debug("stalled event not published", telemetry.Err(err))
		}
	}
	return true
}
