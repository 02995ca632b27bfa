package loading

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JesseSolomon/dev.jessesolomon.me/core"
	"github.com/JesseSolomon/dev.jessesolomon.me/telemetry"
)

// ErrRegistrationClosed is returned by RegisterTask once load occurred
var ErrRegistrationClosed = errors.New("loading: task registration closed after load")

// Future is a pending unit of work
type Future interface {
	// Await blocks until the work completed and returns its error
	Await(ctx context.Context) error
}

// Promise is a Future resolved exactly once
type Promise struct {
	once sync.Once
	done chan struct{}
	err  error
}

// NewPromise creates an unresolved promise
func NewPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Spawn runs fn in a new goroutine and returns a promise of its result
func Spawn(ctx context.Context, fn func(ctx context.Context) error) *Promise {
	p := NewPromise()
	go func() {
		p.Resolve(fn(ctx))
	}()
	return p
}

// Resolve settles the promise. Only the first call has an effect.
func (p *Promise) Resolve(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Await blocks until the promise is resolved or ctx is done
func (p *Promise) Await(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return p.err
	}
}

// RegistryBarrier waits for the conjunction of futures registered before
// load. It is the collection variant of Barrier: work that appears after
// load cannot hold it.
type RegistryBarrier struct {
	config  core.BarrierConfig
	logger  telemetry.Logger
	metrics core.Metrics
	signal  *Signal

	mu       sync.Mutex
	tasks    []Future
	ended    int
	failed   int
	loaded   bool
	loadedAt time.Time
	fired    bool
	err      error
}

var _ Barrier = (*RegistryBarrier)(nil)

// NewRegistryBarrier creates a registry barrier
func NewRegistryBarrier(config core.BarrierConfig, opts Options) *RegistryBarrier {
	opts = opts.withDefaults()
	if config.FailurePolicy == "" {
		config.FailurePolicy = core.FailureRelease
	}
	logger := opts.Logger.WithModule("lifecycle")
	return &RegistryBarrier{
		config:  config,
		logger:  logger,
		metrics: opts.Metrics,
		signal:  newSignal(logger),
	}
}

// RegisterTask adds a future the barrier waits for. It fails with
// ErrRegistrationClosed once load occurred.
func (b *RegistryBarrier) RegisterTask(f Future) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.loaded {
		b.logger.Warn("task registered after load; rejected", telemetry.Int("total", len(b.tasks)))
		return ErrRegistrationClosed
	}

	b.tasks = append(b.tasks, f)
	b.metrics.TaskStarted()
	b.metrics.Outstanding(len(b.tasks))
	b.logger.Debug("task registered", telemetry.Int("total", len(b.tasks)))
	return nil
}

// Load closes registration and opens the barrier once every registered
// future resolved. It does not block.
func (b *RegistryBarrier) Load() {
	b.mu.Lock()
	if b.loaded {
		b.mu.Unlock()
		b.logger.Debug("load already recorded")
		return
	}
	b.loaded = true
	b.loadedAt = time.Now()
	tasks := append([]Future(nil), b.tasks...)
	b.mu.Unlock()

	b.logger.Info("load", telemetry.Int("tasks", len(tasks)))

	go b.await(tasks)
}

func (b *RegistryBarrier) await(tasks []Future) {
	// Futures carry no cancellation; the barrier waits as long as they do.
	ctx := context.Background()

	var g errgroup.Group
	for _, task := range tasks {
		g.Go(func() error {
			err := task.Await(ctx)
			b.settle(err)
			return nil
		})
	}
	_ = g.Wait()

	b.fire(nil)
}

func (b *RegistryBarrier) settle(err error) {
	b.mu.Lock()
	if err == nil {
		b.ended++
	} else {
		b.failed++
	}
	outstanding := len(b.tasks) - b.ended - b.failed
	b.metrics.Outstanding(outstanding)
	b.mu.Unlock()

	if err == nil {
		b.metrics.TaskEnded()
		return
	}

	b.metrics.TaskFailed()
	if b.config.FailurePolicy == core.FailureAbort {
		b.logger.Error("task failed; aborting barrier", telemetry.Err(err))
		b.fire(taskError("", err))
		return
	}
	b.logger.Warn("task failed; releasing", telemetry.Err(err))
}

func (b *RegistryBarrier) fire(err error) {
	b.mu.Lock()
	if b.fired {
		b.mu.Unlock()
		return
	}
	b.fired = true
	b.err = err
	ev := core.LoadedEvent{
		TasksStarted: len(b.tasks),
		TasksEnded:   b.ended,
		TasksFailed:  b.failed,
		Elapsed:      time.Since(b.loadedAt),
		Err:          err,
	}
	b.mu.Unlock()

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
func (b *RegistryBarrier) Signal() *Signal {
	return b.signal
}

// Done is closed once the barrier opened
func (b *RegistryBarrier) Done() <-chan struct{} {
	return b.signal.Done()
}

// Err returns the error that aborted the barrier
func (b *RegistryBarrier) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Stats returns a snapshot of the registry
func (b *RegistryBarrier) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Started:     len(b.tasks),
		Ended:       b.ended,
		Failed:      b.failed,
		Outstanding: len(b.tasks) - b.ended - b.failed,
		Loaded:      b.loaded,
		Fired:       b.fired,
		LoadedAt:    b.loadedAt,
	}
}
