// Package loading gates a page's "fully loaded" signal on asynchronous work.
//
// A [Barrier] opens exactly once, after the host's base load condition has
// occurred and every registered unit of work has completed. Two variants
// implement it:
//
//   - [CountingBarrier] counts task_start / task_end notifications. Tasks may
//     appear at any time while the barrier is held, so producers need no
//     advance registration. This is the default.
//   - [RegistryBarrier] waits on futures registered before load. Registration
//     after load is rejected with [ErrRegistrationClosed].
//
// Completion is broadcast through a one-shot [Signal]. Observers subscribing
// after it fired are not replayed; they receive [ErrSignalFired] instead.
//
// Producers and observers can be decoupled through a [Bus], a serialized
// publish/subscribe loop, or through channels with [BarrierStage] and a
// [Pipeline] fanning the gate's output out to sink stages.
//
// A task that starts and never ends holds the barrier forever. That stall is
// not an error the barrier can detect; [Watchdog] makes it visible by logging
// the outstanding count while the barrier is held after load.
package loading
