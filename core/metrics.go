package core

import "time"

// Metrics receives barrier observations. Implementations must be safe for
// concurrent use.
type Metrics interface {
	TaskStarted()
	TaskEnded()
	TaskFailed()
	Outstanding(n int)
	Loaded(elapsed time.Duration, err error)
	Stalled(outstanding int)
}

// NilMetrics discards every observation
type NilMetrics struct{}

func (NilMetrics) TaskStarted()                {}
func (NilMetrics) TaskEnded()                  {}
func (NilMetrics) TaskFailed()                 {}
func (NilMetrics) Outstanding(int)             {}
func (NilMetrics) Loaded(time.Duration, error) {}
func (NilMetrics) Stalled(int)                 {}
