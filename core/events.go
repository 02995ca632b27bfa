package core

import "time"

// Event represents any lifecycle event
type Event interface {
	EventType() EventType
}

// TaskStartEvent announces one more unit of outstanding work
type TaskStartEvent struct {
	Source string
}

func (e TaskStartEvent) EventType() EventType {
	return EventTypeTaskStart
}

// TaskEndEvent announces that one unit of outstanding work completed
type TaskEndEvent struct {
	Source string
}

func (e TaskEndEvent) EventType() EventType {
	return EventTypeTaskEnd
}

// TaskFailedEvent ends a unit of work with an error.
// How the barrier treats it depends on its FailurePolicy.
type TaskFailedEvent struct {
	Source string
	Error  error
}

func (e TaskFailedEvent) EventType() EventType {
	return EventTypeTaskFailed
}

// LoadEvent is the host's base load condition
type LoadEvent struct{}

func (e LoadEvent) EventType() EventType {
	return EventTypeLoad
}

// LoadedEvent is broadcast once, when the barrier opens
type LoadedEvent struct {
	TasksStarted int
	TasksEnded   int
	TasksFailed  int
	// Elapsed is measured from the base load condition
	Elapsed time.Duration
	// Err is set when the barrier was aborted by a failed task
	Err error
}

func (e LoadedEvent) EventType() EventType {
	return EventTypeLoaded
}

// StalledEvent reports a barrier still held after load
type StalledEvent struct {
	Outstanding int
	Waiting     time.Duration
}

func (e StalledEvent) EventType() EventType {
	return EventTypeStalled
}

// CanvasReadyEvent is emitted when a canvas finished its setup
type CanvasReadyEvent struct {
	Canvas string
}

func (e CanvasReadyEvent) EventType() EventType {
	return EventTypeCanvasReady
}

// CanvasResizeEvent is emitted before a canvas resizes its renderer.
// Listeners calling PreventDefault take over resizing themselves.
type CanvasResizeEvent struct {
	Canvas    string
	Width     float64
	Height    float64
	prevented bool
}

func (e *CanvasResizeEvent) EventType() EventType {
	return EventTypeCanvasResize
}

// PreventDefault stops the renderer resize
func (e *CanvasResizeEvent) PreventDefault() {
	e.prevented = true
}

// DefaultPrevented reports whether a listener called PreventDefault
func (e *CanvasResizeEvent) DefaultPrevented() bool {
	return e.prevented
}

// ErrorEvent represents an error
type ErrorEvent struct {
	Error error
}

func (e ErrorEvent) EventType() EventType {
	return EventTypeError
}
