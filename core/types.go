package core

// EventType categorizes lifecycle events
type EventType string

const (
	EventTypeTaskStart    EventType = "task_start"
	EventTypeTaskEnd      EventType = "task_end"
	EventTypeTaskFailed   EventType = "task_failed"
	EventTypeLoad         EventType = "load"
	EventTypeLoaded       EventType = "loaded"
	EventTypeStalled      EventType = "stalled"
	EventTypeCanvasReady  EventType = "canvas_ready"
	EventTypeCanvasResize EventType = "canvas_resize"
	EventTypeError        EventType = "error"
)

// LifecycleTypes are the event types a barrier consumes
var LifecycleTypes = []EventType{
	EventTypeTaskStart,
	EventTypeTaskEnd,
	EventTypeTaskFailed,
	EventTypeLoad,
}

// IsLifecycle reports whether t is consumed by a barrier
func IsLifecycle(t EventType) bool {
	for _, lt := range LifecycleTypes {
		if lt == t {
			return true
		}
	}
	return false
}
