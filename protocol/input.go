package protocol

import "encoding/json"

// InputMessageType defines page-to-server message types
type InputMessageType string

const (
	// Base load condition of the page
	InputLoad InputMessageType = "lifecycle.load"

	// Task lifecycle
	InputTaskStart  InputMessageType = "task.start"  // Page started a unit of work
	InputTaskEnd    InputMessageType = "task.end"    // Page finished a unit of work
	InputTaskFailed InputMessageType = "task.failed" // Page gave up on a unit of work
)

// InputMessage represents a message from a page
type InputMessage struct {
	Type      InputMessageType `json:"type"`
	ID        string           `json:"id"`        // Page-generated message ID
	SessionID string           `json:"sessionId"` // Session identifier
	Payload   json.RawMessage  `json:"payload,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

// TaskPayload for task.start, task.end and task.failed
type TaskPayload struct {
	Source string `json:"source,omitempty"` // e.g. "shaders:intro"
	Error  string `json:"error,omitempty"`  // task.failed only
}
