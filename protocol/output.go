package protocol

// OutputMessageType defines server-to-page message types
type OutputMessageType string

const (
	// Progress
	OutputProgress OutputMessageType = "loading.progress" // A task started or ended
	OutputSnapshot OutputMessageType = "loading.snapshot" // Current state, sent on connect
	OutputStalled  OutputMessageType = "loading.stalled"  // Barrier held longer than expected

	// Lifecycle
	OutputComplete    OutputMessageType = "loading.complete" // Barrier opened
	OutputCanvasReady OutputMessageType = "canvas.ready"     // A canvas finished setup

	// Errors
	OutputError OutputMessageType = "error"
)

// OutputMessage represents a message to a page
type OutputMessage struct {
	Type      OutputMessageType `json:"type"`
	ID        string            `json:"id"`                // Server-generated message ID
	SessionID string            `json:"sessionId"`         // Session identifier
	ReplyTo   string            `json:"replyTo,omitempty"` // ID of input message
	Payload   any               `json:"payload"`
	Timestamp int64             `json:"timestamp"`
}

// TaskPhase is the step of a task a progress message reports
type TaskPhase string

const (
	PhaseStart  TaskPhase = "start"
	PhaseEnd    TaskPhase = "end"
	PhaseFailed TaskPhase = "failed"
)

// ProgressPayload for loading.progress
type ProgressPayload struct {
	Source      string    `json:"source,omitempty"`
	Phase       TaskPhase `json:"phase"`
	Started     int       `json:"started"`
	Ended       int       `json:"ended"`
	Failed      int       `json:"failed"`
	Outstanding int       `json:"outstanding"`
	Error       string    `json:"error,omitempty"`
}

// CompletePayload for loading.complete
type CompletePayload struct {
	TasksStarted int    `json:"tasksStarted"`
	TasksEnded   int    `json:"tasksEnded"`
	TasksFailed  int    `json:"tasksFailed"`
	ElapsedMs    int64  `json:"elapsedMs"` // Since the base load condition
	Error        string `json:"error,omitempty"`
}

// StalledPayload for loading.stalled
type StalledPayload struct {
	Outstanding int   `json:"outstanding"`
	WaitingMs   int64 `json:"waitingMs"`
}

// CanvasReadyPayload for canvas.ready
type CanvasReadyPayload struct {
	Canvas string `json:"canvas"`
}

// ErrorPayload for error messages
type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Details   any    `json:"details,omitempty"`
}
