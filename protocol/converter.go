package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/JesseSolomon/dev.jessesolomon.me/core"
)

// ErrUnknownMessage is returned for input messages of an unknown type
var ErrUnknownMessage = errors.New("protocol: unknown message type")

// Tally follows task counts across progress messages of one connection.
// Ends beyond starts never make Outstanding negative.
type Tally struct {
	Started     int
	Ended       int
	Failed      int
	Outstanding int
}

// Observe counts a lifecycle event
func (t *Tally) Observe(event core.Event) {
	switch event.(type) {
	case core.TaskStartEvent:
		t.Started++
		t.Outstanding++
	case core.TaskEndEvent:
		t.Ended++
		t.Outstanding = max(t.Outstanding-1, 0)
	case core.TaskFailedEvent:
		t.Failed++
		t.Outstanding = max(t.Outstanding-1, 0)
	}
}

// EventToMessage converts an event to an output message. Task events are
// reported with the counts of tally, which the caller updates first.
// It returns nil for events pages are not told about.
func EventToMessage(event core.Event, sessionID, replyTo string, tally Tally) *OutputMessage {
	msg := &OutputMessage{
		ID:        generateMessageID(),
		SessionID: sessionID,
		ReplyTo:   replyTo,
		Timestamp: time.Now().UnixMilli(),
	}

	progress := func(source string, phase TaskPhase, err error) ProgressPayload {
		p := ProgressPayload{
			Source:      source,
			Phase:       phase,
			Started:     tally.Started,
			Ended:       tally.Ended,
			Failed:      tally.Failed,
			Outstanding: tally.Outstanding,
		}
		if err != nil {
			p.Error = err.Error()
		}
		return p
	}

	switch e := event.(type) {
	case core.TaskStartEvent:
		msg.Type = OutputProgress
		msg.Payload = progress(e.Source, PhaseStart, nil)

	case core.TaskEndEvent:
		msg.Type = OutputProgress
		msg.Payload = progress(e.Source, PhaseEnd, nil)

	case core.TaskFailedEvent:
		msg.Type = OutputProgress
		msg.Payload = progress(e.Source, PhaseFailed, e.Error)

	case core.LoadedEvent:
		msg.Type = OutputComplete
		payload := CompletePayload{
			TasksStarted: e.TasksStarted,
			TasksEnded:   e.TasksEnded,
			TasksFailed:  e.TasksFailed,
			ElapsedMs:    e.Elapsed.Milliseconds(),
		}
		if e.Err != nil {
			payload.Error = e.Err.Error()
		}
		msg.Payload = payload

	case core.StalledEvent:
		msg.Type = OutputStalled
		msg.Payload = StalledPayload{
			Outstanding: e.Outstanding,
			WaitingMs:   e.Waiting.Milliseconds(),
		}

	case core.CanvasReadyEvent:
		msg.Type = OutputCanvasReady
		msg.Payload = CanvasReadyPayload{Canvas: e.Canvas}

	case core.ErrorEvent:
		msg.Type = OutputError
		errMsg := ""
		if e.Error != nil {
			errMsg = e.Error.Error()
		}
		msg.Payload = ErrorPayload{
			Code:    "LOADING_ERROR",
			Message: errMsg,
		}

	default:
		// Load and resize stay on the server
		return nil
	}

	return msg
}

// MessageToEvent converts an input message to the lifecycle event it
// announces
func MessageToEvent(msg InputMessage) (core.Event, error) {
	var payload TaskPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", msg.Type, err)
		}
	}

	switch msg.Type {
	case InputLoad:
		return core.LoadEvent{}, nil
	case InputTaskStart:
		return core.TaskStartEvent{Source: payload.Source}, nil
	case InputTaskEnd:
		return core.TaskEndEvent{Source: payload.Source}, nil
	case InputTaskFailed:
		reason := payload.Error
		if reason == "" {
			reason = "task failed"
		}
		return core.TaskFailedEvent{Source: payload.Source, Error: errors.New(reason)}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}

// NewSnapshotMessage creates a loading.snapshot message
func NewSnapshotMessage(sessionID string, snapshot SnapshotPayload) *OutputMessage {
	return &OutputMessage{
		Type:      OutputSnapshot,
		ID:        generateMessageID(),
		SessionID: sessionID,
		Payload:   snapshot,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewErrorMessage creates an error message
func NewErrorMessage(sessionID, replyTo, code, message string, retryable bool, details any) *OutputMessage {
	return &OutputMessage{
		Type:      OutputError,
		ID:        generateMessageID(),
		SessionID: sessionID,
		ReplyTo:   replyTo,
		Payload: ErrorPayload{
			Code:      code,
			Message:   message,
			Retryable: retryable,
			Details:   details,
		},
		Timestamp: time.Now().UnixMilli(),
	}
}

var messageSeq atomic.Uint64

// generateMessageID generates a unique message ID
func generateMessageID() string {
	return "msg-" + time.Now().Format("20060102150405.000000") + "-" + strconv.FormatUint(messageSeq.Add(1), 10)
}
