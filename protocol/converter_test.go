package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JesseSolomon/dev.jessesolomon.me/core"
)

func TestTallyClampsOutstanding(t *testing.T) {
	var tally Tally
	tally.Observe(core.TaskStartEvent{})
	tally.Observe(core.TaskEndEvent{})
	tally.Observe(core.TaskEndEvent{})
	tally.Observe(core.LoadEvent{})

	assert.Equal(t, Tally{Started: 1, Ended: 2, Outstanding: 0}, tally)
}

func TestEventToMessageProgress(t *testing.T) {
	tally := Tally{Started: 2, Ended: 1, Outstanding: 1}
	msg := EventToMessage(core.TaskEndEvent{Source: "shaders:intro"}, "s1", "", tally)
	require.NotNil(t, msg)

	assert.Equal(t, OutputProgress, msg.Type)
	assert.Equal(t, "s1", msg.SessionID)
	assert.Equal(t, ProgressPayload{
		Source:      "shaders:intro",
		Phase:       PhaseEnd,
		Started:     2,
		Ended:       1,
		Outstanding: 1,
	}, msg.Payload)
}

func TestEventToMessageComplete(t *testing.T) {
	msg := EventToMessage(core.LoadedEvent{
		TasksStarted: 3,
		TasksEnded:   2,
		TasksFailed:  1,
		Elapsed:      1500 * time.Millisecond,
		Err:          errors.New("aborted"),
	}, "s1", "", Tally{})
	require.NotNil(t, msg)

	assert.Equal(t, OutputComplete, msg.Type)
	payload := msg.Payload.(CompletePayload)
	assert.Equal(t, int64(1500), payload.ElapsedMs)
	assert.Equal(t, "aborted", payload.Error)
	assert.Equal(t, 1, payload.TasksFailed)
}

func TestEventToMessageSkipsServerEvents(t *testing.T) {
	assert.Nil(t, EventToMessage(core.LoadEvent{}, "s1", "", Tally{}))
	assert.Nil(t, EventToMessage(&core.CanvasResizeEvent{}, "s1", "", Tally{}))
}

func TestOutputMessageJSON(t *testing.T) {
	msg := EventToMessage(core.StalledEvent{Outstanding: 2, Waiting: 5 * time.Second}, "s1", "", Tally{})
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "loading.stalled", decoded["type"])
	assert.Equal(t, map[string]any{"outstanding": 2.0, "waitingMs": 5000.0}, decoded["payload"])
}

func TestMessageToEvent(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want core.Event
	}{
		{"load", `{"type":"lifecycle.load"}`, core.LoadEvent{}},
		{"start", `{"type":"task.start","payload":{"source":"nwa"}}`, core.TaskStartEvent{Source: "nwa"}},
		{"end", `{"type":"task.end","payload":{"source":"nwa"}}`, core.TaskEndEvent{Source: "nwa"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg InputMessage
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &msg))
			ev, err := MessageToEvent(msg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestMessageToEventFailed(t *testing.T) {
	var msg InputMessage
	require.NoError(t, json.Unmarshal([]byte(`{"type":"task.failed","payload":{"source":"intro","error":"404"}}`), &msg))

	ev, err := MessageToEvent(msg)
	require.NoError(t, err)
	failed := ev.(core.TaskFailedEvent)
	assert.Equal(t, "intro", failed.Source)
	assert.EqualError(t, failed.Error, "404")
}

func TestMessageToEventRejectsUnknown(t *testing.T) {
	_, err := MessageToEvent(InputMessage{Type: "input.text"})
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = MessageToEvent(InputMessage{Type: InputTaskStart, Payload: json.RawMessage(`"nope"`)})
	assert.Error(t, err)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, StatusWaiting, StatusOf(false, false, nil))
	assert.Equal(t, StatusLoading, StatusOf(true, false, nil))
	assert.Equal(t, StatusLoaded, StatusOf(true, true, nil))
	assert.Equal(t, StatusFailed, StatusOf(false, true, errors.New("abort")))
}

func TestGenerateMessageIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		id := generateMessageID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}
