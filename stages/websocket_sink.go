package stages

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"

	"github.com/JesseSolomon/dev.jessesolomon.me/core"
	"github.com/JesseSolomon/dev.jessesolomon.me/protocol"
	"github.com/JesseSolomon/dev.jessesolomon.me/telemetry"
)

// WebSocketSinkConfig holds WebSocket sink configuration
type WebSocketSinkConfig struct {
	Conn      *websocket.Conn
	SessionID string
	// Snapshot is sent before any event and seeds the progress counts
	Snapshot *protocol.SnapshotPayload
	Logger   telemetry.Logger
}

// WebSocketSink sends loading events to a page as protocol messages.
// It is the only writer of its connection.
type WebSocketSink struct {
	config WebSocketSinkConfig
	tally  protocol.Tally
}

// NewWebSocketSink creates a new WebSocket sink stage
func NewWebSocketSink(config WebSocketSinkConfig) *WebSocketSink {
	if config.Logger == nil {
		config.Logger = telemetry.Nop()
	}
	return &WebSocketSink{
		config: config,
	}
}

// Name returns the stage name
func (ws *WebSocketSink) Name() string {
	return "websocket_sink"
}

// Process implements the Stage interface
// It reads events from the input channel and sends them to the WebSocket connection
func (ws *WebSocketSink) Process(ctx context.Context, input <-chan core.Event, output chan<- core.Event) error {
	logger := ws.config.Logger.WithModule(ws.Name()).With(telemetry.String("session_id", ws.config.SessionID))
	logger.Info("Starting WebSocket sink stage")

	if snap := ws.config.Snapshot; snap != nil {
		ws.tally = protocol.Tally{
			Started:     snap.Started,
			Ended:       snap.Ended,
			Failed:      snap.Failed,
			Outstanding: snap.Outstanding,
		}
		if err := ws.write(protocol.NewSnapshotMessage(ws.config.SessionID, *snap)); err != nil {
			logger.Error("Failed to send snapshot to WebSocket", telemetry.Err(err))
			drain(input)
			return nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("WebSocket sink context cancelled")
			return ctx.Err()

		case event, ok := <-input:
			if !ok {
				logger.Info("WebSocket sink input channel closed")
				return nil
			}

			ws.tally.Observe(event)

			// Convert event to protocol message
			msg := protocol.EventToMessage(event, ws.config.SessionID, "", ws.tally)
			if msg == nil {
				logger.Debug("Skipping event", telemetry.String("event_type", string(event.EventType())))
				continue
			}

			if err := ws.write(msg); err != nil {
				logger.Error("Failed to send message to WebSocket", telemetry.Err(err), telemetry.String("type", string(msg.Type)))
				// Connection closed or failed: drain input so upstream
				// stages are not blocked
				drain(input)
				return nil
			}

			logger.Debug("Sent event to WebSocket", telemetry.String("type", string(msg.Type)))
		}
	}
}

func (ws *WebSocketSink) write(msg *protocol.OutputMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return ws.config.Conn.WriteMessage(websocket.TextMessage, data)
}

func drain(input <-chan core.Event) {
	for range input {
	}
}

// InputTypes returns the input event types this stage accepts
func (ws *WebSocketSink) InputTypes() []core.EventType {
	// WebSocket sink accepts all event types
	return []core.EventType{}
}

// OutputTypes returns the output event types this stage produces
func (ws *WebSocketSink) OutputTypes() []core.EventType {
	// Terminal stage
	return []core.EventType{}
}
