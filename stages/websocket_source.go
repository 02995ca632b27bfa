package stages

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gorilla/websocket"

	loading "github.com/JesseSolomon/dev.jessesolomon.me"
	"github.com/JesseSolomon/dev.jessesolomon.me/core"
	"github.com/JesseSolomon/dev.jessesolomon.me/protocol"
	"github.com/JesseSolomon/dev.jessesolomon.me/telemetry"
)

// WebSocketSourceConfig holds WebSocket source configuration
type WebSocketSourceConfig struct {
	Conn      *websocket.Conn
	SessionID string
	// Bus receives every decoded event. Optional.
	Bus    *loading.Bus
	Logger telemetry.Logger
}

// WebSocketSource reads lifecycle messages reported by a page
type WebSocketSource struct {
	config WebSocketSourceConfig
}

// NewWebSocketSource creates a new WebSocket source
func NewWebSocketSource(config WebSocketSourceConfig) *WebSocketSource {
	if config.Logger == nil {
		config.Logger = telemetry.Nop()
	}
	return &WebSocketSource{config: config}
}

// Run reads messages until the connection closes or ctx is done. Decoded
// events are published on the bus and sent to output, which may be nil and
// is closed on return. Malformed messages are logged and skipped.
func (s *WebSocketSource) Run(ctx context.Context, output chan<- core.Event) error {
	if output != nil {
		defer close(output)
	}
	logger := s.config.Logger.WithModule("websocket_source").With(telemetry.String("session_id", s.config.SessionID))

	stop := context.AfterFunc(ctx, func() {
		// Unblocks ReadMessage
		_ = s.config.Conn.Close()
	})
	defer stop()

	for {
		mt, data, err := s.config.Conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info("Page closed connection")
				return nil
			}
			return err
		}
		if mt != websocket.TextMessage {
			logger.Warn("Ignoring non-text message")
			continue
		}

		var msg protocol.InputMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("Ignoring malformed message", telemetry.Err(err))
			continue
		}

		event, err := protocol.MessageToEvent(msg)
		if err != nil {
			logger.Warn("Ignoring message", telemetry.Err(err), telemetry.String("type", string(msg.Type)))
			continue
		}

		if s.config.Bus != nil {
			if err := s.config.Bus.Publish(event); err != nil {
				if errors.Is(err, loading.ErrBusClosed) {
					return nil
				}
				return err
			}
		}
		if output != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case output <- event:
			}
		}
		logger.Debug("Received event", telemetry.String("event_type", string(event.EventType())))
	}
}
