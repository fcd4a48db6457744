package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Buffer and delivery constants for the websocket sink.
const (
	wsBufferSize   = 64
	wsWriteTimeout = 2 * time.Second
)

// WebsocketSink pushes events as JSON to a connected UI client. Delivery is
// decoupled from the caller through a buffered channel and a single writer
// goroutine, so Notify never blocks the orchestrator. Events are dropped
// when the buffer is full or the write fails — notifications carry no
// acknowledgment contract.
type WebsocketSink struct {
	conn   *websocket.Conn
	logger *slog.Logger
	events chan Event
	done   chan struct{}
}

// NewWebsocketSink starts the writer loop over an accepted connection.
// The caller owns the connection's lifecycle; Close stops the loop without
// closing the connection.
func NewWebsocketSink(conn *websocket.Conn, logger *slog.Logger) *WebsocketSink {
	if logger == nil {
		logger = slog.Default()
	}

	s := &WebsocketSink{
		conn:   conn,
		logger: logger,
		events: make(chan Event, wsBufferSize),
		done:   make(chan struct{}),
	}

	go s.writeLoop()

	return s
}

func (s *WebsocketSink) Notify(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Debug("websocket sink buffer full, dropping event",
			slog.String("kind", string(ev.Kind)),
		)
	}
}

// Close stops the writer loop. Buffered events not yet written are dropped.
func (s *WebsocketSink) Close() {
	close(s.done)
}

func (s *WebsocketSink) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)

			if err := wsjson.Write(ctx, s.conn, ev); err != nil {
				s.logger.Debug("websocket event write failed, dropping",
					slog.String("error", err.Error()),
				)
			}

			cancel()
		}
	}
}
