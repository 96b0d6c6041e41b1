package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/outreach/internal/protocol"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 120 * time.Second
)

// handleStreamWS pushes hub events to a console and answers its pings.
func (s *Server) handleStreamWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.StreamClients.Inc()
		defer s.metrics.StreamClients.Dec()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()
	replies := make(chan any, 64)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			var msg any
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				msg = ev
			case reply := <-replies:
				msg = reply
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				s.observeWriteError("write_json")
				cancel()
				return
			}
			s.observeMessage("outbound", msg)
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		var reply any
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			reply = protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Code:      "invalid_client_message",
				Source:    "stream",
				Retryable: false,
				Detail:    err.Error(),
			}
		} else {
			s.observeMessage("inbound", parsed)
			if ping, ok := parsed.(protocol.Ping); ok {
				reply = protocol.Pong{
					Type:       protocol.TypePong,
					Timestamp:  ping.Timestamp,
					Message:    ping.Message,
					ReceivedAt: nowMillis(),
				}
			}
		}
		if reply == nil {
			continue
		}
		select {
		case replies <- reply:
		default:
			// Writes stay single-threaded; drop when the reply queue is saturated.
			s.log.Warn("stream reply dropped", zap.String("remote", r.RemoteAddr))
		}
	}

	cancel()
	<-writerDone
}

func (s *Server) observeMessage(direction string, msg any) {
	if s.metrics == nil {
		return
	}
	if t, ok := protocol.TypeOf(msg); ok {
		s.metrics.WSMessages.WithLabelValues(direction, string(t)).Inc()
	}
}

func (s *Server) observeWriteError(stage string) {
	if s.metrics == nil {
		return
	}
	s.metrics.WSWriteErrors.WithLabelValues(stage).Inc()
}
