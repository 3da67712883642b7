package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hammamikhairi/smartnotifier/internal/domain"
)

const (
	writeWait  = 5 * time.Second
	pingPeriod = 30 * time.Second
)

// logFrame is one websocket message of the log stream.
type logFrame struct {
	Type string            `json:"type"`
	Logs []domain.LogEntry `json:"logs"`
}

// handleLogStream pushes the latest log snapshot on connect and after every
// log change until the client goes away.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	changes, unsubscribe := s.ingest.Subscribe()
	defer unsubscribe()

	// Drain client frames; a read error means the peer closed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := r.Context()
	if err := s.sendLogs(ctx, conn); err != nil {
		s.log.Debug("ws: %v", err)
		return
	}
	s.log.Debug("ws: log stream opened from %s", r.RemoteAddr)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			s.log.Debug("ws: log stream closed by %s", r.RemoteAddr)
			return
		case <-s.closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			return
		case <-changes:
			if err := s.sendLogs(ctx, conn); err != nil {
				s.log.Debug("ws: %v", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) sendLogs(ctx context.Context, conn *websocket.Conn) error {
	logs, err := s.app.Logs(ctx, 0)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(logFrame{Type: "logs", Logs: nonNil(logs)})
}
