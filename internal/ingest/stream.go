package ingest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/traverse-labs/waypost/internal/record"
)

const (
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB

	// Time allowed to write a control message to the peer.
	writeWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // Source runs on-device
}

// handleStream upgrades to a websocket and reads fixes until the peer
// disconnects. Each text message is either one fix object or an array of
// fixes; every message is forwarded to the engine as one batch.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	connID := uuid.New().String()
	s.logger.Debug("fix stream connected", zap.String("connID", connID))

	// Runs on the handler goroutine so the request context stays alive for
	// the lifetime of the stream.
	s.readPump(r, conn, connID)
}

func (s *Server) readPump(r *http.Request, conn *websocket.Conn, connID string) {
	defer func() {
		_ = conn.Close()
		s.logger.Debug("fix stream disconnected", zap.String("connID", connID))
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ping.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("fix stream read error",
					zap.String("connID", connID),
					zap.Error(err),
				)
			}
			return
		}

		fixes, err := decodeFixes(msg)
		if err != nil {
			s.logger.Warn("dropping malformed fix message",
				zap.String("connID", connID),
				zap.Error(err),
			)
			continue
		}

		if err := s.engine.OnNewFixes(r.Context(), fixes); err != nil {
			s.logger.Error("buffering streamed fixes",
				zap.String("connID", connID),
				zap.Error(err),
			)
		}
	}
}

func decodeFixes(msg []byte) ([]record.Fix, error) {
	var fixes []record.Fix
	if err := json.Unmarshal(msg, &fixes); err == nil {
		return fixes, nil
	}
	var fix record.Fix
	if err := json.Unmarshal(msg, &fix); err != nil {
		return nil, err
	}
	return []record.Fix{fix}, nil
}
