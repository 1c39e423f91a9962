// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/SP4567/smart-home-whisper/pkg/logger"
	"github.com/SP4567/smart-home-whisper/pkg/metrics"
	"github.com/SP4567/smart-home-whisper/store"
)

// WebSocket timing and buffering.
const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingInterval   = (wsPongWait * 9) / 10
	wsMaxMessageSize = 512
	wsSendBuffer     = 16
)

// WSMessage is one frame sent to a client.
type WSMessage struct {
	Type    string         `json:"type"`
	Payload store.Snapshot `json:"payload"`
}

// WSTypeSnapshot tags a full state snapshot.
const WSTypeSnapshot = "snapshot"

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin allows same-origin requests, requests without an Origin header
// and the configured origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// handleWebSocket streams store snapshots: the current one on connect, then
// one per change. Snapshots a slow client cannot keep up with are skipped.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	snapshots, unsubscribe := s.store.Subscribe(wsSendBuffer)
	metrics.WebSocketClients.Inc()
	logger.Debug().Str("remote_addr", r.RemoteAddr).Msg("WebSocket client connected")

	done := make(chan struct{})
	go readPump(conn, done)
	writePump(conn, snapshots, done)

	unsubscribe()
	metrics.WebSocketClients.Dec()
	logger.Debug().Str("remote_addr", r.RemoteAddr).Msg("WebSocket client disconnected")
}

// readPump discards client frames and closes done when the connection ends.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}
	}
}

func writePump(conn *websocket.Conn, snapshots <-chan store.Snapshot, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case snap, ok := <-snapshots:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			data, err := json.Marshal(WSMessage{Type: WSTypeSnapshot, Payload: snap})
			if err != nil {
				logger.Error().Err(err).Msg("Failed to encode snapshot")
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
