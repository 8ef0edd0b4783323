package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// handleWS implements the additive /api/ws channel (SPEC_FULL §2/§3):
// pushes the same DriverSnapshot JSON frames as the SSE status stream,
// for dashboard clients that prefer a socket, grounded on
// scheduler/server.go's Upgrader/sync.Map client registry.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("web: websocket upgrade error: %v", err)
		return
	}

	s.wsClients.Store(conn, true)
	defer func() {
		s.wsClients.Delete(conn)
		conn.Close()
	}()

	if snap, ok := s.watch.Latest(); ok {
		if err := conn.WriteJSON(snap); err != nil {
			s.logger.Printf("web: initial websocket send failed: %v", err)
		}
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Printf("web: websocket error: %v", err)
			}
			return
		}
	}
}

// handleBroadcasts fans broadcast messages out to every connected
// websocket client, dropping a client whose write fails.
func (s *Server) handleBroadcasts() {
	for {
		select {
		case message := <-s.broadcast:
			s.wsClients.Range(func(key, _ any) bool {
				conn, ok := key.(*websocket.Conn)
				if !ok {
					return true
				}
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					conn.Close()
					s.wsClients.Delete(conn)
				}
				return true
			})
		case <-s.done:
			return
		}
	}
}

// broadcastStatusPeriodically pushes the latest snapshot to connected
// websocket clients every 5 seconds, mirroring scheduler/server.go's
// broadcastStatus cadence.
func (s *Server) broadcastStatusPeriodically() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hasClients := false
			s.wsClients.Range(func(_, _ any) bool {
				hasClients = true
				return false
			})
			if !hasClients {
				continue
			}
			snap, ok := s.watch.Latest()
			if !ok {
				continue
			}
			data, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			select {
			case s.broadcast <- data:
			default:
			}
		case <-s.done:
			return
		}
	}
}
