// Package web implements the HTTP/SSE/websocket surface (C12), grounded
// on scheduler/server.go's http.Server configuration, sync.Map client
// registry, and buildStatusData pattern.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sixdouglas/suncalc"

	"github.com/devskill-org/phaeton-driver/internal/bus"
	"github.com/devskill-org/phaeton-driver/internal/config"
	"github.com/devskill-org/phaeton-driver/internal/control"
	"github.com/devskill-org/phaeton-driver/internal/driver"
	"github.com/devskill-org/phaeton-driver/internal/logging"
)

// Server is the read-mostly HTTP/SSE surface in front of a Driver's
// watch slot, the log ring buffer, and the command sink.
type Server struct {
	cfg      *config.Config
	logger   *log.Logger
	watch    *driver.Watch
	logs     *logging.RingBuffer
	commands bus.CommandSink
	startTime time.Time

	httpServer *http.Server
	upgrader   websocket.Upgrader
	wsClients  sync.Map
	broadcast  chan []byte
	done       chan struct{}
}

// NewServer constructs a Server. Call Start to begin listening.
func NewServer(cfg *config.Config, logger *log.Logger, watch *driver.Watch, logs *logging.RingBuffer, commands bus.CommandSink) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		watch:     watch,
		logs:      logs,
		commands:  commands,
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.HandleFunc("/api/mode", s.handleSetMode)
	mux.HandleFunc("/api/startstop", s.handleSetStartStop)
	mux.HandleFunc("/api/set_current", s.handleSetCurrent)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/logs/head", s.handleLogsHead)
	mux.HandleFunc("/api/logs/tail", s.handleLogsTail)
	mux.HandleFunc("/api/logs/download", s.handleLogsDownload)
	mux.HandleFunc("/api/logs/stream", s.handleLogsStream)
	mux.HandleFunc("/api/status/stream", s.handleStatusStream)
	mux.HandleFunc("/api/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:         cfg.Web.ListenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE/websocket handlers stream indefinitely.
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening in the background. A bind failure is returned
// synchronously before any goroutine is spawned (spec §6's "binding
// HTTP port failure" is a fatal startup error).
func (s *Server) Start() error {
	ln, err := listen(s.cfg.Web.ListenAddr)
	if err != nil {
		return fmt.Errorf("web: listen %s: %w", s.cfg.Web.ListenAddr, err)
	}

	go s.handleBroadcasts()
	go s.broadcastStatusPeriodically()
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("web: server error: %v", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down, closing any open websocket
// connections first.
func (s *Server) Stop(ctx context.Context) error {
	close(s.done)
	s.wsClients.Range(func(key, _ any) bool {
		if conn, ok := key.(*websocket.Conn); ok {
			conn.Close()
		}
		return true
	})
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "ok")
}

type sunInfo struct {
	Altitude float64 `json:"altitude"`
	Sunrise  string  `json:"sunrise"`
	Sunset   string  `json:"sunset"`
}

type statusResponse struct {
	driver.DriverSnapshot
	Sun sunInfo `json:"sun"`
}

func (s *Server) buildStatus() statusResponse {
	snap, _ := s.watch.Latest()

	now := time.Now()
	times := suncalc.GetTimes(now, s.cfg.Location.Latitude, s.cfg.Location.Longitude)
	pos := suncalc.GetPosition(now, s.cfg.Location.Latitude, s.cfg.Location.Longitude)

	sun := sunInfo{Altitude: pos.Altitude * 180 / math.Pi}
	if t, ok := times["sunrise"]; ok {
		sun.Sunrise = t.Value.Format(time.RFC3339)
	}
	if t, ok := times["sunset"]; ok {
		sun.Sunset = t.Value.Format(time.RFC3339)
	}

	return statusResponse{DriverSnapshot: snap, Sun: sun}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.buildStatus())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap, _ := s.watch.Latest()
	m := driver.Metrics{
		TotalPolls:         snap.TotalPolls,
		OverrunCount:       snap.OverrunCount,
		PollIntervalMs:     snap.PollIntervalMs,
		LastPollDurationMs: snap.LastPollDurationMs,
		ModbusConnected:    snap.ModbusConnected,
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg)
}

type modeRequest struct {
	Mode int `json:"mode"`
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "mode", "invalid JSON body")
		return
	}
	if req.Mode < int(control.ModeManual) || req.Mode > int(control.ModeScheduled) {
		writeValidationError(w, "mode", "must be 0, 1, or 2")
		return
	}
	s.commands.Enqueue(bus.Command{Kind: bus.CommandSetMode, ModeValue: req.Mode})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type startStopRequest struct {
	Value int `json:"value"`
}

func (s *Server) handleSetStartStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req startStopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "value", "invalid JSON body")
		return
	}
	if req.Value != 0 && req.Value != 1 {
		writeValidationError(w, "value", "must be 0 or 1")
		return
	}
	s.commands.Enqueue(bus.Command{Kind: bus.CommandSetStartStop, StartStop: req.Value})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type setCurrentRequest struct {
	Amps float32 `json:"amps"`
}

func (s *Server) handleSetCurrent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req setCurrentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, "amps", "invalid JSON body")
		return
	}
	if req.Amps < 0 || req.Amps > s.cfg.Controls.MaxSetCurrent {
		writeValidationError(w, "amps", fmt.Sprintf("must be between 0 and %v", s.cfg.Controls.MaxSetCurrent))
		return
	}
	s.commands.Enqueue(bus.Command{Kind: bus.CommandSetCurrent, CurrentA: req.Amps})
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeValidationError(w http.ResponseWriter, field, reason string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"field": field, "reason": reason})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func listen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
