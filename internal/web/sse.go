package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const keepAliveInterval = 15 * time.Second

// handleStatusStream implements GET /api/status/stream: an SSE feed of
// driver snapshots, one event per published tick (spec §4.12).
func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.watch.Subscribe(8)
	defer cancel()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

// handleLogsStream implements GET /api/logs/stream: SSE of new log
// lines as they are written (spec §4.12/§1.1: event name "log").
func (s *Server) handleLogsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.logs.Subscribe(64)
	defer cancel()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case line, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: log\ndata: %s\n\n", line)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

const (
	defaultLogLines = 200
	maxLogLines     = 10000
)

func parseLinesParam(r *http.Request) int {
	n := defaultLogLines
	if raw := r.URL.Query().Get("lines"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			n = parsed
		}
	}
	if n > maxLogLines {
		n = maxLogLines
	}
	return n
}

// handleLogsHead implements GET /api/logs/head?lines=N.
func (s *Server) handleLogsHead(w http.ResponseWriter, r *http.Request) {
	writePlainLines(w, s.logs.Head(parseLinesParam(r)))
}

// handleLogsTail implements GET /api/logs/tail?lines=N.
func (s *Server) handleLogsTail(w http.ResponseWriter, r *http.Request) {
	writePlainLines(w, s.logs.Tail(parseLinesParam(r)))
}

// handleLogsDownload implements GET /api/logs/download: every retained
// line, uncapped.
func (s *Server) handleLogsDownload(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Disposition", "attachment; filename=\"phaeton.log\"")
	writePlainLines(w, s.logs.All())
}

func writePlainLines(w http.ResponseWriter, lines []string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}
