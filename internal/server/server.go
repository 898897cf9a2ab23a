// Package server exposes a read-only status endpoint for a running
// recording, as plain JSON and as a WebSocket stream.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/looprec/looprec/internal/recorder"
)

// StatusFunc returns the current recorder status snapshot.
type StatusFunc func() recorder.Status

// Server serves recording status over HTTP and WebSocket.
type Server struct {
	addr     string
	interval time.Duration
	status   StatusFunc
}

// New returns a status server bound to addr that polls status at the given
// interval for WebSocket subscribers.
func New(addr string, interval time.Duration, status StatusFunc) *Server {
	return &Server{addr: addr, interval: interval, status: status}
}

// Routes returns an [http.Handler] with the status endpoints.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start begins serving in the background and returns the *http.Server for
// graceful shutdown.
func (s *Server) Start() *http.Server {
	slog.Info("starting status server", "addr", s.addr)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Routes(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("status server error", "error", err)
		}
	}()

	return srv
}

// handleStatus serves a single status snapshot as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.status()); err != nil {
		slog.Error("failed to encode status response", "error", err)
	}
}

// handleWebSocket streams status snapshots at the configured interval until
// the client disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Reader goroutine - only there to notice the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Send an initial snapshot so clients see state immediately.
	if err := conn.WriteJSON(s.status()); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.status()); err != nil {
				return
			}
		}
	}
}
