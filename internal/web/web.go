package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"ledger-dash/internal/config"
	"ledger-dash/internal/dashboard"
	"ledger-dash/internal/state"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for simplicity
	},
}

// Miner runs one mine action. *dashboard.Controller implements it.
type Miner interface {
	Mine(ctx context.Context) (dashboard.MineResult, error)
}

// client is one connected websocket. Only writePump writes to conn.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Server serves the dashboard page and API endpoints.
type Server struct {
	appState    *state.AppState
	miner       Miner
	triggerSync chan struct{}
	metrics     http.Handler
	cfg         config.WebConfig
	version     string
	sessions    *sessionStore

	clients   map[*client]bool
	clientsMu sync.Mutex
	broadcast chan []byte
}

// New creates a new web server. metrics may be nil to disable /metrics.
func New(appState *state.AppState, miner Miner, triggerSync chan struct{}, cfg config.WebConfig, metrics http.Handler, version string) *Server {
	return &Server{
		appState:    appState,
		miner:       miner,
		triggerSync: triggerSync,
		metrics:     metrics,
		cfg:         cfg,
		version:     version,
		sessions:    newSessionStore(sessionDuration),
		clients:     make(map[*client]bool),
		broadcast:   make(chan []byte, 256),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	if s.cfg.AuthEnabled() {
		r.Get("/login", s.handleLogin)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
	}

	r.Group(func(r chi.Router) {
		if s.cfg.AuthEnabled() {
			r.Use(s.requireAuth)
		}
		r.Get("/", s.handleUI)
		r.Get("/ws", s.handleWebSocket)
		r.Get("/api/regions", s.handleRegions)
		r.Post("/api/refresh", s.handleRefresh)
		r.Post("/api/mine", s.handleMine)
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go s.handleBroadcasts(ctx)
	go s.monitorStateChanges(ctx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Web UI listening", "address", srv.Addr, "auth", s.cfg.AuthEnabled(), "component", "Web")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.closeClients()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Web server shutdown failed", "error", err, "component", "Web")
		return err
	}
	slog.Info("Web server stopped", "component", "Web")
	return nil
}

// handleWebSocket upgrades the connection, sends the current view and then
// streams every later change until the client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err, "component", "Web")
		return
	}

	// Registering and queueing the initial view under one lock keeps it
	// ahead of any broadcast.
	c := &client{conn: conn, send: make(chan []byte, 16)}
	s.clientsMu.Lock()
	if data, err := json.Marshal(s.appState.View()); err == nil {
		c.send <- data
	}
	s.clients[c] = true
	s.clientsMu.Unlock()
	slog.Debug("WebSocket client connected", "remote", r.RemoteAddr, "component", "Web")

	go c.writePump()

	// Wait for client disconnect
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.removeClient(c)
	slog.Debug("WebSocket client disconnected", "remote", r.RemoteAddr, "component", "Web")
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	if s.clients[c] {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}

// handleBroadcasts fans each message out to every client. A client whose
// buffer is full is dropped; it reconnects and receives the full view again.
func (s *Server) handleBroadcasts(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-s.broadcast:
			s.clientsMu.Lock()
			for c := range s.clients {
				select {
				case c.send <- message:
				default:
					delete(s.clients, c)
					close(c.send)
				}
			}
			s.clientsMu.Unlock()
		}
	}
}

// monitorStateChanges broadcasts the view immediately on any mutation, with a
// 1-second ticker as a fallback to catch any updates that may be missed.
// Identical payloads are sent only once.
func (s *Server) monitorStateChanges(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	changeCh := s.appState.ChangeCh()

	var last []byte
	maybeBroadcast := func() {
		data, err := json.Marshal(s.appState.View())
		if err != nil || bytes.Equal(data, last) {
			return
		}
		last = data
		select {
		case s.broadcast <- data:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-changeCh:
			maybeBroadcast()
		case <-ticker.C:
			maybeBroadcast()
		}
	}
}
