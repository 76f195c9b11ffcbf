// Package transport serves the relay protocol over websockets and exposes
// health and metrics endpoints.
package transport

import (
	"context"
	"net/http"
	"sync"

	"github.com/dmitrijs2005/cipherroom/internal/logging"
	"github.com/dmitrijs2005/cipherroom/internal/server/hub"
	"github.com/dmitrijs2005/cipherroom/internal/server/metrics"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Server struct {
	hub    *hub.Hub
	logger logging.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	conns map[string]*Conn
}

func NewServer(h *hub.Hub, l logging.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		hub:    h,
		logger: l.With("module", "transport"),
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[string]*Conn),
	}
}

// Router mounts /ws, /healthz and, when enabled, /metrics.
func (s *Server) Router(withMetrics bool) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.serveWS).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)
	if withMetrics {
		r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}
	return r
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		s.logger.Warn(r.Context(), "upgrade failed", "error", err)
		return
	}

	c := newConn(s.ctx, ws, s.hub, s.logger, s.forget)
	s.mu.Lock()
	s.conns[c.ID()] = c
	s.mu.Unlock()
	metrics.Connections.Inc()
	s.logger.Debug(r.Context(), "connection opened", "conn", c.ID(), "remote", r.RemoteAddr)

	go c.serve()
}

func (s *Server) forget(c *Conn) {
	s.mu.Lock()
	_, ok := s.conns[c.ID()]
	delete(s.conns, c.ID())
	s.mu.Unlock()
	if ok {
		metrics.Connections.Dec()
	}
}

// CloseAll closes every open websocket. Hijacked connections are not
// covered by http.Server.Shutdown.
func (s *Server) CloseAll() {
	s.cancel()
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

// Open returns the number of open websocket connections.
func (s *Server) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
