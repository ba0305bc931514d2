// Package server constructs and starts the relay HTTP service with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Tyrowin/chatrelay/internal/chat"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// Server owns the transport state: live WebSocket clients, their pump
// goroutines and the origin policy. Chat state lives in the chat.Service.
type Server struct {
	cfg      Config
	log      *slog.Logger
	chat     *chat.Service
	origins  *originPolicy
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]struct{}
	closing bool
	wg      sync.WaitGroup
}

// New creates a Server serving svc with the given configuration.
func New(cfg *Config, log *slog.Logger, svc *chat.Service) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	sanitized := sanitizeConfig(*cfg)
	origins := newOriginPolicy(log, sanitized.AllowedOrigins)

	return &Server{
		cfg:     sanitized,
		log:     log,
		chat:    svc,
		origins: origins,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		clients: make(map[*Client]struct{}),
	}
}

// Config returns the sanitized configuration in use.
func (s *Server) Config() Config {
	cfg := s.cfg
	cfg.AllowedOrigins = append([]string(nil), s.cfg.AllowedOrigins...)
	return cfg
}

// ClientCount returns the number of tracked WebSocket connections.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// track adds c to the live set. It fails once shutdown has started.
func (s *Server) track(c *Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.clients[c] = struct{}{}
	c.onClose = s.untrack
	return true
}

func (s *Server) untrack(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c)
}

// spawn runs fn in a goroutine accounted for by Shutdown.
func (s *Server) spawn(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

// shutdownClients closes every active client connection.
func (s *Server) shutdownClients() {
	s.log.Info("Shutting down all client connections...")

	s.mu.Lock()
	clients := lo.Keys(s.clients)
	s.mu.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			client.closeConnection()
		}
	}

	s.log.Info("Closed client connections", "count", len(clients))
}

// Shutdown refuses new connections, closes the live ones and waits for their
// pumps to finish, or until the timeout is reached.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.log.Info("Initiating relay shutdown...")

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.shutdownClients()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Relay shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		s.log.Warn("Relay shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer starts the HTTP server and blocks until it stops.
func StartServer(server *http.Server, log *slog.Logger) error {
	log.Info("Server listening", "addr", server.Addr)
	return server.ListenAndServe()
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active requests.
// Hijacked WebSocket connections are not covered; see Server.Shutdown.
func ShutdownServer(server *http.Server, timeout time.Duration, log *slog.Logger) error {
	log.Info("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
		return err
	}

	log.Info("HTTP server shutdown completed")
	return nil
}
