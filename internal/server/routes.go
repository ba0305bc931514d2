// Package server wires HTTP handlers into a ServeMux via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all relay routes:
// health check, login with its CORS preflight, and the WebSocket channel.
func SetupRoutes(s *Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", HealthHandler)
	mux.HandleFunc("POST /api/auth", s.LoginHandler)
	mux.HandleFunc("OPTIONS /api/auth", s.PreflightHandler)
	mux.HandleFunc("GET /ws", s.WebSocketHandler)
	return mux
}

// Routes is shorthand for SetupRoutes(s).
func (s *Server) Routes() *http.ServeMux {
	return SetupRoutes(s)
}
