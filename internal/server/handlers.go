// Package server exposes HTTP handlers, including login, WebSocket upgrades,
// and health checks.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Tyrowin/chatrelay/internal/chat"
)

const maxLoginBodySize = 4 << 10

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "chatrelay server is running!")
}

// LoginHandler claims a display name. The body is {"name": "..."}; the
// answer is {"acceptedName": "..."} or {"message": "..."} with 400 or 409.
// Login never opens a channel.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	s.origins.applyCORS(w, r)
	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBodySize)

	var req chat.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.log.Debug("Malformed login request", "remote_addr", r.RemoteAddr, "error", err)
		s.respond(w, http.StatusBadRequest, errorResponse{Message: "invalid request body"})
		return
	}

	ack, err := s.chat.Login(req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.respond(w, http.StatusOK, ack)
}

// PreflightHandler answers CORS preflight requests for the login endpoint.
func (s *Server) PreflightHandler(w http.ResponseWriter, r *http.Request) {
	if !s.origins.applyCORS(w, r) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.Header().Set("Access-Control-Max-Age", "43200")
	w.WriteHeader(http.StatusNoContent)
}

// WebSocketHandler opens the message channel for a logged-in name given in
// the "name" query parameter. Requests that cannot become a session are
// refused with a plain HTTP error before the upgrade. On success the client
// receives the history first, then every broadcast. It is routed for GET only.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if !s.origins.checkOrigin(r) {
		s.respond(w, http.StatusForbidden, errorResponse{Message: "origin not allowed"})
		return
	}

	name := chat.NormalizeName(r.URL.Query().Get("name"))
	if err := s.chat.CanConnect(name); err != nil {
		s.writeError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, s.chat, s.cfg, s.log, name, r.RemoteAddr)
	if !s.track(client) {
		client.closeConnection()
		return
	}

	if !s.spawn(client.writePump) {
		client.Close()
		client.closeConnection()
		return
	}

	if err := s.chat.Connect(client, name); err != nil {
		client.log.Info("Channel refused", "error", err)
		client.reject(err)
		return
	}

	if !client.markRegistered() {
		// Closed while registering, e.g. the history did not fit the buffer.
		s.chat.Disconnect(client)
		return
	}

	if !s.spawn(client.readPump) {
		s.chat.Disconnect(client)
		client.Close()
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.respond(w, statusFor(err), errorResponse{Message: messageFor(err)})
}

func (s *Server) respond(w http.ResponseWriter, status int, body any) {
	if err := writeJSON(w, status, body); err != nil {
		s.log.Error("Error writing response", "status", status, "error", err)
	}
}

func messageFor(err error) string {
	var e *chat.Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
