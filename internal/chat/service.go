package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Length limits, counted in characters.
const (
	MaxNameLength    = 32
	MaxContentLength = 1000
)

// LoginRequest is the body of a login call.
type LoginRequest struct {
	Name string `json:"name" validate:"required,max=32"`
}

// LoginAck acknowledges a successful login.
type LoginAck struct {
	AcceptedName string `json:"acceptedName"`
}

// EventHandler handles one kind of inbound channel event.
type EventHandler func(ch Channel, data json.RawMessage) error

// Service is the composition root of the chat core. It exposes login and
// the channel lifecycle to transports and dispatches inbound events.
type Service struct {
	log      *slog.Logger
	registry *Registry
	messages *MessageLog
	manager  *Manager

	mu       sync.RWMutex
	handlers map[string]EventHandler
}

func NewService(log *slog.Logger, registry *Registry, messages *MessageLog, manager *Manager) *Service {
	s := &Service{
		log:      log,
		registry: registry,
		messages: messages,
		manager:  manager,
	}
	s.handlers = map[string]EventHandler{
		EventSend: s.handleSend,
	}
	return s
}

// New builds a Service with fresh collaborators.
func New(log *slog.Logger, claimTTL time.Duration) *Service {
	registry := NewRegistry(log, claimTTL)
	messages := NewMessageLog()
	return NewService(log, registry, messages, NewManager(log, registry, messages))
}

// Login claims name for a new session. It does not open a channel.
func (s *Service) Login(name string) (LoginAck, error) {
	req := LoginRequest{Name: NormalizeName(name)}
	if err := validate.Struct(req); err != nil {
		s.log.Debug("Rejected login", "reason", err)
		return LoginAck{}, validationError(err, ErrNameRequired, ErrNameTooLong)
	}

	accepted, err := s.registry.Claim(req.Name)
	if err != nil {
		s.log.Info("Login refused", "name", req.Name, "error", err)
		return LoginAck{}, err
	}

	s.log.Info("Login accepted", "name", accepted)
	return LoginAck{AcceptedName: accepted}, nil
}

// CanConnect reports whether a channel may be opened for name right now.
// Register remains the authoritative check.
func (s *Service) CanConnect(name string) error {
	name = NormalizeName(name)
	if name == "" {
		return ErrNameRequired
	}
	if s.manager.Active(name) {
		return ErrNameTaken
	}
	if !s.registry.Claimed(name) {
		return ErrNotLoggedIn
	}
	return nil
}

// Connect registers ch for a logged-in name and replays the history to it.
func (s *Service) Connect(ch Channel, name string) error {
	return s.manager.Register(ch, NormalizeName(name))
}

// Disconnect ends the session bound to ch. It is safe to call more than once.
func (s *Service) Disconnect(ch Channel) {
	s.manager.Unregister(ch)
}

// Handle installs h for inbound events named event, replacing any existing
// handler.
func (s *Service) Handle(event string, h EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = h
}

// Dispatch routes an inbound event to its handler. Unknown events are
// reported back to ch only.
func (s *Service) Dispatch(ch Channel, evt InboundEvent) error {
	s.mu.RLock()
	h, ok := s.handlers[evt.Event]
	s.mu.RUnlock()
	if !ok {
		s.manager.reject(ch, ErrUnknownEvent)
		return ErrUnknownEvent
	}
	return h(ch, evt.Data)
}

func (s *Service) handleSend(ch Channel, data json.RawMessage) error {
	var payload SendPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.manager.reject(ch, ErrInvalidPayload)
		return ErrInvalidPayload
	}
	if err := validate.Struct(payload); err != nil {
		verr := validationError(err, ErrContentRequired, ErrContentTooLong)
		s.manager.reject(ch, verr)
		return verr
	}
	return s.manager.Send(ch, payload.Content)
}

// validationError maps a failed "required" rule to missing and a failed
// "max" rule to tooLong. Anything else is an invalid payload.
func validationError(err error, missing, tooLong *Error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return ErrInvalidPayload
	}
	switch verrs[0].Tag() {
	case "required":
		return missing
	case "max":
		return tooLong
	default:
		return ErrInvalidPayload
	}
}

// History returns every message sent so far, oldest first.
func (s *Service) History() []Message {
	return s.messages.Snapshot()
}

// Channels returns the registered channels in registration order.
func (s *Service) Channels() []Channel {
	return s.manager.Channels()
}

// Online returns the names of every open session.
func (s *Service) Online() []string {
	return s.manager.Names()
}
