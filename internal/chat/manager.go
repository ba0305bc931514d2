package chat

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/samber/lo"
)

type session struct {
	channel Channel
	name    string
}

// Manager owns the set of registered channels and fans messages out to them.
// A single mutex serializes register, send and unregister so that history
// replay, append and broadcast form one total order.
type Manager struct {
	mu       sync.Mutex
	log      *slog.Logger
	registry *Registry
	messages *MessageLog
	sessions []*session
	byID     map[string]*session
	byName   map[string]*session
}

func NewManager(log *slog.Logger, registry *Registry, messages *MessageLog) *Manager {
	return &Manager{
		log:      log,
		registry: registry,
		messages: messages,
		byID:     make(map[string]*session),
		byName:   make(map[string]*session),
	}
}

// Register binds ch to the logged-in name and pushes the full history to it
// as a single loadHistory event before any later broadcast can reach it.
func (m *Manager) Register(ch Channel, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := ch.ID()
	if _, ok := m.byID[id]; ok {
		return ErrChannelRegistered
	}
	if _, ok := m.byName[name]; ok {
		return ErrNameTaken
	}
	if !m.registry.Activate(name) {
		return ErrNotLoggedIn
	}

	history := m.messages.Snapshot()
	if err := ch.Send(loadHistoryEvent(history)); err != nil {
		m.registry.Release(name)
		return NewTransportError(id, err)
	}

	s := &session{channel: ch, name: name}
	m.sessions = append(m.sessions, s)
	m.byID[id] = s
	m.byName[name] = s

	m.log.Info("Channel registered",
		"channel_id", id,
		"name", name,
		"history", len(history),
		"total_channels", len(m.sessions))
	return nil
}

// Send appends content from ch's session to the log and broadcasts it to
// every registered channel, sender included. Invalid content is reported to
// ch alone.
func (m *Manager) Send(ch Channel, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byID[ch.ID()]
	if !ok {
		m.reject(ch, ErrNotRegistered)
		return ErrNotRegistered
	}
	if strings.TrimSpace(content) == "" {
		m.reject(ch, ErrContentRequired)
		return ErrContentRequired
	}

	msg := Message{Name: s.name, Content: content}
	m.messages.Append(msg)

	delivered := m.broadcast(newMessageEvent(msg))
	m.log.Debug("Message broadcast",
		"name", s.name,
		"delivered", delivered,
		"total_channels", len(m.sessions))
	return nil
}

// broadcast delivers evt in registration order. A failing channel is logged
// and skipped. Callers hold m.mu.
func (m *Manager) broadcast(evt OutboundEvent) int {
	delivered := 0
	for _, s := range m.sessions {
		if err := s.channel.Send(evt); err != nil {
			m.log.Warn("Dropping event for channel",
				"channel_id", s.channel.ID(),
				"name", s.name,
				"event", evt.Event,
				"error", NewTransportError(s.channel.ID(), err))
			continue
		}
		delivered++
	}
	return delivered
}

func (m *Manager) reject(ch Channel, err error) {
	if sendErr := ch.Send(NewErrorEvent(err)); sendErr != nil {
		m.log.Warn("Could not report error to channel",
			"channel_id", ch.ID(),
			"reason", err,
			"error", sendErr)
	}
}

// Unregister removes ch and releases its name. Unknown channels are ignored.
func (m *Manager) Unregister(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := ch.ID()
	s, ok := m.byID[id]
	if !ok {
		return
	}

	delete(m.byID, id)
	delete(m.byName, s.name)
	m.sessions = lo.Filter(m.sessions, func(other *session, _ int) bool {
		return other != s
	})
	m.registry.Release(s.name)

	m.log.Info("Channel unregistered",
		"channel_id", id,
		"name", s.name,
		"total_channels", len(m.sessions))
}

// Channels returns the registered channels in registration order.
func (m *Manager) Channels() []Channel {
	m.mu.Lock()
	defer m.mu.Unlock()

	return lo.Map(m.sessions, func(s *session, _ int) Channel {
		return s.channel
	})
}

// Names returns the display names with an open channel, in registration order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return lo.Map(m.sessions, func(s *session, _ int) string {
		return s.name
	})
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Active reports whether name currently has an open channel.
func (m *Manager) Active(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byName[name]
	return ok
}
