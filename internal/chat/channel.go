//go:generate go run go.uber.org/mock/mockgen -source=channel.go -destination=mocks/mock_channel.go -package=mocks
package chat

import (
	"encoding/json"
	"errors"
)

// Event names exchanged over a channel.
const (
	EventLoadHistory = "loadHistory"
	EventNewMessage  = "newMessage"
	EventError       = "error"
	EventSend        = "send"
)

// Channel is a persistent duplex connection to one client. Send must not
// block on the network: implementations queue the event and report an error
// when it cannot be queued.
type Channel interface {
	ID() string
	Send(evt OutboundEvent) error
}

// OutboundEvent is pushed from the server to a channel.
type OutboundEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// InboundEvent is received from a channel. Data is decoded by the handler
// registered for Event.
type InboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// SendPayload is the data of a client "send" event. The session name is
// authoritative; Name is accepted for compatibility and otherwise ignored.
type SendPayload struct {
	Name    string `json:"name"`
	Content string `json:"content" validate:"required,max=1000"`
}

// ErrorPayload is the data of an "error" event.
type ErrorPayload struct {
	Message string `json:"message"`
}

func loadHistoryEvent(history []Message) OutboundEvent {
	return OutboundEvent{Event: EventLoadHistory, Data: history}
}

func newMessageEvent(msg Message) OutboundEvent {
	return OutboundEvent{Event: EventNewMessage, Data: msg}
}

// NewErrorEvent builds the event reporting err to the originating channel.
func NewErrorEvent(err error) OutboundEvent {
	msg := err.Error()
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		msg = e.Message
	}
	return OutboundEvent{Event: EventError, Data: ErrorPayload{Message: msg}}
}

// ChannelState is the lifecycle of a single channel. Closed is terminal.
type ChannelState int32

const (
	StateConnecting ChannelState = iota
	StateRegistered
	StateClosed
)

func (s ChannelState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateRegistered:
		return "registered"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
