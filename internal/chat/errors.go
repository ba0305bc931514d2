package chat

import (
	"errors"
	"fmt"
)

// Kind classifies chat errors so transports can map them to status codes
// without matching on individual sentinels.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindConflict
	KindUnauthorized
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is the error type returned by the chat core. Message is safe to show
// to the originating client.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind. A target with an
// empty Message matches every error of its kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrTransport    = &Error{Kind: KindTransport}

	ErrNameRequired      = &Error{Kind: KindValidation, Message: "name required"}
	ErrNameTooLong       = &Error{Kind: KindValidation, Message: "name too long"}
	ErrContentRequired   = &Error{Kind: KindValidation, Message: "message content required"}
	ErrContentTooLong    = &Error{Kind: KindValidation, Message: "message too long"}
	ErrUnknownEvent      = &Error{Kind: KindValidation, Message: "unknown event"}
	ErrInvalidPayload    = &Error{Kind: KindValidation, Message: "invalid message"}
	ErrNotRegistered     = &Error{Kind: KindValidation, Message: "channel not registered"}
	ErrNameTaken         = &Error{Kind: KindConflict, Message: "name already taken"}
	ErrChannelRegistered = &Error{Kind: KindConflict, Message: "channel already registered"}
	ErrNotLoggedIn       = &Error{Kind: KindUnauthorized, Message: "login required"}
)

// NewTransportError wraps a delivery failure on a single channel.
func NewTransportError(channelID string, err error) error {
	return &Error{
		Kind:    KindTransport,
		Message: fmt.Sprintf("delivery to channel %s failed", channelID),
		Err:     err,
	}
}

// KindOf returns the kind of err, or zero when err is not a chat error.
func KindOf(err error) Kind {
	for _, k := range []*Error{ErrValidation, ErrConflict, ErrUnauthorized, ErrTransport} {
		if errors.Is(err, k) {
			return k.Kind
		}
	}
	return 0
}
