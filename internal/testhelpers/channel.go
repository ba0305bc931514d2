package testhelpers

import (
	"sync"

	"github.com/Tyrowin/chatrelay/internal/chat"
	"github.com/google/uuid"
)

// RecordingChannel is an in-memory chat.Channel that keeps every event it
// is sent. Setting Err makes every Send fail with it.
type RecordingChannel struct {
	id string

	mu     sync.Mutex
	events []chat.OutboundEvent
	Err    error
}

func NewRecordingChannel() *RecordingChannel {
	return &RecordingChannel{id: uuid.NewString()}
}

func (c *RecordingChannel) ID() string { return c.id }

func (c *RecordingChannel) Send(evt chat.OutboundEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.events = append(c.events, evt)
	return nil
}

// Fail makes subsequent sends return err.
func (c *RecordingChannel) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Err = err
}

// Events returns a copy of the events received so far.
func (c *RecordingChannel) Events() []chat.OutboundEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chat.OutboundEvent, len(c.events))
	copy(out, c.events)
	return out
}

// EventsNamed returns the received events with the given name.
func (c *RecordingChannel) EventsNamed(name string) []chat.OutboundEvent {
	var out []chat.OutboundEvent
	for _, evt := range c.Events() {
		if evt.Event == name {
			out = append(out, evt)
		}
	}
	return out
}
