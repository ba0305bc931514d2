package chat

import "sync"

// Message is a single chat line. It is never mutated after creation.
type Message struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// MessageLog is the append-only, in-memory history of every message sent
// since the process started. Arrival order is delivery order.
type MessageLog struct {
	mu       sync.RWMutex
	messages []Message
}

func NewMessageLog() *MessageLog {
	return &MessageLog{}
}

// Append adds msg to the end of the log.
func (l *MessageLog) Append(msg Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

// Snapshot returns a copy of the history, oldest first. Appends racing with
// the call are either fully included or absent.
func (l *MessageLog) Snapshot() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}
