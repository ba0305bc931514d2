// Package chat implements the relay core: the session registry that keeps
// display names unique, the append-only message log, the connection manager
// that replays history and fans messages out to every open channel, and the
// Service that wires them behind login and real-time messaging.
//
// The package knows nothing about WebSockets. Transports plug in through the
// Channel interface and feed inbound events to Service.Dispatch.
package chat
