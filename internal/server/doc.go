// Package server is the HTTP and WebSocket transport of the chat relay.
//
// It exposes the login endpoint, upgrades message channels to WebSockets and
// runs one read pump and one write pump per connection. Each connection is a
// chat.Channel; every chat decision is delegated to chat.Service. The
// implementation is organized into specialized files for configuration,
// origin policy, clients, routing, and handlers.
package server
