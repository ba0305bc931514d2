// Package testhelpers provides common utilities and helper functions for testing the relay.
//
// It contains reusable test utilities shared across package tests: a
// recording chat.Channel, login calls, WebSocket dialing and event reading.
package testhelpers

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/chatrelay/internal/chat"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// TestOrigin is the Origin header sent by test clients.
const TestOrigin = "http://localhost:8080"

// Event is an outbound event as seen by a client, with Data left raw.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Messages decodes the data of a loadHistory event.
func (e Event) Messages(t *testing.T) []chat.Message {
	t.Helper()
	var messages []chat.Message
	require.NoError(t, json.Unmarshal(e.Data, &messages))
	return messages
}

// Message decodes the data of a newMessage event.
func (e Event) Message(t *testing.T) chat.Message {
	t.Helper()
	var msg chat.Message
	require.NoError(t, json.Unmarshal(e.Data, &msg))
	return msg
}

// ErrorMessage decodes the data of an error event.
func (e Event) ErrorMessage(t *testing.T) string {
	t.Helper()
	var payload chat.ErrorPayload
	require.NoError(t, json.Unmarshal(e.Data, &payload))
	return payload.Message
}

// Login posts name to the login endpoint and returns the status code and
// decoded JSON body.
func Login(t *testing.T, baseURL, name string) (int, map[string]string) {
	t.Helper()

	body, err := json.Marshal(map[string]string{"name": name})
	require.NoError(t, err)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(baseURL+"/api/auth", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var decoded map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

// MustLogin logs name in and fails the test unless it is accepted.
func MustLogin(t *testing.T, baseURL, name string) {
	t.Helper()
	status, body := Login(t, baseURL, name)
	require.Equal(t, http.StatusOK, status, "login %q: %v", name, body)
	require.Equal(t, name, body["acceptedName"])
}

// WebSocketURL turns an http test server URL into the channel URL for name.
func WebSocketURL(t *testing.T, baseURL, name string) string {
	t.Helper()
	u, err := url.Parse(baseURL)
	require.NoError(t, err)
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws"
	q := u.Query()
	q.Set("name", name)
	u.RawQuery = q.Encode()
	return u.String()
}

// ConnectWebSocket dials the channel for name. The response is returned so
// refused handshakes can be inspected; its body is already closed.
func ConnectWebSocket(t *testing.T, baseURL, name string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	headers.Set("Origin", TestOrigin)

	conn, resp, err := dialer.Dial(WebSocketURL(t, baseURL, name), headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// Join logs name in, opens its channel and consumes the initial loadHistory
// event, which it returns.
func Join(t *testing.T, baseURL, name string) (*websocket.Conn, []chat.Message) {
	t.Helper()
	MustLogin(t, baseURL, name)

	conn, _, err := ConnectWebSocket(t, baseURL, name)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	evt := ReadEvent(t, conn)
	require.Equal(t, chat.EventLoadHistory, evt.Event)
	return conn, evt.Messages(t)
}

// SendMessage sends a "send" event carrying content.
func SendMessage(conn *websocket.Conn, name, content string) error {
	return conn.WriteJSON(chat.OutboundEvent{
		Event: chat.EventSend,
		Data:  chat.SendPayload{Name: name, Content: content},
	})
}

// ReadEvent reads the next event, failing the test after two seconds.
func ReadEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var evt Event
	require.NoError(t, conn.ReadJSON(&evt))
	return evt
}

// ExpectNoEvent fails the test if an event arrives within timeout.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected event: %s", data)

	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of events: %v", err)
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// Eventually polls cond until it holds or a second passes.
func Eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 10*time.Millisecond, msg)
}
