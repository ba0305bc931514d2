package server_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/chatrelay/internal/chat"
	"github.com/Tyrowin/chatrelay/internal/server"
	"github.com/Tyrowin/chatrelay/internal/testhelpers"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestLoginNameReusableAfterClose(t *testing.T) {
	r := newRelay(t, nil)

	status, body := testhelpers.Login(t, r.URL(), "alice")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "alice", body["acceptedName"])

	conn, _, err := testhelpers.ConnectWebSocket(t, r.URL(), "alice")
	require.NoError(t, err)
	require.Equal(t, chat.EventLoadHistory, testhelpers.ReadEvent(t, conn).Event)

	status, body = testhelpers.Login(t, r.URL(), "alice")
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "name already taken", body["message"])

	require.NoError(t, testhelpers.CloseWebSocket(conn))
	r.waitOffline(t, "alice")

	status, body = testhelpers.Login(t, r.URL(), "alice")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "alice", body["acceptedName"])
}

func TestHistoryReplayedOnConnect(t *testing.T) {
	r := newRelay(t, nil)

	alice, history := testhelpers.Join(t, r.URL(), "alice")
	require.Empty(t, history)

	require.NoError(t, testhelpers.SendMessage(alice, "alice", "hi"))
	evt := testhelpers.ReadEvent(t, alice)
	require.Equal(t, chat.EventNewMessage, evt.Event)
	require.Equal(t, chat.Message{Name: "alice", Content: "hi"}, evt.Message(t))

	_, history = testhelpers.Join(t, r.URL(), "bob")
	require.Equal(t, []chat.Message{{Name: "alice", Content: "hi"}}, history)
}

func TestBroadcastReachesEverySession(t *testing.T) {
	r := newRelay(t, nil)

	a, _ := testhelpers.Join(t, r.URL(), "A")
	b, _ := testhelpers.Join(t, r.URL(), "B")
	c, _ := testhelpers.Join(t, r.URL(), "C")

	require.NoError(t, testhelpers.SendMessage(a, "A", "hello all"))

	want := chat.Message{Name: "A", Content: "hello all"}
	for _, conn := range []*websocket.Conn{a, b, c} {
		evt := testhelpers.ReadEvent(t, conn)
		require.Equal(t, chat.EventNewMessage, evt.Event)
		require.Equal(t, want, evt.Message(t))
	}
	for _, conn := range []*websocket.Conn{a, b, c} {
		testhelpers.ExpectNoEvent(t, conn, 100*time.Millisecond)
	}

	history := r.chat.History()
	require.Equal(t, want, history[len(history)-1])
}

func TestSessionNameIsAuthoritative(t *testing.T) {
	r := newRelay(t, nil)
	alice, _ := testhelpers.Join(t, r.URL(), "alice")

	require.NoError(t, testhelpers.SendMessage(alice, "mallory", "who am I"))

	evt := testhelpers.ReadEvent(t, alice)
	require.Equal(t, chat.Message{Name: "alice", Content: "who am I"}, evt.Message(t))
}

func TestBlankMessageRejectedForSenderOnly(t *testing.T) {
	r := newRelay(t, nil)
	a, _ := testhelpers.Join(t, r.URL(), "A")
	b, _ := testhelpers.Join(t, r.URL(), "B")

	require.NoError(t, testhelpers.SendMessage(a, "A", "   "))

	evt := testhelpers.ReadEvent(t, a)
	require.Equal(t, chat.EventError, evt.Event)
	require.Equal(t, "message content required", evt.ErrorMessage(t))
	testhelpers.ExpectNoEvent(t, b, 150*time.Millisecond)
	require.Empty(t, r.chat.History())
}

func TestOverlongMessageRejected(t *testing.T) {
	r := newRelay(t, nil)
	conn, _ := testhelpers.Join(t, r.URL(), "alice")

	require.NoError(t, testhelpers.SendMessage(conn, "alice", strings.Repeat("x", chat.MaxContentLength+1)))

	evt := testhelpers.ReadEvent(t, conn)
	require.Equal(t, chat.EventError, evt.Event)
	require.Equal(t, "message too long", evt.ErrorMessage(t))
	require.Empty(t, r.chat.History())
}

func TestMalformedEventsReported(t *testing.T) {
	r := newRelay(t, nil)
	conn, _ := testhelpers.Join(t, r.URL(), "alice")

	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{name: "not json", frame: "hello?", want: "invalid message"},
		{name: "payload not an object", frame: `{"event":"send","data":"hi"}`, want: "invalid message"},
		{name: "unknown event", frame: `{"event":"typing","data":{}}`, want: "unknown event"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.frame)))

			evt := testhelpers.ReadEvent(t, conn)
			require.Equal(t, chat.EventError, evt.Event)
			require.Equal(t, tt.want, evt.ErrorMessage(t))
		})
	}

	// The connection survives rejected events.
	require.NoError(t, testhelpers.SendMessage(conn, "alice", "still here"))
	require.Equal(t, chat.EventNewMessage, testhelpers.ReadEvent(t, conn).Event)
}

func TestRateLimitedMessagesAreRejected(t *testing.T) {
	r := newRelay(t, func(cfg *server.Config) {
		cfg.RateLimit = server.RateLimitConfig{Burst: 2, RefillInterval: time.Hour}
	})
	conn, _ := testhelpers.Join(t, r.URL(), "alice")

	for i := 0; i < 3; i++ {
		require.NoError(t, testhelpers.SendMessage(conn, "alice", "spam"))
	}

	require.Equal(t, chat.EventNewMessage, testhelpers.ReadEvent(t, conn).Event)
	require.Equal(t, chat.EventNewMessage, testhelpers.ReadEvent(t, conn).Event)

	evt := testhelpers.ReadEvent(t, conn)
	require.Equal(t, chat.EventError, evt.Event)
	require.Equal(t, "rate limit exceeded", evt.ErrorMessage(t))
	require.Len(t, r.chat.History(), 2)
}

func TestOversizedFrameClosesSession(t *testing.T) {
	r := newRelay(t, func(cfg *server.Config) {
		cfg.MaxMessageSize = 128
	})
	conn, _ := testhelpers.Join(t, r.URL(), "alice")

	require.NoError(t, testhelpers.SendMessage(conn, "alice", strings.Repeat("x", 1024)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	r.waitOffline(t, "alice")
	require.Empty(t, r.chat.History())
	testhelpers.MustLogin(t, r.URL(), "alice")
}

func TestConcurrentSendersKeepLogOrder(t *testing.T) {
	r := newRelay(t, nil)
	a, _ := testhelpers.Join(t, r.URL(), "A")
	b, _ := testhelpers.Join(t, r.URL(), "B")

	require.NoError(t, testhelpers.SendMessage(a, "A", "one"))
	require.NoError(t, testhelpers.SendMessage(b, "B", "two"))

	// Every session observes broadcasts in log order.
	var seenByA, seenByB []chat.Message
	for i := 0; i < 2; i++ {
		seenByA = append(seenByA, testhelpers.ReadEvent(t, a).Message(t))
		seenByB = append(seenByB, testhelpers.ReadEvent(t, b).Message(t))
	}
	require.Equal(t, r.chat.History(), seenByA)
	require.Equal(t, r.chat.History(), seenByB)
}

func TestShutdownClosesClients(t *testing.T) {
	r := newRelay(t, nil)
	a, _ := testhelpers.Join(t, r.URL(), "A")
	b, _ := testhelpers.Join(t, r.URL(), "B")
	require.Equal(t, 2, r.server.ClientCount())

	require.NoError(t, r.server.Shutdown(2*time.Second))

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := conn.ReadMessage()
		require.Error(t, err)
	}
	testhelpers.Eventually(t, func() bool { return r.server.ClientCount() == 0 }, "clients should be untracked")
	require.Empty(t, r.chat.Online())

	// New channels are refused once shutdown has started.
	testhelpers.MustLogin(t, r.URL(), "late")
	conn, _, err := testhelpers.ConnectWebSocket(t, r.URL(), "late")
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}

func TestShutdownWithoutClients(t *testing.T) {
	r := newRelay(t, nil)

	start := time.Now()
	require.NoError(t, r.server.Shutdown(time.Second))
	require.Less(t, time.Since(start), 500*time.Millisecond)
}
