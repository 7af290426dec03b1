package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/chatroom/internal/logger"
	"github.com/Tyrowin/chatroom/internal/protocol"
)

const (
	testOrigin  = "http://localhost:8080"
	readTimeout = 2 * time.Second
)

type testEnv struct {
	srv   *Server
	http  *httptest.Server
	wsURL string
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	cfg := NewConfig()
	cfg.RateLimit.Burst = 100
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := NewServer(cfg, logger.Discard())
	require.NoError(t, err)

	ts := httptest.NewServer(srv.SetupRoutes())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(2 * time.Second)
	})

	return &testEnv{
		srv:   srv,
		http:  ts,
		wsURL: "ws" + strings.TrimPrefix(ts.URL, "http") + "/",
	}
}

func dial(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

func (e *testEnv) connect(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := dial(e.wsURL, testOrigin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (e *testEnv) join(t *testing.T, name string) *websocket.Conn {
	t.Helper()
	conn := e.connect(t)
	sendEnvelope(t, conn, protocol.NewUserEnvelope(name))
	return conn
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, env protocol.Envelope) {
	t.Helper()
	data, err := protocol.Encode(env)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func sendChat(t *testing.T, conn *websocket.Conn, body, author string) {
	t.Helper()
	sendEnvelope(t, conn, protocol.NewMessageEnvelope(protocol.ChatMessage{
		Body:      body,
		Author:    author,
		CreatedAt: protocol.Now(),
	}))
}

// readUntil reads envelopes until match accepts one, failing on timeout.
func readUntil(t *testing.T, conn *websocket.Conn, match func(protocol.Envelope) bool) protocol.Envelope {
	t.Helper()
	deadline := time.Now().Add(readTimeout)
	require.NoError(t, conn.SetReadDeadline(deadline))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	for {
		frameType, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for envelope")
		require.Equal(t, websocket.TextMessage, frameType)

		env, err := protocol.Decode(data)
		require.NoError(t, err, "server sent undecodable frame %q", data)
		if match(env) {
			return env
		}
	}
}

func userListOf(names ...string) func(protocol.Envelope) bool {
	return func(env protocol.Envelope) bool {
		if env.MessageType != protocol.UserList || len(env.Users) != len(names) {
			return false
		}
		want := make(map[string]bool, len(names))
		for _, n := range names {
			want[n] = true
		}
		for _, u := range env.Users {
			if !want[u] {
				return false
			}
		}
		return true
	}
}

func chatWithBody(body string) func(protocol.Envelope) bool {
	return func(env protocol.Envelope) bool {
		return env.MessageType == protocol.NewMessage && env.Message.Body == body
	}
}

// expectNoChat asserts that no chat message with body arrives within d.
func expectNoChat(t *testing.T, conn *websocket.Conn, body string, d time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Decode(data)
		if err == nil && chatWithBody(body)(env) {
			t.Fatalf("unexpected chat message %q", body)
		}
	}
}

func TestChatRoomEndToEnd(t *testing.T) {
	env := newTestEnv(t, nil)

	a := env.join(t, "A")
	readUntil(t, a, userListOf("A"))
	b := env.join(t, "B")
	readUntil(t, b, userListOf("A", "B"))
	c := env.join(t, "C")

	for _, conn := range []*websocket.Conn{a, b, c} {
		readUntil(t, conn, userListOf("A", "B", "C"))
	}

	sendChat(t, a, "hi", "A")
	for _, conn := range []*websocket.Conn{a, b, c} {
		got := readUntil(t, conn, chatWithBody("hi"))
		assert.Equal(t, "A", got.Message.Author)
	}

	require.NoError(t, b.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.NoError(t, b.Close())

	readUntil(t, a, userListOf("A", "C"))
	readUntil(t, c, userListOf("A", "C"))
	assert.Equal(t, []string{"A", "C"}, env.srv.Hub().Users())

	sendChat(t, c, "after B", "C")
	for _, conn := range []*websocket.Conn{a, c} {
		got := readUntil(t, conn, chatWithBody("after B"))
		assert.Equal(t, "C", got.Message.Author)
	}
	assert.Equal(t, 2, env.srv.Hub().Len())
}

func TestJoinAnnouncementOverWire(t *testing.T) {
	env := newTestEnv(t, nil)

	a := env.join(t, "alice")
	readUntil(t, a, userListOf("alice"))
	env.join(t, "bob")

	got := readUntil(t, a, chatWithBody("bob joins the chat"))
	assert.Equal(t, protocol.SystemAuthor, got.Message.Author)
}

func TestMalformedFramesKeepConnectionOpen(t *testing.T) {
	env := newTestEnv(t, nil)

	a := env.join(t, "alice")
	readUntil(t, a, userListOf("alice"))

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("definitely not json")))
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"message_type":"Shout","message":null}`)))
	require.NoError(t, a.WriteMessage(websocket.BinaryMessage, []byte{0xde, 0xad}))
	sendEnvelope(t, a, protocol.UserListEnvelope([]string{"forged"}))

	sendChat(t, a, "still connected", "alice")
	readUntil(t, a, chatWithBody("still connected"))
	assert.Equal(t, []string{"alice"}, env.srv.Hub().Users())
}

func TestAnonymousModeOverWire(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Hub.Mode = "anonymous"
	})

	a := env.connect(t)
	b := env.connect(t)
	require.Eventually(t, func() bool { return env.srv.Hub().Len() == 2 }, readTimeout, 10*time.Millisecond)

	sendChat(t, a, "anon hello", "someone")
	for _, conn := range []*websocket.Conn{a, b} {
		got := readUntil(t, conn, chatWithBody("anon hello"))
		assert.Equal(t, "someone", got.Message.Author)
	}
	assert.Empty(t, env.srv.Hub().Users())
}

func TestDisallowedOriginIsRejected(t *testing.T) {
	env := newTestEnv(t, nil)

	_, resp, err := dial(env.wsURL, "http://evil.example")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = dial(env.wsURL, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestOversizedMessageClosesOnlyThatConnection(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.MaxMessageSize = 256
	})

	a := env.join(t, "alice")
	readUntil(t, a, userListOf("alice"))
	b := env.join(t, "bob")
	readUntil(t, a, userListOf("alice", "bob"))

	require.NoError(t, b.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 1000))))

	readUntil(t, a, userListOf("alice"))
	assert.Equal(t, 1, env.srv.Hub().Len())

	sendChat(t, a, "alone", "alice")
	readUntil(t, a, chatWithBody("alone"))
}

func TestRateLimitDropsExcessFrames(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		// One token for the NewUser frame, two for chat.
		cfg.RateLimit = RateLimitConfig{Burst: 3, RefillInterval: time.Hour}
	})

	a := env.join(t, "alice")
	readUntil(t, a, userListOf("alice"))

	for _, body := range []string{"m1", "m2", "m3", "m4"} {
		sendChat(t, a, body, "alice")
	}

	readUntil(t, a, chatWithBody("m1"))
	readUntil(t, a, chatWithBody("m2"))
	expectNoChat(t, a, "m3", 300*time.Millisecond)
}

func TestServerShutdownClosesConnections(t *testing.T) {
	env := newTestEnv(t, nil)

	a := env.join(t, "alice")
	readUntil(t, a, userListOf("alice"))
	env.connect(t)
	require.Eventually(t, func() bool { return env.srv.ActiveConnections() == 2 }, readTimeout, 10*time.Millisecond)

	require.NoError(t, env.srv.Shutdown(2*time.Second))

	assert.Equal(t, 0, env.srv.ActiveConnections())
	assert.Equal(t, 0, env.srv.Hub().Len())

	require.NoError(t, a.SetReadDeadline(time.Now().Add(readTimeout)))
	for {
		if _, _, err := a.ReadMessage(); err != nil {
			break
		}
	}

	late, _, err := dial(env.wsURL, testOrigin)
	if err == nil {
		// The upgrade succeeds but the server closes it straight away.
		defer late.Close()
		require.NoError(t, late.SetReadDeadline(time.Now().Add(readTimeout)))
		_, _, readErr := late.ReadMessage()
		assert.Error(t, readErr)
		assert.Equal(t, 0, env.srv.ActiveConnections())
	}
}
