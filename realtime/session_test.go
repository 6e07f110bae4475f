package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsTestServer accepts websocket connections and records every frame each
// connection delivers.
type wsTestServer struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu     sync.Mutex
	dials  int
	conns  []*websocket.Conn
	frames chan Frame
	auth   chan string
}

func newWSTestServer(t *testing.T) *wsTestServer {
	s := &wsTestServer{
		t:      t,
		frames: make(chan Frame, 32),
		auth:   make(chan string, 8),
	}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.auth <- r.Header.Get("Authorization")
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.dials++
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame Frame
			if err := json.Unmarshal(data, &frame); err != nil {
				continue
			}
			s.frames <- frame
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsTestServer) URL() string { return DeriveWSURL(s.server.URL) }

func (s *wsTestServer) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// dropConnections closes every accepted connection, simulating a network cut.
func (s *wsTestServer) dropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
}

// push writes a frame to the most recent connection.
func (s *wsTestServer) push(frame Frame) {
	s.mu.Lock()
	conn := s.conns[len(s.conns)-1]
	s.mu.Unlock()
	payload, err := json.Marshal(frame)
	require.NoError(s.t, err)
	require.NoError(s.t, conn.WriteMessage(websocket.TextMessage, payload))
}

func (s *wsTestServer) Close() { s.server.Close() }

func awaitFrame(t *testing.T, ch <-chan Frame) Frame {
	t.Helper()
	select {
	case frame := <-ch:
		return frame
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a frame")
		return Frame{}
	}
}

func awaitState(t *testing.T, ch <-chan State, want State) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", want)
		}
	}
}

func TestSessionConnectSendsCredentialAndBody(t *testing.T) {
	server := newWSTestServer(t)

	session := NewSession(SessionConfig{URL: server.URL(), Token: "tkn", UserID: 1})
	defer session.Close()

	require.NoError(t, session.Connect(context.Background()))
	assert.Equal(t, StateConnected, session.State())
	assert.Equal(t, "Bearer tkn", <-server.auth)

	require.NoError(t, session.Send(sendDestination, ChatMessage{SenderID: 1, ReceiverID: 2, Content: "hi"}))
	frame := awaitFrame(t, server.frames)
	assert.Equal(t, frameSend, frame.Type)
	assert.Equal(t, sendDestination, frame.Destination)
}

func TestSessionDeliversInboundFrames(t *testing.T) {
	server := newWSTestServer(t)

	inbound := make(chan []byte, 1)
	session := NewSession(SessionConfig{
		URL:     server.URL(),
		Token:   "tkn",
		UserID:  2,
		OnFrame: func(data []byte) { inbound <- data },
	})
	defer session.Close()
	require.NoError(t, session.Connect(context.Background()))

	server.push(Frame{Type: frameMessage, Destination: "/user/2/queue/messages", Body: json.RawMessage(`{"id":1}`)})

	select {
	case data := <-inbound:
		var frame Frame
		require.NoError(t, json.Unmarshal(data, &frame))
		assert.Equal(t, frameMessage, frame.Type)
	case <-time.After(3 * time.Second):
		t.Fatal("inbound frame never reached the OnFrame callback")
	}
}

func TestSessionSendWhileDisconnected(t *testing.T) {
	session := NewSession(SessionConfig{URL: "ws://127.0.0.1:0/ws", Token: "tkn", UserID: 1})
	defer session.Close()

	err := session.Send(sendDestination, ChatMessage{SenderID: 1, ReceiverID: 2, Content: "hi"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSessionSubscribeBeforeConnectIsReplayedOnConnect(t *testing.T) {
	server := newWSTestServer(t)

	session := NewSession(SessionConfig{URL: server.URL(), Token: "tkn", UserID: 2})
	defer session.Close()

	// Registration while disconnected succeeds locally.
	session.Subscribe("/user/2/queue/messages")
	require.NoError(t, session.Connect(context.Background()))

	frame := awaitFrame(t, server.frames)
	assert.Equal(t, frameSubscribe, frame.Type)
	assert.Equal(t, "/user/2/queue/messages", frame.Destination)
}

func TestSessionReconnectsAndReplaysSubscriptions(t *testing.T) {
	server := newWSTestServer(t)

	states := make(chan State, 16)
	session := NewSession(SessionConfig{
		URL:            server.URL(),
		Token:          "tkn",
		UserID:         2,
		ReconnectDelay: 50 * time.Millisecond,
		OnState:        func(s State) { states <- s },
	})
	defer session.Close()

	require.NoError(t, session.Connect(context.Background()))
	awaitState(t, states, StateConnected)
	session.Subscribe("/user/2/queue/notifications")
	awaitFrame(t, server.frames)

	server.dropConnections()
	awaitState(t, states, StateFailed)
	awaitState(t, states, StateConnected)

	// The subscription was re-established without any caller involvement.
	frame := awaitFrame(t, server.frames)
	assert.Equal(t, frameSubscribe, frame.Type)
	assert.Equal(t, "/user/2/queue/notifications", frame.Destination)
	assert.GreaterOrEqual(t, server.dialCount(), 2)
}

func TestSessionConnectFailureKeepsRetrying(t *testing.T) {
	states := make(chan State, 16)
	session := NewSession(SessionConfig{
		URL:            "ws://127.0.0.1:1/ws",
		Token:          "tkn",
		UserID:         1,
		ReconnectDelay: 20 * time.Millisecond,
		OnState:        func(s State) { states <- s },
	})
	defer session.Close()

	require.Error(t, session.Connect(context.Background()))
	awaitState(t, states, StateFailed)

	// The retry loop keeps cycling through connecting/failed until Close.
	awaitState(t, states, StateConnecting)
	awaitState(t, states, StateFailed)
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	server := newWSTestServer(t)

	session := NewSession(SessionConfig{URL: server.URL(), Token: "tkn", UserID: 1})
	require.NoError(t, session.Connect(context.Background()))

	session.Close()
	session.Close()
	assert.Equal(t, StateDisconnected, session.State())

	err := session.Send(sendDestination, ChatMessage{SenderID: 1, ReceiverID: 2, Content: "hi"})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDeriveWSURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8083":      "ws://localhost:8083/ws",
		"https://api.example.com":    "wss://api.example.com/ws",
		"https://api.example.com/":   "wss://api.example.com/ws",
		"ws://broker.example.com/ws": "ws://broker.example.com/ws",
		"wss://broker.example.com":   "wss://broker.example.com/ws",
	}
	for in, want := range cases {
		assert.Equal(t, want, DeriveWSURL(in), "input %q", in)
	}
}
