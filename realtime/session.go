package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// State is the transport session's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	}
	return "disconnected"
}

// ErrNotConnected is returned when a live send is attempted without an
// established transport.
var ErrNotConnected = errors.New("realtime: transport not connected")

const (
	defaultHeartbeatInterval = 10 * time.Second
	defaultReconnectDelay    = 3 * time.Second
	// heartbeatTolerance is how long an unanswered ping may go before the
	// connection is considered dead.
	heartbeatTolerance = 3 * defaultHeartbeatInterval
)

// Session manages one authenticated websocket connection: handshake,
// heartbeats, reconnect-with-fixed-delay, and subscription replay. A Session
// belongs to exactly one user identity and is torn down only by Close.
type Session struct {
	url       string
	token     string
	userID    int64
	dialer    *websocket.Dialer
	heartbeat time.Duration
	retry     time.Duration
	onFrame   func([]byte)
	onState   func(State)

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	state   State
	wanted  map[string]struct{}
	closed  bool
	retries int
}

// SessionConfig carries the explicit dependencies of a Session; credential
// and user identity are always injected, never read from ambient storage.
type SessionConfig struct {
	// URL is the websocket endpoint, e.g. wss://api.example.com/ws.
	URL    string
	Token  string
	UserID int64
	// HeartbeatInterval and ReconnectDelay default to 10s and 3s.
	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	// OnFrame receives every raw frame read from the transport.
	OnFrame func([]byte)
	// OnState observes connection state changes.
	OnState func(State)
}

// NewSession constructs a Session. It does not connect.
func NewSession(cfg SessionConfig) *Session {
	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	retry := cfg.ReconnectDelay
	if retry <= 0 {
		retry = defaultReconnectDelay
	}
	return &Session{
		url:       cfg.URL,
		token:     cfg.Token,
		userID:    cfg.UserID,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		heartbeat: heartbeat,
		retry:     retry,
		onFrame:   cfg.OnFrame,
		onState:   cfg.OnState,
		wanted:    make(map[string]struct{}),
	}
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect performs one handshake attempt. On success the read and heartbeat
// loops start and every wanted destination subscription is replayed. On
// failure the state becomes Failed and the retry loop keeps attempting to
// connect every ReconnectDelay until Close is called; the first attempt's
// error is returned either way.
func (s *Session) Connect(ctx context.Context) error {
	err := s.connectOnce(ctx)
	if err != nil {
		go s.retryLoop()
	}
	return err
}

func (s *Session) connectOnce(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("realtime: session closed")
	}
	if s.state == StateConnected || s.state == StateConnecting {
		s.mu.Unlock()
		return nil
	}
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.token)
	header.Set("X-User-Id", fmt.Sprintf("%d", s.userID))

	conn, resp, err := s.dialer.DialContext(ctx, s.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		s.mu.Lock()
		s.setStateLocked(StateFailed)
		s.retries++
		s.mu.Unlock()
		return fmt.Errorf("realtime: dial %s: %w", s.url, err)
	}

	conn.SetReadDeadline(time.Now().Add(heartbeatTolerance))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(heartbeatTolerance))
	})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return errors.New("realtime: session closed")
	}
	s.conn = conn
	s.retries = 0
	s.setStateLocked(StateConnected)
	wanted := make([]string, 0, len(s.wanted))
	for dest := range s.wanted {
		wanted = append(wanted, dest)
	}
	s.mu.Unlock()

	// Subscriptions do not survive a reconnect at the protocol level;
	// replay every destination that was active before.
	for _, dest := range wanted {
		if err := s.writeFrame(conn, Frame{Type: frameSubscribe, Destination: dest}); err != nil {
			log.Printf("realtime: subscription replay for %s failed: %v", dest, err)
		}
	}

	go s.readLoop(conn)
	go s.heartbeatLoop(conn)
	return nil
}

// Subscribe marks a destination as wanted and, when connected, establishes it
// immediately. Registering while disconnected succeeds locally; the
// subscription is realized on the next successful connect.
func (s *Session) Subscribe(destination string) {
	s.mu.Lock()
	s.wanted[destination] = struct{}{}
	conn := s.conn
	connected := s.state == StateConnected
	s.mu.Unlock()

	if connected {
		if err := s.writeFrame(conn, Frame{Type: frameSubscribe, Destination: destination}); err != nil {
			log.Printf("realtime: subscribe %s failed: %v", destination, err)
		}
	}
}

// Unsubscribe drops a destination from the wanted set and, when connected,
// tears it down on the transport.
func (s *Session) Unsubscribe(destination string) {
	s.mu.Lock()
	delete(s.wanted, destination)
	conn := s.conn
	connected := s.state == StateConnected
	s.mu.Unlock()

	if connected {
		if err := s.writeFrame(conn, Frame{Type: frameUnsubscribe, Destination: destination}); err != nil {
			log.Printf("realtime: unsubscribe %s failed: %v", destination, err)
		}
	}
}

// Send publishes a body to a destination over the live transport.
func (s *Session) Send(destination string, body interface{}) error {
	s.mu.Lock()
	conn := s.conn
	connected := s.state == StateConnected
	s.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return s.writeFrame(conn, Frame{Type: frameSend, Destination: destination, Body: raw})
}

// Close tears the session down. It is idempotent; closing an already-closed
// session is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.setStateLocked(StateDisconnected)
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (s *Session) writeFrame(conn *websocket.Conn, frame Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleDisconnect(conn, err)
			return
		}
		if s.onFrame != nil {
			s.onFrame(data)
		}
	}
}

func (s *Session) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for range ticker.C {
		s.mu.Lock()
		current := s.conn
		s.mu.Unlock()
		if current != conn {
			return
		}
		deadline := time.Now().Add(s.heartbeat)
		if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			return
		}
	}
}

func (s *Session) handleDisconnect(conn *websocket.Conn, cause error) {
	conn.Close()

	s.mu.Lock()
	if s.closed || s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.setStateLocked(StateFailed)
	s.mu.Unlock()

	log.Printf("realtime: connection lost: %v", cause)
	go s.retryLoop()
}

// retryLoop re-attempts the handshake at a fixed delay, indefinitely, until
// the session is explicitly closed or a connect succeeds.
func (s *Session) retryLoop() {
	for {
		time.Sleep(s.retry)

		s.mu.Lock()
		if s.closed || s.state == StateConnected || s.state == StateConnecting {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := s.connectOnce(ctx)
		cancel()
		if err == nil {
			return
		}
		log.Printf("realtime: reconnect attempt failed: %v", err)
	}
}

func (s *Session) setStateLocked(next State) {
	if s.state == next {
		return
	}
	s.state = next
	if s.onState != nil {
		go s.onState(next)
	}
}

// DeriveWSURL converts a configured base URL into the websocket endpoint the
// dialer needs: the REST API base has its scheme mapped http->ws and
// https->wss and the /ws path appended; an explicit broker base already using
// a ws scheme is kept, and one using an http scheme is mapped the same way.
func DeriveWSURL(base string) string {
	u := strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	if !strings.HasSuffix(u, "/ws") {
		u += "/ws"
	}
	return u
}
