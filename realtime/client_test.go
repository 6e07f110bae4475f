package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI serves the notification and conversation endpoints the poll tick
// hits, counting conversation fetches.
type fakeAPI struct {
	server *httptest.Server

	mu                sync.Mutex
	messages          []ChatMessage
	conversationHits  int
	notificationLists int
}

func newFakeAPI(t *testing.T) *fakeAPI {
	api := &fakeAPI{}
	api.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		defer api.mu.Unlock()
		switch {
		case r.URL.Path == "/notifications":
			api.notificationLists++
			json.NewEncoder(w).Encode(NotificationPage{Notifications: []Notification{}})
		case r.URL.Path == "/chat/conversation/1/2":
			api.conversationHits++
			json.NewEncoder(w).Encode(map[string]interface{}{"messages": api.messages})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(api.server.Close)
	return api
}

func (a *fakeAPI) setMessages(msgs []ChatMessage) {
	a.mu.Lock()
	a.messages = msgs
	a.mu.Unlock()
}

func (a *fakeAPI) conversationFetches() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conversationHits
}

func newOfflineClient(t *testing.T, api *fakeAPI) *Client {
	client, err := NewClient(Config{APIBaseURL: api.server.URL, Token: "tkn", UserID: 1})
	require.NoError(t, err)
	return client
}

func TestClientPollTickSurfacesMissedChatMessages(t *testing.T) {
	api := newFakeAPI(t)
	missed := ChatMessage{ID: 41, SenderID: 2, ReceiverID: 1, Content: "are you there?", CreatedAt: time.Now().UTC().Truncate(time.Second)}
	api.setMessages([]ChatMessage{missed})

	client := newOfflineClient(t, api)

	var got []Delivery
	client.OnConversation(2, func(d Delivery) { got = append(got, d) })

	// The transport never connected; only the poll tick can close the gap.
	require.True(t, client.poller.Tick(context.Background()))
	require.Len(t, got, 1, "a message sent while disconnected must surface on the next tick")
	assert.Equal(t, int64(41), got[0].Event.ChatMessage.ID)

	// Repeat ticks do not re-deliver it.
	require.True(t, client.poller.Tick(context.Background()))
	assert.Len(t, got, 1)

	// A newer message surfaces on the following tick, exactly once.
	api.setMessages([]ChatMessage{missed, {ID: 42, SenderID: 2, ReceiverID: 1, Content: "hello?", CreatedAt: missed.CreatedAt.Add(time.Minute)}})
	require.True(t, client.poller.Tick(context.Background()))
	require.Len(t, got, 2)
	assert.Equal(t, int64(42), got[1].Event.ChatMessage.ID)
}

func TestClientPollSkipsCancelledConversations(t *testing.T) {
	api := newFakeAPI(t)
	client := newOfflineClient(t, api)

	cancel := client.OnConversation(2, func(Delivery) {})
	require.True(t, client.poller.Tick(context.Background()))
	assert.Equal(t, 1, api.conversationFetches())

	cancel()
	require.True(t, client.poller.Tick(context.Background()))
	assert.Equal(t, 1, api.conversationFetches(), "an unsubscribed conversation is not refetched")
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(Config{Token: "tkn", UserID: 1})
	assert.Error(t, err)
	_, err = NewClient(Config{APIBaseURL: "http://localhost:8083", UserID: 1})
	assert.Error(t, err)
	_, err = NewClient(Config{APIBaseURL: "http://localhost:8083", Token: "tkn"})
	assert.Error(t, err)
}
