package realtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Config carries everything a Client needs. Credential and user identity are
// explicit parameters; the client never reads them from ambient storage.
type Config struct {
	// APIBaseURL is the REST API base, e.g. https://api.example.com.
	APIBaseURL string
	// WSBaseURL optionally overrides the websocket endpoint; when empty it
	// is derived from APIBaseURL by scheme mapping.
	WSBaseURL string
	Token     string
	UserID    int64

	HeartbeatInterval time.Duration
	ReconnectDelay    time.Duration
	PollInterval      time.Duration
	// DedupLimit bounds the de-duplication working set; zero selects the
	// default.
	DedupLimit int
	// OnState observes transport state changes.
	OnState func(State)
}

// Client bundles the delivery layer for one authenticated user: transport
// session, subscription registry, dispatcher, de-duplication ledger, polling
// fallback and outbound send path.
type Client struct {
	cfg        Config
	session    *Session
	registry   *Registry
	ledger     *Ledger
	dispatcher *Dispatcher
	rest       *RESTClient
	sender     *Sender
	poller     *Poller

	mu sync.Mutex
	// conversations are the partner ids with (possibly former) local
	// registrations; the poll tick refetches the live ones and prunes the
	// rest.
	conversations map[int64]struct{}
}

// NewClient constructs a Client. It does not connect; call Connect and,
// for the polling fallback, RunPoller.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIBaseURL == "" || cfg.Token == "" || cfg.UserID == 0 {
		return nil, errors.New("realtime: APIBaseURL, Token and UserID are required")
	}

	wsBase := cfg.WSBaseURL
	if wsBase == "" {
		wsBase = cfg.APIBaseURL
	}

	c := &Client{cfg: cfg, conversations: make(map[int64]struct{})}
	c.registry = NewRegistry()
	c.ledger = NewLedger(cfg.DedupLimit)
	c.dispatcher = NewDispatcher(cfg.UserID, c.registry, c.ledger)
	c.rest = NewRESTClient(cfg.APIBaseURL, cfg.Token)
	c.session = NewSession(SessionConfig{
		URL:               DeriveWSURL(wsBase),
		Token:             cfg.Token,
		UserID:            cfg.UserID,
		HeartbeatInterval: cfg.HeartbeatInterval,
		ReconnectDelay:    cfg.ReconnectDelay,
		OnFrame:           c.dispatcher.HandleFrame,
		OnState:           cfg.OnState,
	})
	c.sender = NewSender(cfg.UserID, c.session, c.rest)
	c.poller = NewPoller(c.fetchNotifications, c.dispatcher.DeliverNotification, c.syncConversations, cfg.PollInterval)
	return c, nil
}

// Connect establishes the live transport. Reconnection is automatic until
// Close.
func (c *Client) Connect(ctx context.Context) error {
	return c.session.Connect(ctx)
}

// Close tears down the live transport. Idempotent.
func (c *Client) Close() {
	c.session.Close()
}

// State returns the transport state.
func (c *Client) State() State {
	return c.session.State()
}

// OnConversation subscribes to the conversation with another user. The
// returned cancel removes the registration; calling it twice is a no-op.
func (c *Client) OnConversation(otherUserID int64, fn Handler) func() {
	c.mu.Lock()
	c.conversations[otherUserID] = struct{}{}
	c.mu.Unlock()
	c.session.Subscribe(DestinationMessages(c.cfg.UserID))
	return c.registry.Subscribe(ConversationKey(c.cfg.UserID, otherUserID), fn)
}

// OnNotifications subscribes to the user's notification stream.
func (c *Client) OnNotifications(fn Handler) func() {
	c.session.Subscribe(DestinationNotifications(c.cfg.UserID))
	return c.registry.Subscribe(NotificationKey(c.cfg.UserID), fn)
}

// SendChatMessage publishes a message, live transport first with REST
// fallback. See Sender.SendChatMessage.
func (c *Client) SendChatMessage(ctx context.Context, receiverID int64, content string) (ChatMessage, error) {
	return c.sender.SendChatMessage(ctx, receiverID, content)
}

// RunPoller runs the polling fallback until the context is cancelled.
// resume is the app-foreground trigger; it may be nil.
func (c *Client) RunPoller(ctx context.Context, resume <-chan struct{}) {
	c.poller.Run(ctx, resume)
}

// ConversationTimeline returns the admitted, chronologically ordered events
// of one conversation.
func (c *Client) ConversationTimeline(otherUserID int64) []Event {
	return c.ledger.Timeline(ConversationKey(c.cfg.UserID, otherUserID))
}

// NotificationTimeline returns the admitted, chronologically ordered
// notification events.
func (c *Client) NotificationTimeline() []Event {
	return c.ledger.Timeline(NotificationKey(c.cfg.UserID))
}

// REST exposes the underlying REST client for list/read/delete operations.
func (c *Client) REST() *RESTClient {
	return c.rest
}

// syncConversations refetches every subscribed conversation during a poll
// tick and replays the history through the dispatcher, so chat messages
// missed while disconnected surface exactly like notifications do; the
// ledger suppresses everything already delivered. Conversations whose last
// registration was cancelled are pruned instead of fetched.
func (c *Client) syncConversations(ctx context.Context) {
	c.mu.Lock()
	partners := make([]int64, 0, len(c.conversations))
	for id := range c.conversations {
		partners = append(partners, id)
	}
	c.mu.Unlock()

	for _, other := range partners {
		if !c.registry.HasSubscribers(ConversationKey(c.cfg.UserID, other)) {
			c.mu.Lock()
			delete(c.conversations, other)
			c.mu.Unlock()
			continue
		}
		msgs, err := c.rest.Conversation(ctx, c.cfg.UserID, other)
		if err != nil {
			log.Printf("realtime: conversation sync with user %d failed: %v", other, err)
			continue
		}
		for _, m := range msgs {
			c.dispatcher.DeliverChatMessage(m)
		}
	}
}

func (c *Client) fetchNotifications(ctx context.Context) ([]Notification, error) {
	page, err := c.rest.Notifications(ctx, ListOptions{Size: 100, Sort: "createdAt,desc"})
	if err != nil {
		return nil, err
	}
	return page.Notifications, nil
}

// DestinationMessages is a user's private chat message queue.
func DestinationMessages(userID int64) string {
	return fmt.Sprintf("/user/%d/queue/messages", userID)
}

// DestinationNotifications is a user's private notification queue.
func DestinationNotifications(userID int64) string {
	return fmt.Sprintf("/user/%d/queue/notifications", userID)
}
