// Package realtime is the embeddable delivery layer for tripchat clients. It
// manages one websocket session per authenticated user, multiplexes local
// subscriptions onto the user's private queues, de-duplicates events arriving
// over both the live transport and the polling fallback, and keeps each
// conversation and notification stream in chronological order.
package realtime

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// ChatMessage mirrors the server's message wire format. ID is zero for
// optimistic local sends that the server has not yet confirmed.
type ChatMessage struct {
	ID         int64     `json:"id,omitempty"`
	SenderID   int64     `json:"senderId"`
	ReceiverID int64     `json:"receiverId"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Notification mirrors the server's notification wire format.
type Notification struct {
	ID          int64     `json:"id"`
	RecipientID int64     `json:"recipientId"`
	ActorID     int64     `json:"actorId"`
	Type        string    `json:"type"`
	TargetType  string    `json:"targetType"`
	TargetID    string    `json:"targetId"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Frame is one unit of data on the websocket transport.
type Frame struct {
	Type        string          `json:"type"`
	Destination string          `json:"destination,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

// Frame types understood by the transport.
const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	frameSend        = "send"
	frameMessage     = "message"
)

// sendDestination is where outbound chat messages are published.
const sendDestination = "/app/chat.send"

// Event is a delivered chat message or notification. Exactly one of the two
// pointers is set.
type Event struct {
	ChatMessage  *ChatMessage
	Notification *Notification
}

// NewChatEvent wraps a chat message as an Event.
func NewChatEvent(m ChatMessage) Event {
	return Event{ChatMessage: &m}
}

// NewNotificationEvent wraps a notification as an Event.
func NewNotificationEvent(n Notification) Event {
	return Event{Notification: &n}
}

// Timestamp returns the event's creation time.
func (e Event) Timestamp() time.Time {
	if e.ChatMessage != nil {
		return e.ChatMessage.CreatedAt
	}
	if e.Notification != nil {
		return e.Notification.CreatedAt
	}
	return time.Time{}
}

// StreamKey returns the routing key the event is delivered under.
func (e Event) StreamKey() string {
	if e.ChatMessage != nil {
		return ConversationKey(e.ChatMessage.SenderID, e.ChatMessage.ReceiverID)
	}
	if e.Notification != nil {
		return NotificationKey(e.Notification.RecipientID)
	}
	return ""
}

// serverID returns the server-assigned identifier, or zero when the event has
// no final identity yet.
func (e Event) serverID() int64 {
	if e.ChatMessage != nil {
		return e.ChatMessage.ID
	}
	if e.Notification != nil {
		return e.Notification.ID
	}
	return 0
}

// idKey returns the primary admission key, derived from the server-assigned
// identifier, or "" while the event has no final identity.
func (e Event) idKey() string {
	id := e.serverID()
	if id == 0 {
		return ""
	}
	return fmt.Sprintf("%s#id:%d", e.StreamKey(), id)
}

// dedupTolerance buckets timestamps so the same logical event reported by two
// delivery paths with slightly different clocks still collides.
const dedupTolerance = 3 * time.Second

func (e Event) compositeKey() string {
	var sender, target int64
	var content string
	switch {
	case e.ChatMessage != nil:
		sender = e.ChatMessage.SenderID
		target = e.ChatMessage.ReceiverID
		content = e.ChatMessage.Content
	case e.Notification != nil:
		sender = e.Notification.ActorID
		target = e.Notification.RecipientID
		content = e.Notification.Type + ":" + e.Notification.TargetType + ":" + e.Notification.TargetID
	}
	digest := sha256.Sum256([]byte(content))
	bucket := e.Timestamp().Unix() / int64(dedupTolerance.Seconds())
	return fmt.Sprintf("%s#c:%d:%d:%s:%d", e.StreamKey(), sender, target, hex.EncodeToString(digest[:8]), bucket)
}

// ConversationKey derives the direction-independent key for a pair of users.
func ConversationKey(userA, userB int64) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("chat:%d:%d", userA, userB)
}

// NotificationKey is the stream key for a user's notification list.
func NotificationKey(userID int64) string {
	return fmt.Sprintf("notifications:%d", userID)
}
