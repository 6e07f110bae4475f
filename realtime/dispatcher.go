package realtime

import (
	"encoding/json"
	"log"
	"strings"
)

// Dispatcher decodes raw transport frames into typed events, runs them
// through the ledger, and routes survivors to matching registrations. A
// malformed frame is logged and dropped; it never disturbs the session or
// subsequent frames.
type Dispatcher struct {
	userID   int64
	registry *Registry
	ledger   *Ledger
}

// NewDispatcher constructs a Dispatcher for one user's session.
func NewDispatcher(userID int64, registry *Registry, ledger *Ledger) *Dispatcher {
	return &Dispatcher{userID: userID, registry: registry, ledger: ledger}
}

// HandleFrame consumes one raw frame from the transport.
func (d *Dispatcher) HandleFrame(data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		log.Printf("realtime: dropping malformed frame: %v", err)
		return
	}
	if frame.Type != frameMessage {
		return
	}

	switch {
	case strings.Contains(frame.Destination, "queue/messages"):
		var msg ChatMessage
		if err := json.Unmarshal(frame.Body, &msg); err != nil {
			log.Printf("realtime: dropping malformed chat message: %v", err)
			return
		}
		d.DeliverChatMessage(msg)
	case strings.Contains(frame.Destination, "queue/notifications"):
		var n Notification
		if err := json.Unmarshal(frame.Body, &n); err != nil {
			log.Printf("realtime: dropping malformed notification: %v", err)
			return
		}
		d.DeliverNotification(n)
	default:
		log.Printf("realtime: dropping frame for unknown destination %q", frame.Destination)
	}
}

// DeliverChatMessage admits a chat message and fans it out to the
// conversation's subscribers. Used by both the live transport and the
// outbound path's optimistic echo.
func (d *Dispatcher) DeliverChatMessage(msg ChatMessage) {
	d.deliver(NewChatEvent(msg), ConversationKey(msg.SenderID, msg.ReceiverID))
}

// DeliverNotification admits a notification and fans it out to the user's
// notification subscribers. Used by both the live transport and the polling
// fallback.
func (d *Dispatcher) DeliverNotification(n Notification) {
	d.deliver(NewNotificationEvent(n), NotificationKey(d.userID))
}

func (d *Dispatcher) deliver(ev Event, key string) {
	idx, ok := d.ledger.Admit(ev)
	if !ok {
		return
	}
	d.registry.Dispatch(key, Delivery{Event: ev, Index: idx})
}
