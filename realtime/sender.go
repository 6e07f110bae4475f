package realtime

import (
	"context"
	"fmt"
	"time"
)

// liveTransport is the slice of Session the send path needs.
type liveTransport interface {
	State() State
	Send(destination string, body interface{}) error
}

// restSender is the slice of RESTClient the send path needs.
type restSender interface {
	SendMessage(ctx context.Context, senderID, receiverID int64, content string) (ChatMessage, error)
}

// Sender is the outbound send path: live transport first, REST fallback on
// transport failure or while disconnected. It makes exactly one delivery
// attempt per invocation; retrying and rolling back optimistic UI state are
// the caller's decisions.
type Sender struct {
	userID    int64
	transport liveTransport
	rest      restSender
}

// NewSender constructs a Sender for the given user identity.
func NewSender(userID int64, transport liveTransport, rest restSender) *Sender {
	return &Sender{userID: userID, transport: transport, rest: rest}
}

// SendChatMessage publishes a chat message to the receiver. The returned
// message carries the server-assigned record when the REST fallback was
// used; over the live transport the confirmed record arrives as a normal
// inbound frame instead.
func (s *Sender) SendChatMessage(ctx context.Context, receiverID int64, content string) (ChatMessage, error) {
	if receiverID == 0 || receiverID == s.userID || content == "" {
		return ChatMessage{}, fmt.Errorf("realtime: invalid message to user %d", receiverID)
	}
	msg := ChatMessage{
		SenderID:   s.userID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}

	if s.transport != nil && s.transport.State() == StateConnected {
		if err := s.transport.Send(sendDestination, msg); err == nil {
			return msg, nil
		}
	}

	confirmed, err := s.rest.SendMessage(ctx, s.userID, receiverID, content)
	if err != nil {
		return ChatMessage{}, err
	}
	return confirmed, nil
}
