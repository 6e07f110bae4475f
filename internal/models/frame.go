package models

import "encoding/json"

// Frame types exchanged over the websocket transport.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameSend        = "send"
	FrameMessage     = "message"
)

// Frame is one unit of data on the websocket transport. Body is left raw so
// each side decodes it against the destination it arrived on.
type Frame struct {
	Type        string          `json:"type"`
	Destination string          `json:"destination,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

// SendDestination is where clients publish outbound chat messages.
const SendDestination = "/app/chat.send"

// SendBody is the payload of a client send frame and of the REST send endpoint.
type SendBody struct {
	SenderID   int64  `json:"senderId" binding:"required"`
	ReceiverID int64  `json:"receiverId" binding:"required"`
	Content    string `json:"content" binding:"required"`
}
