package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"tripchat/internal/auth"
	"tripchat/internal/models"
	"tripchat/internal/observability"
	"tripchat/internal/repositories"
)

const (
	pingInterval = 10 * time.Second
	pongWait     = 30 * time.Second
)

// Handler upgrades websocket connections and speaks the frame protocol.
type Handler struct {
	hub         *Hub
	verifier    auth.TokenVerifier
	messageRepo repositories.MessageRepository
}

// NewHandler constructs a websocket Handler.
func NewHandler(hub *Hub, verifier auth.TokenVerifier, messageRepo repositories.MessageRepository) *Handler {
	return &Handler{hub: hub, verifier: verifier, messageRepo: messageRepo}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates the handshake, upgrades the connection and serves frames.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("tripchat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	userID, err := h.verifier.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := newConnInfo(c.Request, userID, span.SpanContext().TraceID().String())

	go h.serve(context.Background(), conn, userID, info)
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && header[:7] == "Bearer " {
		return header[7:]
	}
	return c.Query("token")
}

func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, userID int64, info ConnInfo) {
	subscribed := make(map[Queue]bool)
	h.publishLifecycle(ctx, info, "ws_connect", "")

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(pingInterval)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			}
		}
	}()

	var closeReason string
	defer func() {
		close(done)
		for q := range subscribed {
			h.hub.RemoveClient(q, userID, conn)
			observability.DecWSActive(string(q))
		}
		h.publishLifecycle(ctx, info, "ws_disconnect", closeReason)
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("session", "ws_error")
			}
			return
		}

		var frame models.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("dropping malformed frame from user %d: %v", userID, err)
			continue
		}

		switch frame.Type {
		case models.FrameSubscribe:
			q, err := ParseDestination(frame.Destination, userID)
			if err != nil {
				log.Printf("dropping subscribe from user %d: %v", userID, err)
				continue
			}
			if !subscribed[q] {
				subscribed[q] = true
				h.hub.AddClient(q, userID, conn, info)
				observability.IncWSActive(string(q))
				observability.IncWSEvent(string(q), "ws_subscribe")
			}
		case models.FrameUnsubscribe:
			q, err := ParseDestination(frame.Destination, userID)
			if err != nil {
				continue
			}
			if subscribed[q] {
				delete(subscribed, q)
				h.hub.RemoveClient(q, userID, conn)
				observability.DecWSActive(string(q))
			}
		case models.FrameSend:
			h.handleSend(ctx, userID, frame)
		default:
			log.Printf("dropping frame with unknown type %q from user %d", frame.Type, userID)
		}
	}
}

func (h *Handler) handleSend(ctx context.Context, userID int64, frame models.Frame) {
	if frame.Destination != models.SendDestination {
		log.Printf("dropping send to unknown destination %q from user %d", frame.Destination, userID)
		return
	}

	var body models.SendBody
	if err := json.Unmarshal(frame.Body, &body); err != nil {
		log.Printf("dropping malformed send body from user %d: %v", userID, err)
		return
	}
	if body.SenderID != userID || body.ReceiverID == 0 || body.ReceiverID == userID || body.Content == "" ||
		len(body.Content) > models.MaxMessageLength {
		log.Printf("dropping invalid send from user %d", userID)
		return
	}

	msg, err := h.messageRepo.CreateMessage(ctx, body.SenderID, body.ReceiverID, body.Content)
	if err != nil {
		log.Printf("store message from user %d failed: %v", userID, err)
		return
	}

	h.hub.SendToUser(QueueMessages, msg.ReceiverID, msg)
	h.hub.SendToUser(QueueMessages, msg.SenderID, msg)
	observability.IncWSEvent(string(QueueMessages), "message_stored")
	_ = observability.PublishEvent(ctx, "chat.message_stored", observability.EventEnvelope{
		EventType: "chat",
		EventName: "message_stored",
		Payload:   msg,
	}, nil)
}

func (h *Handler) publishLifecycle(ctx context.Context, info ConnInfo, event, reason string) {
	observability.IncWSEvent("session", event)
	_ = observability.PublishEvent(ctx, "ws_events.sessions", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.CorrelationHeaders(info.RequestID, info.TraceID))
}
