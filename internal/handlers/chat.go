package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tripchat/internal/models"
	"tripchat/internal/observability"
	"tripchat/internal/repositories"
	"tripchat/internal/ws"
)

// ChatHandler manages the conversation REST endpoints, including the fallback
// send path used when a client has no live transport.
type ChatHandler struct {
	messageRepo repositories.MessageRepository
	hub         *ws.Hub
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(messageRepo repositories.MessageRepository, hub *ws.Hub) *ChatHandler {
	return &ChatHandler{messageRepo: messageRepo, hub: hub}
}

// GetConversation returns the ordered message history between two users.
// Only a participant may fetch it.
func (h *ChatHandler) GetConversation(c *gin.Context) {
	userA, errA := strconv.ParseInt(c.Param("userA"), 10, 64)
	userB, errB := strconv.ParseInt(c.Param("userB"), 10, 64)
	if errA != nil || errB != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	userID := c.GetInt64("userID")
	if userID != userA && userID != userB {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation participant"})
		return
	}

	msgs, err := h.messageRepo.GetConversation(c.Request.Context(), userA, userB)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// SendMessage stores a chat message and fans it out to both participants'
// live connections. This is the REST fallback for the websocket send path.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req models.SendBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt64("userID")
	if req.SenderID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "sender does not match authenticated user"})
		return
	}
	if req.ReceiverID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot message yourself"})
		return
	}
	if len(req.Content) > models.MaxMessageLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message too long"})
		return
	}

	msg, err := h.messageRepo.CreateMessage(c.Request.Context(), req.SenderID, req.ReceiverID, req.Content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	if h.hub != nil {
		h.hub.SendToUser(ws.QueueMessages, msg.ReceiverID, msg)
		h.hub.SendToUser(ws.QueueMessages, msg.SenderID, msg)
	}
	_ = observability.PublishEvent(c.Request.Context(), "chat.message_stored", observability.EventEnvelope{
		EventType: "chat",
		EventName: "message_stored",
		Payload:   msg,
	}, nil)

	c.JSON(http.StatusCreated, msg)
}
