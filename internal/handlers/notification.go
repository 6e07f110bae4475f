package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"tripchat/internal/models"
	"tripchat/internal/observability"
	"tripchat/internal/repositories"
	"tripchat/internal/ws"
)

// NotificationHandler manages the notification REST endpoints, which double as
// the polling-fallback source for clients without a live connection.
type NotificationHandler struct {
	notificationRepo repositories.NotificationRepository
	hub              *ws.Hub
	serviceToken     string
}

// NewNotificationHandler builds a NotificationHandler. serviceToken guards the
// internal producer endpoint.
func NewNotificationHandler(notificationRepo repositories.NotificationRepository, hub *ws.Hub, serviceToken string) *NotificationHandler {
	return &NotificationHandler{notificationRepo: notificationRepo, hub: hub, serviceToken: serviceToken}
}

// List returns a page of the caller's notifications plus the unread count.
func (h *NotificationHandler) List(c *gin.Context) {
	userID := c.GetInt64("userID")

	opts := repositories.NotificationListOptions{Page: 1, Size: 20}
	if raw := c.Query("isRead"); raw != "" {
		isRead, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid isRead"})
			return
		}
		opts.IsRead = &isRead
	}
	if raw := c.Query("page"); raw != "" {
		if page, err := strconv.Atoi(raw); err == nil && page > 0 {
			opts.Page = page
		}
	}
	if raw := c.Query("size"); raw != "" {
		if size, err := strconv.Atoi(raw); err == nil && size > 0 {
			opts.Size = size
		}
	}
	if sort := c.Query("sort"); sort != "" {
		opts.Ascending = strings.HasSuffix(sort, ",asc")
	}

	list, total, err := h.notificationRepo.ListForRecipient(c.Request.Context(), userID, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load notifications"})
		return
	}
	unread, err := h.notificationRepo.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load unread count"})
		return
	}
	if list == nil {
		list = []models.Notification{}
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": list,
		"total":         total,
		"unread_count":  unread,
		"page":          opts.Page,
		"size":          opts.Size,
	})
}

// MarkRead flags one of the caller's notifications as read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}

	userID := c.GetInt64("userID")
	if err := h.notificationRepo.MarkRead(c.Request.Context(), id, userID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrNotificationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not mark notification read"})
		return
	}

	c.Status(http.StatusNoContent)
}

// MarkAllRead flags all of the caller's notifications as read in one step.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID := c.GetInt64("userID")
	if err := h.notificationRepo.MarkAllRead(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not mark notifications read"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Delete removes one of the caller's notifications.
func (h *NotificationHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}

	userID := c.GetInt64("userID")
	if err := h.notificationRepo.DeleteNotification(c.Request.Context(), id, userID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrNotificationNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not delete notification"})
		return
	}

	c.Status(http.StatusNoContent)
}

// CreateInternal is the producer hook other backend services call to raise a
// notification. Guarded by a shared service token, never exposed to clients.
func (h *NotificationHandler) CreateInternal(c *gin.Context) {
	if h.serviceToken == "" || c.GetHeader("X-Service-Token") != h.serviceToken {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid service token"})
		return
	}

	var req struct {
		RecipientID int64                   `json:"recipientId" binding:"required"`
		ActorID     int64                   `json:"actorId" binding:"required"`
		Type        models.NotificationType `json:"type" binding:"required"`
		TargetType  string                  `json:"targetType" binding:"required"`
		TargetID    string                  `json:"targetId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown notification type"})
		return
	}

	n, err := h.notificationRepo.CreateNotification(c.Request.Context(), models.Notification{
		RecipientID: req.RecipientID,
		ActorID:     req.ActorID,
		Type:        req.Type,
		TargetType:  req.TargetType,
		TargetID:    req.TargetID,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create notification"})
		return
	}

	if h.hub != nil {
		h.hub.SendToUser(ws.QueueNotifications, n.RecipientID, n)
	}
	_ = observability.PublishEvent(c.Request.Context(), "notifications.created", observability.EventEnvelope{
		EventType: "notifications",
		EventName: "notification_created",
		Payload:   n,
	}, nil)

	c.JSON(http.StatusCreated, n)
}
