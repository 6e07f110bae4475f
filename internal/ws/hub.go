package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tripchat/internal/models"
	"tripchat/internal/observability"
)

// Hub maintains the active websocket connections per user queue.
type Hub struct {
	rooms    map[Queue]map[int64]map[*websocket.Conn]bool
	connInfo map[Queue]map[int64]map[*websocket.Conn]ConnInfo
	mu       sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		rooms:    make(map[Queue]map[int64]map[*websocket.Conn]bool),
		connInfo: make(map[Queue]map[int64]map[*websocket.Conn]ConnInfo),
	}
}

// AddClient registers a websocket connection on a user's queue.
func (h *Hub) AddClient(q Queue, userID int64, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[q]; !ok {
		h.rooms[q] = make(map[int64]map[*websocket.Conn]bool)
	}
	if _, ok := h.rooms[q][userID]; !ok {
		h.rooms[q][userID] = make(map[*websocket.Conn]bool)
	}
	h.rooms[q][userID][conn] = true

	if _, ok := h.connInfo[q]; !ok {
		h.connInfo[q] = make(map[int64]map[*websocket.Conn]ConnInfo)
	}
	if _, ok := h.connInfo[q][userID]; !ok {
		h.connInfo[q][userID] = make(map[*websocket.Conn]ConnInfo)
	}
	h.connInfo[q][userID][conn] = info
}

// RemoveClient removes a websocket connection from a user's queue.
func (h *Hub) RemoveClient(q Queue, userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[q][userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms[q], userID)
		}
	}
	if infos, ok := h.connInfo[q][userID]; ok {
		delete(infos, conn)
		if len(infos) == 0 {
			delete(h.connInfo[q], userID)
		}
	}
}

// SendToUser delivers a message frame to every connection on the user's queue.
func (h *Hub) SendToUser(q Queue, userID int64, body interface{}) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.rooms[q][userID]))
	for conn := range h.rooms[q][userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	raw, err := json.Marshal(body)
	if err != nil {
		log.Printf("websocket marshal error: %v", err)
		return
	}
	frame := models.Frame{Type: models.FrameMessage, Destination: DestinationFor(q, userID), Body: raw}
	payload, _ := json.Marshal(frame)

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("websocket write error: %v", err)
			conn.Close()
			h.RemoveClient(q, userID, conn)
			h.publishWSError(q, userID, conn, err)
		}
	}
}

func (h *Hub) publishWSError(q Queue, userID int64, conn *websocket.Conn, err error) {
	info, ok := h.getConnInfo(q, userID, conn)
	if !ok {
		return
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"queue":       string(q),
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.CorrelationHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), routingKey(q), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent(string(q), "ws_error")
}

func (h *Hub) getConnInfo(q Queue, userID int64, conn *websocket.Conn) (ConnInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if infos, ok := h.connInfo[q][userID]; ok {
		info, exists := infos[conn]
		return info, exists
	}
	return ConnInfo{}, false
}

func routingKey(q Queue) string {
	if q == QueueNotifications {
		return "ws_events.notifications"
	}
	return "ws_events.messages"
}
