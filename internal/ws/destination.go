package ws

import (
	"fmt"
	"strconv"
	"strings"
)

// Queue identifies one of a user's private delivery queues.
type Queue string

const (
	QueueMessages      Queue = "messages"
	QueueNotifications Queue = "notifications"
)

// DestinationFor returns the logical address of a user's queue.
func DestinationFor(q Queue, userID int64) string {
	return fmt.Sprintf("/user/%d/queue/%s", userID, q)
}

// ParseDestination resolves a subscribe destination against the authenticated
// user. The bare form "/user/queue/notifications" addresses the caller's own
// queue; the explicit form must name the caller's user id.
func ParseDestination(dest string, userID int64) (Queue, error) {
	parts := strings.Split(strings.Trim(dest, "/"), "/")
	if len(parts) == 3 && parts[0] == "user" && parts[1] == "queue" {
		return queueFromName(parts[2])
	}
	if len(parts) == 4 && parts[0] == "user" && parts[2] == "queue" {
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || id != userID {
			return "", fmt.Errorf("destination %q does not belong to user %d", dest, userID)
		}
		return queueFromName(parts[3])
	}
	return "", fmt.Errorf("unknown destination %q", dest)
}

func queueFromName(name string) (Queue, error) {
	switch Queue(name) {
	case QueueMessages, QueueNotifications:
		return Queue(name), nil
	}
	return "", fmt.Errorf("unknown queue %q", name)
}
