package models

import "time"

// NotificationType is the closed set of notification kinds the server emits.
type NotificationType string

const (
	NotificationLikePost             NotificationType = "like-post"
	NotificationLikeComment          NotificationType = "like-comment"
	NotificationCommentPost          NotificationType = "comment-post"
	NotificationReplyComment         NotificationType = "reply-comment"
	NotificationNewBooking           NotificationType = "new-booking"
	NotificationBookingConfirmed     NotificationType = "booking-confirmed"
	NotificationBookingUpdateRequest NotificationType = "booking-update-request"
	NotificationTourApproved         NotificationType = "tour-approved"
	NotificationNewRating            NotificationType = "new-rating"
	NotificationBookingRejected      NotificationType = "booking-rejected"
)

// Valid reports whether t is one of the known notification types.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationLikePost, NotificationLikeComment, NotificationCommentPost,
		NotificationReplyComment, NotificationNewBooking, NotificationBookingConfirmed,
		NotificationBookingUpdateRequest, NotificationTourApproved,
		NotificationNewRating, NotificationBookingRejected:
		return true
	}
	return false
}

// Notification represents a server-created user notification.
type Notification struct {
	ID          int64            `db:"id" json:"id"`
	RecipientID int64            `db:"recipient_id" json:"recipientId"`
	ActorID     int64            `db:"actor_id" json:"actorId"`
	Type        NotificationType `db:"type" json:"type"`
	TargetType  string           `db:"target_type" json:"targetType"`
	TargetID    string           `db:"target_id" json:"targetId"`
	IsRead      bool             `db:"is_read" json:"isRead"`
	CreatedAt   time.Time        `db:"created_at" json:"createdAt"`
}
