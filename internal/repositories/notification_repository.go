package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"tripchat/internal/models"
)

var ErrNotificationNotFound = errors.New("notification not found")

// NotificationListOptions narrows and pages a notification listing.
type NotificationListOptions struct {
	IsRead    *bool
	Page      int
	Size      int
	Ascending bool
}

// NotificationRepository abstracts notification persistence.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error)
	ListForRecipient(ctx context.Context, recipientID int64, opts NotificationListOptions) ([]models.Notification, int64, error)
	UnreadCount(ctx context.Context, recipientID int64) (int64, error)
	MarkRead(ctx context.Context, id, recipientID int64) error
	MarkAllRead(ctx context.Context, recipientID int64) error
	DeleteNotification(ctx context.Context, id, recipientID int64) error
}

// NotificationRepo is a sqlx implementation of NotificationRepository.
type NotificationRepo struct {
	db *sqlx.DB
}

// NewNotificationRepo constructs a NotificationRepo.
func NewNotificationRepo(db *sqlx.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// CreateNotification stores a server-originated notification.
func (r *NotificationRepo) CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	err := r.db.QueryRowxContext(ctx, `INSERT INTO notifications (recipient_id, actor_id, type, target_type, target_id)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, recipient_id, actor_id, type, target_type, target_id, is_read, created_at`,
		n.RecipientID, n.ActorID, n.Type, n.TargetType, n.TargetID).
		Scan(&n.ID, &n.RecipientID, &n.ActorID, &n.Type, &n.TargetType, &n.TargetID, &n.IsRead, &n.CreatedAt)
	return n, err
}

// ListForRecipient returns one page of notifications plus the unfiltered total.
func (r *NotificationRepo) ListForRecipient(ctx context.Context, recipientID int64, opts NotificationListOptions) ([]models.Notification, int64, error) {
	where := `WHERE recipient_id=$1`
	args := []interface{}{recipientID}
	if opts.IsRead != nil {
		where += ` AND is_read=$2`
		args = append(args, *opts.IsRead)
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM notifications `+where, args...); err != nil {
		return nil, 0, err
	}

	order := "DESC"
	if opts.Ascending {
		order = "ASC"
	}
	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.Size
	if size < 1 {
		size = 20
	}

	query := fmt.Sprintf(`SELECT id, recipient_id, actor_id, type, target_type, target_id, is_read, created_at
        FROM notifications %s ORDER BY created_at %s, id %s LIMIT %d OFFSET %d`,
		where, order, order, size, (page-1)*size)

	var list []models.Notification
	if err := r.db.SelectContext(ctx, &list, query, args...); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// UnreadCount returns the number of unread notifications for the recipient.
func (r *NotificationRepo) UnreadCount(ctx context.Context, recipientID int64) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM notifications WHERE recipient_id=$1 AND is_read=FALSE`, recipientID)
	return count, err
}

// MarkRead flags one notification as read for its recipient.
func (r *NotificationRepo) MarkRead(ctx context.Context, id, recipientID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read=TRUE WHERE id=$1 AND recipient_id=$2`, id, recipientID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead flags every unread notification for the recipient in one statement.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, recipientID int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read=TRUE WHERE recipient_id=$1 AND is_read=FALSE`, recipientID)
	return err
}

// DeleteNotification removes one notification owned by the recipient.
func (r *NotificationRepo) DeleteNotification(ctx context.Context, id, recipientID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id=$1 AND recipient_id=$2`, id, recipientID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
