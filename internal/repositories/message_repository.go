package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"tripchat/internal/models"
)

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, senderID, receiverID int64, content string) (models.Message, error)
	GetConversation(ctx context.Context, userA, userB int64) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a chat message.
func (r *MessageRepo) CreateMessage(ctx context.Context, senderID, receiverID int64, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (sender_id, receiver_id, content) VALUES ($1, $2, $3) RETURNING id, sender_id, receiver_id, content, created_at`, senderID, receiverID, content).
		Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.CreatedAt)
	return msg, err
}

// GetConversation returns the messages between two users in chronological order,
// regardless of which side sent them.
func (r *MessageRepo) GetConversation(ctx context.Context, userA, userB int64) ([]models.Message, error) {
	query := `SELECT id, sender_id, receiver_id, content, created_at
        FROM messages
        WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
        ORDER BY created_at ASC, id ASC`
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, userA, userB)
	return msgs, err
}
