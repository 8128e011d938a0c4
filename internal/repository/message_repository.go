package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/counselign/counselign-api/internal/models"
)

// MessageRepository provides persistence for direct messages.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository creates the repository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `id, sender_id, receiver_id, message_text, is_read, created_at`

// ListCounselorTrafficAfter returns messages exchanged between the user and
// any of the provided counselor accounts, in either direction, created
// strictly after the cursor. Callers must not pass an empty counselor set.
func (r *MessageRepository) ListCounselorTrafficAfter(ctx context.Context, userID string, counselorIDs []string, since time.Time) ([]models.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM messages
WHERE ((sender_id = $1 AND receiver_id = ANY($2)) OR (receiver_id = $1 AND sender_id = ANY($2)))
AND created_at > $3 ORDER BY created_at DESC`, messageColumns)
	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, userID, pq.Array(counselorIDs), since); err != nil {
		return nil, fmt.Errorf("list counselor messages after cursor: %w", err)
	}
	return messages, nil
}

// CountCounselorTrafficAfter counts messages matching the same predicate as
// ListCounselorTrafficAfter.
func (r *MessageRepository) CountCounselorTrafficAfter(ctx context.Context, userID string, counselorIDs []string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM messages
WHERE ((sender_id = $1 AND receiver_id = ANY($2)) OR (receiver_id = $1 AND sender_id = ANY($2)))
AND created_at > $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID, pq.Array(counselorIDs), since); err != nil {
		return 0, fmt.Errorf("count counselor messages after cursor: %w", err)
	}
	return count, nil
}

// ListConversation returns the full thread between two users, oldest first.
func (r *MessageRepository) ListConversation(ctx context.Context, userID, peerID string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM messages
WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
ORDER BY created_at ASC LIMIT %d`, messageColumns, limit)
	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, userID, peerID); err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	return messages, nil
}

// Create inserts a new message.
func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO messages (id, sender_id, receiver_id, message_text, is_read, created_at)
VALUES (:id, :sender_id, :receiver_id, :message_text, :is_read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, message); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}
