package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/counselign/counselign-api/internal/models"
)

// NotificationRepository persists first-class notification rows. The bulk of
// the activity feed is synthesized per request and never touches this table;
// only explicitly created notifications (e.g. appointment reminders) live here.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, user_id, type, title, message, related_id, is_read, created_at`

// Create inserts a persisted notification row and returns its identifier.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) (string, error) {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, user_id, type, title, message, related_id, is_read, created_at)
VALUES (:id, :user_id, :type, :title, :message, :related_id, :is_read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, notification); err != nil {
		return "", fmt.Errorf("create notification: %w", err)
	}
	return notification.ID, nil
}

// MarkRead flips is_read for a row owned by the user. It reports whether any
// row was affected.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) (bool, error) {
	const query = `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification read rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListByUser returns persisted notifications for a user, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT %d`, notificationColumns, limit)
	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, userID); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// ExistsForRelated reports whether the user already has a notification of the
// given type referencing the related row. Keeps the reminder worker idempotent.
func (r *NotificationRepository) ExistsForRelated(ctx context.Context, userID string, entryType models.FeedEntryType, relatedID string) (bool, error) {
	const query = `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND type = $2 AND related_id = $3`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID, entryType, relatedID); err != nil {
		return false, fmt.Errorf("check notification exists: %w", err)
	}
	return count > 0, nil
}
