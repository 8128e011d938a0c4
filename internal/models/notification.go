package models

import "time"

// FeedEntryType discriminates the source of an activity feed entry.
type FeedEntryType string

const (
	FeedEntryEvent        FeedEntryType = "event"
	FeedEntryAnnouncement FeedEntryType = "announcement"
	FeedEntryAppointment  FeedEntryType = "appointment"
	FeedEntryMessage      FeedEntryType = "message"
)

// FeedEntry is a derived notification synthesized per request from one of
// the four activity sources. It carries the timestamp of the source row
// and has no persistence or identity of its own.
type FeedEntry struct {
	Type      FeedEntryType `json:"type"`
	Title     string        `json:"title"`
	Message   string        `json:"message"`
	CreatedAt time.Time     `json:"created_at"`
	RelatedID string        `json:"related_id"`
	IsRead    bool          `json:"is_read"`
}

// Notification is a first-class persisted notification row, distinct from
// the ephemeral feed entries. Only these rows participate in mark-as-read.
type Notification struct {
	ID        string        `db:"id" json:"id"`
	UserID    string        `db:"user_id" json:"user_id"`
	Type      FeedEntryType `db:"type" json:"type"`
	Title     string        `db:"title" json:"title"`
	Message   string        `db:"message" json:"message"`
	RelatedID *string       `db:"related_id" json:"related_id,omitempty"`
	IsRead    bool          `db:"is_read" json:"is_read"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// CreateNotificationRequest is the payload for persisting a notification.
type CreateNotificationRequest struct {
	UserID    string        `json:"user_id" validate:"required"`
	Type      FeedEntryType `json:"type" validate:"required"`
	Title     string        `json:"title" validate:"required"`
	Message   string        `json:"message" validate:"required"`
	RelatedID string        `json:"related_id"`
}
