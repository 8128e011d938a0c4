package models

import "time"

// Event represents a guidance office event visible to every student.
type Event struct {
	ID        string    `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	EventDate time.Time `db:"event_date" json:"event_date"`
	EventTime string    `db:"event_time" json:"event_time"`
	Location  string    `db:"location" json:"location"`
	CreatedBy string    `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// EventFilter narrows down event listings.
type EventFilter struct {
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}
