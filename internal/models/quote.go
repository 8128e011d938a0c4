package models

import "time"

// QuoteStatus tracks moderation state for submitted quotes.
type QuoteStatus string

const (
	QuoteStatusPending  QuoteStatus = "PENDING"
	QuoteStatusApproved QuoteStatus = "APPROVED"
	QuoteStatusRejected QuoteStatus = "REJECTED"
)

// Quote is an inspirational quote submitted by a user and moderated by admins.
type Quote struct {
	ID          string      `db:"id" json:"id"`
	Text        string      `db:"text" json:"text"`
	Author      string      `db:"author" json:"author"`
	SubmittedBy string      `db:"submitted_by" json:"submitted_by"`
	Status      QuoteStatus `db:"status" json:"status"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// SubmitQuoteRequest is the payload for submitting a quote.
type SubmitQuoteRequest struct {
	Text   string `json:"text" validate:"required"`
	Author string `json:"author" validate:"required"`
}
