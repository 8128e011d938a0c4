package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/counselign/counselign-api/internal/models"
)

// QuoteRepository provides persistence for inspirational quotes.
type QuoteRepository struct {
	db *sqlx.DB
}

// NewQuoteRepository creates the repository.
func NewQuoteRepository(db *sqlx.DB) *QuoteRepository {
	return &QuoteRepository{db: db}
}

const quoteColumns = `id, text, author, submitted_by, status, created_at, updated_at`

// Create inserts a new submitted quote.
func (r *QuoteRepository) Create(ctx context.Context, quote *models.Quote) error {
	if quote.ID == "" {
		quote.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if quote.CreatedAt.IsZero() {
		quote.CreatedAt = now
	}
	quote.UpdatedAt = now
	const query = `INSERT INTO quotes (id, text, author, submitted_by, status, created_at, updated_at)
VALUES (:id, :text, :author, :submitted_by, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, quote); err != nil {
		return fmt.Errorf("create quote: %w", err)
	}
	return nil
}

// GetByID returns a quote by identifier.
func (r *QuoteRepository) GetByID(ctx context.Context, id string) (*models.Quote, error) {
	query := fmt.Sprintf(`SELECT %s FROM quotes WHERE id = $1`, quoteColumns)
	var quote models.Quote
	if err := r.db.GetContext(ctx, &quote, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find quote by id: %w", err)
	}
	return &quote, nil
}

// ListByStatus returns quotes in a moderation state, oldest submission first.
func (r *QuoteRepository) ListByStatus(ctx context.Context, status models.QuoteStatus) ([]models.Quote, error) {
	query := fmt.Sprintf(`SELECT %s FROM quotes WHERE status = $1 ORDER BY created_at ASC`, quoteColumns)
	var quotes []models.Quote
	if err := r.db.SelectContext(ctx, &quotes, query, status); err != nil {
		return nil, fmt.Errorf("list quotes by status: %w", err)
	}
	return quotes, nil
}

// UpdateStatus moves a quote through moderation.
func (r *QuoteRepository) UpdateStatus(ctx context.Context, id string, status models.QuoteStatus, updatedAt time.Time) error {
	const query = `UPDATE quotes SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, updatedAt); err != nil {
		return fmt.Errorf("update quote status: %w", err)
	}
	return nil
}

// Delete removes a quote.
func (r *QuoteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM quotes WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete quote: %w", err)
	}
	return nil
}
