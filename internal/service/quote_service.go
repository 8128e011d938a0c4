package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/counselign/counselign-api/internal/models"
	appErrors "github.com/counselign/counselign-api/pkg/errors"
)

type quoteRepository interface {
	Create(ctx context.Context, quote *models.Quote) error
	GetByID(ctx context.Context, id string) (*models.Quote, error)
	ListByStatus(ctx context.Context, status models.QuoteStatus) ([]models.Quote, error)
	UpdateStatus(ctx context.Context, id string, status models.QuoteStatus, updatedAt time.Time) error
}

// QuoteServiceConfig tunes quote-of-the-day behaviour.
type QuoteServiceConfig struct {
	RotationCacheTTL time.Duration
}

// QuoteService manages inspirational quote submission, moderation and the
// daily rotation shown on the student dashboard.
type QuoteService struct {
	repo      quoteRepository
	audit     auditRecorder
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
	cfg       QuoteServiceConfig
}

// NewQuoteService constructs the service.
func NewQuoteService(repo quoteRepository, audit auditRecorder, cache *CacheService, validate *validator.Validate, logger *zap.Logger, cfg QuoteServiceConfig) *QuoteService {
	if cfg.RotationCacheTTL <= 0 {
		cfg.RotationCacheTTL = time.Hour
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuoteService{repo: repo, audit: audit, cache: cache, validator: validate, logger: logger, now: time.Now, cfg: cfg}
}

// Submit records a new quote pending moderation.
func (s *QuoteService) Submit(ctx context.Context, submittedBy string, req models.SubmitQuoteRequest) (*models.Quote, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quote payload")
	}
	quote := &models.Quote{
		Text:        req.Text,
		Author:      req.Author,
		SubmittedBy: submittedBy,
		Status:      models.QuoteStatusPending,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.Create(ctx, quote); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit quote")
	}
	return quote, nil
}

// Pending lists quotes awaiting moderation.
func (s *QuoteService) Pending(ctx context.Context) ([]models.Quote, error) {
	quotes, err := s.repo.ListByStatus(ctx, models.QuoteStatusPending)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending quotes")
	}
	return quotes, nil
}

// Moderate approves or rejects a pending quote and audits the decision.
func (s *QuoteService) Moderate(ctx context.Context, id, actorID string, approve bool) (*models.Quote, error) {
	quote, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load quote")
	}
	if quote.Status != models.QuoteStatusPending {
		return nil, appErrors.ErrQuoteModerated
	}

	status := models.QuoteStatusRejected
	if approve {
		status = models.QuoteStatusApproved
	}
	updatedAt := s.now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, status, updatedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to moderate quote")
	}

	if s.audit != nil {
		newValues, _ := json.Marshal(map[string]string{"status": string(status)})
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actorID,
			Action:     models.AuditActionQuoteModeration,
			Resource:   "quotes",
			ResourceID: &id,
			NewValues:  newValues,
		}); err != nil {
			s.logger.Warn("failed to record quote audit log", zap.Error(err))
		}
	}

	// Approving a quote changes the rotation pool.
	if approve {
		if err := s.cache.Invalidate(ctx, "quotes:daily:*"); err != nil {
			s.logger.Warn("failed to invalidate quote rotation cache", zap.Error(err))
		}
	}

	quote.Status = status
	quote.UpdatedAt = updatedAt
	return quote, nil
}

// QuoteOfTheDay returns a deterministic daily pick from the approved pool.
// The same quote is served for the whole day regardless of who asks.
func (s *QuoteService) QuoteOfTheDay(ctx context.Context) (*models.Quote, error) {
	day := s.now().UTC().Format("2006-01-02")
	cacheKey := "quotes:daily:" + day

	var cached models.Quote
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return &cached, nil
	}

	approved, err := s.repo.ListByStatus(ctx, models.QuoteStatusApproved)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approved quotes")
	}
	if len(approved) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no approved quotes available")
	}

	// Day-of-year keyed rotation over the approved pool.
	pick := approved[s.now().UTC().YearDay()%len(approved)]

	if err := s.cache.Set(ctx, cacheKey, pick, s.cfg.RotationCacheTTL); err != nil {
		s.logger.Warn("failed to cache quote of the day", zap.Error(err))
	}

	return &pick, nil
}
