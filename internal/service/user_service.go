package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/counselign/counselign-api/internal/models"
	appErrors "github.com/counselign/counselign-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// UserService covers the admin account-management surface: listing accounts
// and toggling activation.
type UserService struct {
	repo   userRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewUserService constructs the service.
func NewUserService(repo userRepository, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, logger: logger, now: time.Now}
}

// List returns accounts with pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return users, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// SetActive activates or deactivates an account. Deactivation also revokes
// the account's refresh tokens so existing sessions die at the next refresh.
func (s *UserService) SetActive(ctx context.Context, id, actorID string, active bool) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.ID == actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot change your own activation")
	}

	ts := s.now().UTC()
	if err := s.repo.SetActive(ctx, id, active, ts); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update activation")
	}
	if !active {
		if err := s.repo.RevokeUserRefreshTokens(ctx, id); err != nil {
			s.logger.Warn("failed to revoke sessions for deactivated user", zap.String("user_id", id), zap.Error(err))
		}
	}

	audit := &models.AuditLog{
		ID:         uuid.NewString(),
		UserID:     &actorID,
		Action:     models.AuditActionAccountModeration,
		Resource:   "users",
		ResourceID: &id,
		CreatedAt:  ts,
	}
	if err := s.repo.CreateAuditLog(ctx, audit); err != nil {
		s.logger.Warn("failed to record account moderation audit", zap.String("user_id", id), zap.Error(err))
	}

	user.Active = active
	user.UpdatedAt = ts
	return user, nil
}
