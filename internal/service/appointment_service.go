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

type appointmentRepository interface {
	Create(ctx context.Context, appointment *models.Appointment) error
	GetByID(ctx context.Context, id string) (*models.Appointment, error)
	List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error)
	UpdateStatus(ctx context.Context, id string, status models.AppointmentStatus, reason *string, updatedAt time.Time) error
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// allowedTransitions captures the appointment lifecycle. A terminal status
// has no outgoing edges.
var allowedTransitions = map[models.AppointmentStatus][]models.AppointmentStatus{
	models.AppointmentStatusPending:  {models.AppointmentStatusApproved, models.AppointmentStatusRejected, models.AppointmentStatusCancelled},
	models.AppointmentStatusApproved: {models.AppointmentStatusCompleted, models.AppointmentStatusCancelled},
}

// AppointmentService manages counseling appointment requests and their
// lifecycle. Status changes bump updated_at, which is what surfaces them in
// the activity feed.
type AppointmentService struct {
	repo      appointmentRepository
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAppointmentService constructs the service.
func NewAppointmentService(repo appointmentRepository, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *AppointmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppointmentService{repo: repo, audit: audit, validator: validate, logger: logger, now: time.Now}
}

// Book creates a pending appointment request for a student.
func (s *AppointmentService) Book(ctx context.Context, studentID string, req models.BookAppointmentRequest) (*models.Appointment, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid appointment payload")
	}

	preferredDate, err := time.Parse("2006-01-02", req.PreferredDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid preferred date, expected YYYY-MM-DD")
	}

	appointment := &models.Appointment{
		StudentID:           studentID,
		CounselorPreference: req.CounselorPreference,
		PreferredDate:       preferredDate,
		PreferredTime:       req.PreferredTime,
		Purpose:             req.Purpose,
		Status:              models.AppointmentStatusPending,
		CreatedAt:           s.now().UTC(),
	}
	if err := s.repo.Create(ctx, appointment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to book appointment")
	}
	return appointment, nil
}

// Get returns an appointment, enforcing that students only see their own.
func (s *AppointmentService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.Appointment, error) {
	appointment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}
	if claims != nil && claims.Role == models.RoleStudent && appointment.StudentID != claims.UserID {
		return nil, appErrors.ErrForbidden
	}
	return appointment, nil
}

// List returns appointments with pagination metadata. Students are always
// constrained to their own rows.
func (s *AppointmentService) List(ctx context.Context, filter models.AppointmentFilter, claims *models.JWTClaims) ([]models.Appointment, *models.Pagination, error) {
	if claims != nil && claims.Role == models.RoleStudent {
		filter.StudentID = claims.UserID
	}
	appointments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list appointments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return appointments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// UpdateStatus transitions an appointment through its lifecycle and records
// the change in the audit trail.
func (s *AppointmentService) UpdateStatus(ctx context.Context, id, actorID string, req models.UpdateAppointmentStatusRequest) (*models.Appointment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	appointment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointment")
	}

	if !transitionAllowed(appointment.Status, req.Status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "cannot move appointment from "+string(appointment.Status)+" to "+string(req.Status))
	}

	var reason *string
	if req.Reason != "" {
		reason = &req.Reason
	}
	updatedAt := s.now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, req.Status, reason, updatedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update appointment status")
	}

	if s.audit != nil {
		oldValues, _ := json.Marshal(map[string]string{"status": string(appointment.Status)})
		newValues, _ := json.Marshal(map[string]string{"status": string(req.Status), "reason": req.Reason})
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &actorID,
			Action:     models.AuditActionAppointmentStatus,
			Resource:   "appointments",
			ResourceID: &id,
			OldValues:  oldValues,
			NewValues:  newValues,
		}); err != nil {
			s.logger.Warn("failed to record appointment audit log", zap.Error(err))
		}
	}

	appointment.Status = req.Status
	appointment.Reason = reason
	appointment.UpdatedAt = updatedAt
	return appointment, nil
}

func transitionAllowed(from, to models.AppointmentStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
