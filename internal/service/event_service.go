package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/counselign/counselign-api/internal/models"
	appErrors "github.com/counselign/counselign-api/pkg/errors"
)

type eventRepository interface {
	List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error)
	GetByID(ctx context.Context, id string) (*models.Event, error)
	Create(ctx context.Context, event *models.Event) error
	Update(ctx context.Context, event *models.Event) error
	Delete(ctx context.Context, id string) error
}

// EventPayload is the admin payload for creating or updating an event.
type EventPayload struct {
	Title     string `json:"title" validate:"required"`
	EventDate string `json:"event_date" validate:"required"`
	EventTime string `json:"event_time" validate:"required"`
	Location  string `json:"location" validate:"required"`
}

// EventService manages guidance office events.
type EventService struct {
	repo      eventRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewEventService constructs the service.
func NewEventService(repo eventRepository, validate *validator.Validate, logger *zap.Logger) *EventService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{repo: repo, validator: validate, logger: logger, now: time.Now}
}

// List returns events with pagination metadata.
func (s *EventService) List(ctx context.Context, filter models.EventFilter) ([]models.Event, *models.Pagination, error) {
	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return events, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Upcoming returns events from today forward.
func (s *EventService) Upcoming(ctx context.Context, page, pageSize int) ([]models.Event, *models.Pagination, error) {
	today := s.now().UTC().Truncate(24 * time.Hour)
	return s.List(ctx, models.EventFilter{From: &today, Page: page, PageSize: pageSize})
}

// Get returns a single event.
func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	return event, nil
}

// Create schedules a new event.
func (s *EventService) Create(ctx context.Context, createdBy string, payload EventPayload) (*models.Event, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}
	eventDate, err := time.Parse("2006-01-02", payload.EventDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid event date, expected YYYY-MM-DD")
	}
	event := &models.Event{
		Title:     payload.Title,
		EventDate: eventDate,
		EventTime: payload.EventTime,
		Location:  payload.Location,
		CreatedBy: createdBy,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}
	return event, nil
}

// Update modifies an existing event.
func (s *EventService) Update(ctx context.Context, id string, payload EventPayload) (*models.Event, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}
	event, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	eventDate, err := time.Parse("2006-01-02", payload.EventDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid event date, expected YYYY-MM-DD")
	}
	event.Title = payload.Title
	event.EventDate = eventDate
	event.EventTime = payload.EventTime
	event.Location = payload.Location
	if err := s.repo.Update(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update event")
	}
	return event, nil
}

// Delete removes an event.
func (s *EventService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete event")
	}
	return nil
}
