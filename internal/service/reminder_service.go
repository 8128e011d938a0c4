package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/counselign/counselign-api/internal/models"
	"github.com/counselign/counselign-api/pkg/jobs"
)

type reminderAppointmentSource interface {
	ListApprovedBetween(ctx context.Context, from, to time.Time) ([]models.Appointment, error)
}

type reminderNotificationSink interface {
	ExistsForRelated(ctx context.Context, userID string, entryType models.FeedEntryType, relatedID string) (bool, error)
}

type reminderNotifier interface {
	Create(ctx context.Context, req models.CreateNotificationRequest) (string, error)
}

// ReminderConfig tunes the appointment reminder scanner.
type ReminderConfig struct {
	LeadTime     time.Duration
	PollInterval time.Duration
	Workers      int
	MaxRetries   int
}

// ReminderServiceParams groups dependencies for NewReminderService.
type ReminderServiceParams struct {
	Appointments  reminderAppointmentSource
	Notifications reminderNotificationSink
	Notifier      reminderNotifier
	Logger        *zap.Logger
	Config        ReminderConfig
	Now           func() time.Time
}

// ReminderService periodically scans approved appointments and persists a
// reminder notification for each one starting within the lead-time window.
// Delivery goes through a worker queue so a slow insert never blocks the
// scan loop.
type ReminderService struct {
	appointments  reminderAppointmentSource
	notifications reminderNotificationSink
	notifier      reminderNotifier
	logger        *zap.Logger
	cfg           ReminderConfig
	now           func() time.Time
	queue         *jobs.Queue
}

type reminderJobPayload struct {
	Appointment models.Appointment
	StartsAt    time.Time
}

// NewReminderService constructs a ReminderService instance.
func NewReminderService(params ReminderServiceParams) *ReminderService {
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	if params.Config.LeadTime <= 0 {
		params.Config.LeadTime = 24 * time.Hour
	}
	if params.Config.PollInterval <= 0 {
		params.Config.PollInterval = 15 * time.Minute
	}

	s := &ReminderService{
		appointments:  params.Appointments,
		notifications: params.Notifications,
		notifier:      params.Notifier,
		logger:        params.Logger,
		cfg:           params.Config,
		now:           params.Now,
	}
	s.queue = jobs.NewQueue("appointment-reminders", s.handleReminderJob, jobs.QueueConfig{
		Workers:    params.Config.Workers,
		MaxRetries: params.Config.MaxRetries,
		Logger:     params.Logger,
	})
	return s
}

// Start launches the queue workers and the scan loop. It returns immediately;
// the loop runs until ctx is cancelled.
func (s *ReminderService) Start(ctx context.Context) {
	s.queue.Start(ctx)
	go s.loop(ctx)
}

// Stop drains the worker queue.
func (s *ReminderService) Stop() {
	s.queue.Stop()
}

func (s *ReminderService) loop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.Scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Scan(ctx)
		}
	}
}

// Scan enqueues reminder jobs for approved appointments starting within the
// lead-time window. Exported so a deployment can trigger it on demand.
func (s *ReminderService) Scan(ctx context.Context) {
	now := s.now().UTC()
	appointments, err := s.appointments.ListApprovedBetween(ctx, now, now.Add(s.cfg.LeadTime))
	if err != nil {
		s.logger.Warn("reminder scan failed", zap.Error(err))
		return
	}

	for _, appointment := range appointments {
		startsAt, err := appointmentStart(appointment)
		if err != nil {
			s.logger.Warn("skipping appointment with unparseable schedule",
				zap.String("appointment_id", appointment.ID), zap.Error(err))
			continue
		}
		job := jobs.Job{
			ID:      uuid.NewString(),
			Type:    "appointment-reminder",
			Payload: reminderJobPayload{Appointment: appointment, StartsAt: startsAt},
		}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("failed to enqueue reminder", zap.String("appointment_id", appointment.ID), zap.Error(err))
		}
	}
}

func (s *ReminderService) handleReminderJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(reminderJobPayload)
	if !ok {
		s.logger.Error("reminder job carried unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	appointment := payload.Appointment

	exists, err := s.notifications.ExistsForRelated(ctx, appointment.StudentID, models.FeedEntryAppointment, appointment.ID)
	if err != nil {
		return fmt.Errorf("check existing reminder: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := s.notifier.Create(ctx, models.CreateNotificationRequest{
		UserID:    appointment.StudentID,
		Type:      models.FeedEntryAppointment,
		Title:     "Appointment Reminder",
		Message:   reminderMessage(appointment, payload.StartsAt),
		RelatedID: appointment.ID,
	}); err != nil {
		return fmt.Errorf("create reminder notification: %w", err)
	}
	return nil
}

func reminderMessage(appointment models.Appointment, startsAt time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your appointment with %s is coming up on %s at %s",
		appointment.CounselorPreference,
		startsAt.Format("January 2, 2006"),
		appointment.PreferredTime)
	if appointment.Purpose != "" {
		fmt.Fprintf(&b, " regarding %s", appointment.Purpose)
	}
	b.WriteString(".")
	return b.String()
}

func appointmentStart(appointment models.Appointment) (time.Time, error) {
	day := appointment.PreferredDate
	parsed, err := time.Parse("15:04", appointment.PreferredTime)
	if err != nil {
		// Some rows carry display times like "2:30 PM".
		parsed, err = time.Parse("3:04 PM", appointment.PreferredTime)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse appointment time %q: %w", appointment.PreferredTime, err)
		}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, time.UTC), nil
}
