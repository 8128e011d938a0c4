package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/counselign/counselign-api/internal/models"
	appErrors "github.com/counselign/counselign-api/pkg/errors"
)

type eventActivitySource interface {
	ListCreatedAfter(ctx context.Context, since time.Time) ([]models.Event, error)
	CountCreatedAfter(ctx context.Context, since time.Time) (int, error)
}

type announcementActivitySource interface {
	ListCreatedAfter(ctx context.Context, since time.Time) ([]models.Announcement, error)
	CountCreatedAfter(ctx context.Context, since time.Time) (int, error)
}

type appointmentActivitySource interface {
	ListUpdatedAfter(ctx context.Context, studentID string, since time.Time) ([]models.Appointment, error)
	CountUpdatedAfter(ctx context.Context, studentID string, since time.Time) (int, error)
}

type messageActivitySource interface {
	ListCounselorTrafficAfter(ctx context.Context, userID string, counselorIDs []string, since time.Time) ([]models.Message, error)
	CountCounselorTrafficAfter(ctx context.Context, userID string, counselorIDs []string, since time.Time) (int, error)
}

type activityUserSource interface {
	LastActivity(ctx context.Context, userID string) (*time.Time, error)
	CounselorIDs(ctx context.Context) ([]string, error)
}

type notificationStore interface {
	Create(ctx context.Context, notification *models.Notification) (string, error)
	MarkRead(ctx context.Context, id, userID string) (bool, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
}

// Body previews in feed entries are clipped to this many characters.
const feedPreviewLimit = 100

const counselorCacheKey = "notif:counselors"

// NotificationServiceConfig tunes feed aggregation behaviour.
type NotificationServiceConfig struct {
	LookbackDays      int
	FeedLimit         int
	CounselorCacheTTL time.Duration
}

// NotificationService aggregates events, announcements, appointment updates
// and counselor messages into a per-user activity feed, and manages the
// separate persisted notification rows.
//
// The public UnreadCount and Recent methods fail open: a store failure is
// logged and surfaced as zero/empty rather than breaking the caller's
// rendering path.
type NotificationService struct {
	events        eventActivitySource
	announcements announcementActivitySource
	appointments  appointmentActivitySource
	messages      messageActivitySource
	users         activityUserSource
	store         notificationStore
	cache         *CacheService
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
	cfg           NotificationServiceConfig
}

// NotificationServiceParams groups constructor dependencies.
type NotificationServiceParams struct {
	Events        eventActivitySource
	Announcements announcementActivitySource
	Appointments  appointmentActivitySource
	Messages      messageActivitySource
	Users         activityUserSource
	Store         notificationStore
	Cache         *CacheService
	Metrics       *MetricsService
	Validator     *validator.Validate
	Logger        *zap.Logger
	Config        NotificationServiceConfig
}

// NewNotificationService constructs a NotificationService with sane defaults.
func NewNotificationService(params NotificationServiceParams) *NotificationService {
	cfg := params.Config
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 30
	}
	if cfg.CounselorCacheTTL <= 0 {
		cfg.CounselorCacheTTL = 5 * time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	return &NotificationService{
		events:        params.Events,
		announcements: params.Announcements,
		appointments:  params.Appointments,
		messages:      params.Messages,
		users:         params.Users,
		store:         params.Store,
		cache:         params.Cache,
		metrics:       params.Metrics,
		validator:     validate,
		logger:        logger,
		now:           time.Now,
		cfg:           cfg,
	}
}

// UnreadCount returns how many activity items are new for the user since
// their last recorded activity. Any backend failure yields 0.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) int {
	count, err := s.unreadCount(ctx, userID)
	if err != nil {
		s.logger.Warn("activity count degraded", zap.String("user_id", userID), zap.Error(err))
		s.metrics.RecordFeedDegradation()
		return 0
	}
	return count
}

// Recent returns the merged, time-descending activity feed for the user.
// When since is nil the user's activity cursor (or the lookback fallback)
// is used. Any backend failure yields an empty list.
func (s *NotificationService) Recent(ctx context.Context, userID string, since *time.Time) []models.FeedEntry {
	entries, err := s.recent(ctx, userID, since)
	if err != nil {
		s.logger.Warn("activity feed degraded", zap.String("user_id", userID), zap.Error(err))
		s.metrics.RecordFeedDegradation()
		return []models.FeedEntry{}
	}
	return entries
}

// MarkAsRead flips the read flag on a persisted notification owned by the
// user. It reports whether a row was updated.
func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID, userID string) (bool, error) {
	if notificationID == "" || userID == "" {
		return false, appErrors.Clone(appErrors.ErrValidation, "notification id and user id are required")
	}
	return s.store.MarkRead(ctx, notificationID, userID)
}

// Create persists a first-class notification row and returns its identifier.
func (s *NotificationService) Create(ctx context.Context, req models.CreateNotificationRequest) (string, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid notification payload")
	}
	notification := &models.Notification{
		UserID:    req.UserID,
		Type:      req.Type,
		Title:     req.Title,
		Message:   req.Message,
		CreatedAt: s.now().UTC(),
	}
	if req.RelatedID != "" {
		notification.RelatedID = &req.RelatedID
	}
	return s.store.Create(ctx, notification)
}

// Persisted lists the user's stored notification rows, newest first.
func (s *NotificationService) Persisted(ctx context.Context, userID string) ([]models.Notification, error) {
	return s.store.ListByUser(ctx, userID, s.cfg.FeedLimit)
}

func (s *NotificationService) unreadCount(ctx context.Context, userID string) (int, error) {
	cursor, err := s.resolveCursor(ctx, userID, nil)
	if err != nil {
		return 0, err
	}

	total := 0

	count, err := s.events.CountCreatedAfter(ctx, cursor)
	if err != nil {
		return 0, fmt.Errorf("count new events: %w", err)
	}
	total += count

	count, err = s.announcements.CountCreatedAfter(ctx, cursor)
	if err != nil {
		return 0, fmt.Errorf("count new announcements: %w", err)
	}
	total += count

	count, err = s.appointments.CountUpdatedAfter(ctx, userID, cursor)
	if err != nil {
		return 0, fmt.Errorf("count appointment updates: %w", err)
	}
	total += count

	counselors, err := s.counselorIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolve counselors: %w", err)
	}
	if len(counselors) > 0 {
		count, err = s.messages.CountCounselorTrafficAfter(ctx, userID, counselors, cursor)
		if err != nil {
			return 0, fmt.Errorf("count counselor messages: %w", err)
		}
		total += count
	}

	return total, nil
}

func (s *NotificationService) recent(ctx context.Context, userID string, since *time.Time) ([]models.FeedEntry, error) {
	cursor, err := s.resolveCursor(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	entries := []models.FeedEntry{}

	events, err := s.events.ListCreatedAfter(ctx, cursor)
	if err != nil {
		return nil, fmt.Errorf("fetch new events: %w", err)
	}
	for _, event := range events {
		entries = append(entries, formatEventEntry(event))
	}

	announcements, err := s.announcements.ListCreatedAfter(ctx, cursor)
	if err != nil {
		return nil, fmt.Errorf("fetch new announcements: %w", err)
	}
	for _, announcement := range announcements {
		entries = append(entries, formatAnnouncementEntry(announcement))
	}

	appointments, err := s.appointments.ListUpdatedAfter(ctx, userID, cursor)
	if err != nil {
		return nil, fmt.Errorf("fetch appointment updates: %w", err)
	}
	for _, appointment := range appointments {
		entries = append(entries, formatAppointmentEntry(appointment))
	}

	counselors, err := s.counselorIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve counselors: %w", err)
	}
	if len(counselors) > 0 {
		counselorSet := make(map[string]struct{}, len(counselors))
		for _, id := range counselors {
			counselorSet[id] = struct{}{}
		}
		messages, err := s.messages.ListCounselorTrafficAfter(ctx, userID, counselors, cursor)
		if err != nil {
			return nil, fmt.Errorf("fetch counselor messages: %w", err)
		}
		for _, message := range messages {
			entries = append(entries, formatMessageEntry(message, counselorSet))
		}
	}

	// Stable sort keeps the source enumeration order (events, announcements,
	// appointments, messages) for entries sharing a timestamp.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	if s.cfg.FeedLimit > 0 && len(entries) > s.cfg.FeedLimit {
		entries = entries[:s.cfg.FeedLimit]
	}

	return entries, nil
}

// resolveCursor returns the effective "last seen" timestamp: an explicit
// override, the stored cursor, or now minus the configured lookback window.
func (s *NotificationService) resolveCursor(ctx context.Context, userID string, override *time.Time) (time.Time, error) {
	if override != nil {
		return *override, nil
	}
	cursor, err := s.users.LastActivity(ctx, userID)
	if err != nil {
		return time.Time{}, fmt.Errorf("resolve activity cursor: %w", err)
	}
	if cursor == nil {
		return s.now().UTC().AddDate(0, 0, -s.cfg.LookbackDays), nil
	}
	return *cursor, nil
}

func (s *NotificationService) counselorIDs(ctx context.Context) ([]string, error) {
	var cached []string
	if hit, err := s.cache.Get(ctx, counselorCacheKey, &cached); err == nil && hit {
		return cached, nil
	}

	ids, err := s.users.CounselorIDs(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, counselorCacheKey, ids, s.cfg.CounselorCacheTTL); err != nil {
		s.logger.Warn("failed to cache counselor ids", zap.Error(err))
	}

	return ids, nil
}

func formatEventEntry(event models.Event) models.FeedEntry {
	return models.FeedEntry{
		Type:      models.FeedEntryEvent,
		Title:     "New Event: " + event.Title,
		Message:   fmt.Sprintf("%s at %s - %s", event.EventDate.Format("January 2, 2006"), event.EventTime, event.Location),
		CreatedAt: event.CreatedAt,
		RelatedID: event.ID,
	}
}

func formatAnnouncementEntry(announcement models.Announcement) models.FeedEntry {
	return models.FeedEntry{
		Type:      models.FeedEntryAnnouncement,
		Title:     "New Announcement: " + announcement.Title,
		Message:   truncateBody(announcement.Content),
		CreatedAt: announcement.CreatedAt,
		RelatedID: announcement.ID,
	}
}

// formatAppointmentEntry carries the appointment's updated_at timestamp, not
// created_at: the feed surfaces status changes, not the original booking.
func formatAppointmentEntry(appointment models.Appointment) models.FeedEntry {
	var b strings.Builder
	fmt.Fprintf(&b, "Your appointment for %s at %s with %s",
		appointment.PreferredDate.Format("January 2, 2006"),
		appointment.PreferredTime,
		appointment.CounselorPreference,
	)
	if appointment.Purpose != "" {
		b.WriteString(" regarding ")
		b.WriteString(appointment.Purpose)
	}
	b.WriteString(" has been ")
	b.WriteString(strings.ToLower(string(appointment.Status)))
	b.WriteString(".")
	if appointment.Reason != nil && *appointment.Reason != "" {
		b.WriteString(" Reason: ")
		b.WriteString(*appointment.Reason)
	}
	return models.FeedEntry{
		Type:      models.FeedEntryAppointment,
		Title:     "Appointment Update",
		Message:   b.String(),
		CreatedAt: appointment.UpdatedAt,
		RelatedID: appointment.ID,
	}
}

func formatMessageEntry(message models.Message, counselorSet map[string]struct{}) models.FeedEntry {
	title := "Your Message to Counselor"
	if _, fromCounselor := counselorSet[message.SenderID]; fromCounselor {
		title = "New Message from Counselor"
	}
	return models.FeedEntry{
		Type:      models.FeedEntryMessage,
		Title:     title,
		Message:   truncateBody(message.Text),
		CreatedAt: message.CreatedAt,
		RelatedID: message.ID,
	}
}

// truncateBody clips a body to the preview limit, appending an ellipsis only
// when something was actually cut. A body of exactly the limit is unchanged.
func truncateBody(body string) string {
	runes := []rune(body)
	if len(runes) <= feedPreviewLimit {
		return body
	}
	return string(runes[:feedPreviewLimit]) + "..."
}
