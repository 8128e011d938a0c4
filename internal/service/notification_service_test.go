package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/counselign/counselign-api/internal/models"
	appErrors "github.com/counselign/counselign-api/pkg/errors"
)

type stubCacheRepo struct {
	data map[string][]byte
	errs map[string]error
}

func newStubCacheRepo() *stubCacheRepo {
	return &stubCacheRepo{data: map[string][]byte{}, errs: map[string]error{}}
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	if err, ok := s.errs[key]; ok {
		return err
	}
	raw, ok := s.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.data[key] = raw
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			delete(s.data, key)
		}
	}
	return nil
}

type fakeEventSource struct {
	events   []models.Event
	count    int
	listErr  error
	countErr error
	gotSince time.Time
}

func (f *fakeEventSource) ListCreatedAfter(_ context.Context, since time.Time) ([]models.Event, error) {
	f.gotSince = since
	return f.events, f.listErr
}

func (f *fakeEventSource) CountCreatedAfter(_ context.Context, since time.Time) (int, error) {
	f.gotSince = since
	return f.count, f.countErr
}

type fakeAnnouncementSource struct {
	announcements []models.Announcement
	count         int
	listErr       error
	countErr      error
	gotSince      time.Time
}

func (f *fakeAnnouncementSource) ListCreatedAfter(_ context.Context, since time.Time) ([]models.Announcement, error) {
	f.gotSince = since
	return f.announcements, f.listErr
}

func (f *fakeAnnouncementSource) CountCreatedAfter(_ context.Context, since time.Time) (int, error) {
	f.gotSince = since
	return f.count, f.countErr
}

type fakeAppointmentSource struct {
	appointments []models.Appointment
	count        int
	listErr      error
	countErr     error
	gotStudent   string
	gotSince     time.Time
}

func (f *fakeAppointmentSource) ListUpdatedAfter(_ context.Context, studentID string, since time.Time) ([]models.Appointment, error) {
	f.gotStudent = studentID
	f.gotSince = since
	return f.appointments, f.listErr
}

func (f *fakeAppointmentSource) CountUpdatedAfter(_ context.Context, studentID string, since time.Time) (int, error) {
	f.gotStudent = studentID
	f.gotSince = since
	return f.count, f.countErr
}

type fakeMessageSource struct {
	messages      []models.Message
	count         int
	listErr       error
	countErr      error
	gotCounselors []string
	gotSince      time.Time
	listCalls     int
	countCalls    int
}

func (f *fakeMessageSource) ListCounselorTrafficAfter(_ context.Context, _ string, counselorIDs []string, since time.Time) ([]models.Message, error) {
	f.listCalls++
	f.gotCounselors = counselorIDs
	f.gotSince = since
	return f.messages, f.listErr
}

func (f *fakeMessageSource) CountCounselorTrafficAfter(_ context.Context, _ string, counselorIDs []string, since time.Time) (int, error) {
	f.countCalls++
	f.gotCounselors = counselorIDs
	f.gotSince = since
	return f.count, f.countErr
}

type fakeActivityUsers struct {
	lastActivity   *time.Time
	lastErr        error
	lastCalls      int
	counselors     []string
	counselorsErr  error
	counselorCalls int
}

func (f *fakeActivityUsers) LastActivity(context.Context, string) (*time.Time, error) {
	f.lastCalls++
	return f.lastActivity, f.lastErr
}

func (f *fakeActivityUsers) CounselorIDs(context.Context) ([]string, error) {
	f.counselorCalls++
	return f.counselors, f.counselorsErr
}

type fakeNotificationStore struct {
	created    *models.Notification
	createID   string
	createErr  error
	markedID   string
	markedUser string
	markResult bool
	markErr    error
	listed     []models.Notification
	listErr    error
}

func (f *fakeNotificationStore) Create(_ context.Context, notification *models.Notification) (string, error) {
	f.created = notification
	return f.createID, f.createErr
}

func (f *fakeNotificationStore) MarkRead(_ context.Context, id, userID string) (bool, error) {
	f.markedID = id
	f.markedUser = userID
	return f.markResult, f.markErr
}

func (f *fakeNotificationStore) ListByUser(context.Context, string, int) ([]models.Notification, error) {
	return f.listed, f.listErr
}

type notificationFixture struct {
	events        *fakeEventSource
	announcements *fakeAnnouncementSource
	appointments  *fakeAppointmentSource
	messages      *fakeMessageSource
	users         *fakeActivityUsers
	store         *fakeNotificationStore
	cacheRepo     *stubCacheRepo
	svc           *NotificationService
	now           time.Time
}

func newNotificationFixture(t *testing.T, cfg NotificationServiceConfig) *notificationFixture {
	t.Helper()
	f := &notificationFixture{
		events:        &fakeEventSource{},
		announcements: &fakeAnnouncementSource{},
		appointments:  &fakeAppointmentSource{},
		messages:      &fakeMessageSource{},
		users:         &fakeActivityUsers{counselors: []string{"counselor-1"}},
		store:         &fakeNotificationStore{},
		cacheRepo:     newStubCacheRepo(),
		now:           time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC),
	}
	cacheSvc := NewCacheService(f.cacheRepo, nil, time.Minute, zap.NewNop(), true)
	f.svc = NewNotificationService(NotificationServiceParams{
		Events:        f.events,
		Announcements: f.announcements,
		Appointments:  f.appointments,
		Messages:      f.messages,
		Users:         f.users,
		Store:         f.store,
		Cache:         cacheSvc,
		Logger:        zap.NewNop(),
		Config:        cfg,
	})
	f.svc.now = func() time.Time { return f.now }
	return f
}

func TestNotificationServiceRecent_MergesSortedDescending(t *testing.T) {
	f := newNotificationFixture(t, NotificationServiceConfig{})
	cursor := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.users.lastActivity = &cursor

	f.events.events = []models.Event{{
		ID:        "evt-1",
		Title:     "Career Orientation",
		EventDate: time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC),
		EventTime: "9:00 AM",
		Location:  "Auditorium",
		CreatedAt: time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC),
	}}
	f.announcements.announcements = []models.Announcement{{
		ID:        "ann-1",
		Title:     "Enrollment Week",
		Content:   "Enrollment opens Monday.",
		CreatedAt: time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC),
	}}
	f.appointments.appointments = []models.Appointment{{
		ID:                  "apt-1",
		StudentID:           "user-1",
		CounselorPreference: "Ms. Reyes",
		PreferredDate:       time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		PreferredTime:       "10:00 AM",
		Purpose:             "career advice",
		Status:              models.AppointmentStatusApproved,
		UpdatedAt:           time.Date(2024, 1, 4, 8, 0, 0, 0, time.UTC),
	}}
	f.messages.messages = []models.Message{{
		ID:        "msg-1",
		SenderID:  "counselor-1",
		Text:      "See you Monday.",
		CreatedAt: time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC),
	}}

	entries := f.svc.Recent(context.Background(), "user-1", nil)
	require.Len(t, entries, 4)

	assert.Equal(t, models.FeedEntryMessage, entries[0].Type)
	assert.Equal(t, models.FeedEntryAppointment, entries[1].Type)
	assert.Equal(t, models.FeedEntryAnnouncement, entries[2].Type)
	assert.Equal(t, models.FeedEntryEvent, entries[3].Type)

	assert.Equal(t, "New Event: Career Orientation", entries[3].Title)
	assert.Equal(t, "January 20, 2024 at 9:00 AM - Auditorium", entries[3].Message)
	assert.Equal(t, "New Announcement: Enrollment Week", entries[2].Title)
	assert.Equal(t, "Enrollment opens Monday.", entries[2].Message)
	assert.Equal(t, "Appointment Update", entries[1].Title)
	assert.Equal(t, "Your appointment for January 10, 2024 at 10:00 AM with Ms. Reyes regarding career advice has been approved.", entries[1].Message)
	assert.Equal(t, "New Message from Counselor", entries[0].Title)

	// Every source was queried with the stored cursor, untouched.
	assert.True(t, f.events.gotSince.Equal(cursor))
	assert.True(t, f.announcements.gotSince.Equal(cursor))
	assert.True(t, f.appointments.gotSince.Equal(cursor))
	assert.True(t, f.messages.gotSince.Equal(cursor))
	assert.Equal(t, "user-1", f.appointments.gotStudent)
}

func TestNotificationServiceRecent_LookbackFallback(t *testing.T) {
	f := newNotificationFixture(t, NotificationServiceConfig{LookbackDays: 30})
	f.users.lastActivity = nil

	f.svc.Recent(context.Background(), "user-1", nil)

	want := f.now.UTC().AddDate(0, 0, -30)
	assert.True(t, f.events.gotSince.Equal(want), "expected fallback cursor %v, got %v", want, f.events.gotSince)
	assert.True(t, f.announcements.gotSince.Equal(want))
}

func TestNotificationServiceRecent_ExplicitSinceSkipsCursorLookup(t *testing.T) {
	f := newNotificationFixture(t, NotificationServiceConfig{})
	since := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	f.svc.Recent(context.Background(), "user-1", &since)

	assert.Zero(t, f.users.lastCalls)
	assert.True(t, f.events.gotSince.Equal(since))
}

func TestNotificationServiceRecent_NoCounselorsSkipsMessages(t *testing.T) {
	f := newNotificationFixture(t, NotificationServiceConfig{})
	f.users.counselors = nil
	f.messages.messages = []models.Message{{ID: "msg-1", CreatedAt: f.now}}

	entries := f.svc.Recent(context.Background(), "user-1", nil)

	assert.Empty(t, entries)
	assert.Zero(t, f.messages.listCalls)
}

func TestNotificationServiceRecent_FailsOpenToEmpty(t *testing.T) {
	f := newNotificationFixture(t, NotificationServiceConfig{})
	f.events.events = []models.Event{{ID: "evt-1", CreatedAt: f.now}}
	f.announcements.listErr = errors.New("connection refused")

	entries := f.svc.Recent(context.Background(), "user-1", nil)

	require.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestNotificationServiceRecent_StableTieBreak(t *testing.T) {
	f := newNotificationFixture(t, NotificationServiceConfig{})
	at := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	f.events.events = []models.Event{{ID: "evt-1", Title: "Tie", CreatedAt: at}}
	f.announcements.announcements = []models.Announcement{{ID: "ann-1", Title: "Tie", CreatedAt: at}}

	entries := f.svc.Recent(context.Background(), "user-1", nil)

	require.Len(t, entries, 2)
	assert.Equal(t, models.FeedEntryEvent, entries[0].Type)
	assert.Equal(t, models.FeedEntryAnnouncement, entries[1].Type)
}

func TestNotificationServiceRecent_FeedLimitCapsEntries(t *testing.T) {
	f := newNotificationFixture(t, NotificationServiceConfig{FeedLimit: 2})
	f.events.events = []models.Event{
		{ID: "evt-1", CreatedAt: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)},
		{ID: "evt-2", CreatedAt: time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)},
		{ID: "evt-3", CreatedAt: time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)},
	}

	entries := f.svc.Recent(context.Background(), "user-1", nil)

	require.Len(t, entries, 2)
	assert.Equal(t, "evt-3", entries[0].RelatedID)
	assert.Equal(t, "evt-2", entries[1].RelatedID)
}

func TestNotificationServiceRecent_RepeatedCallsAreIdempotent(t *testing.T) {
	f := newNotificationFixture(t, NotificationServiceConfig{})
	cursor := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.users.lastActivity = &cursor
	f.events.events = []models.Event{{ID: "evt-1", Title: "Same", CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}}

	first := f.svc.Recent(context.Background(), "user-1", nil)
	second := f.svc.Recent(context.Background(), "user-1", nil)

	assert.Equal(t, first, second)
}

func TestNotificationServiceUnreadCount_SumsAllSources(t *testing.T) {
	f := newNotificationFixture(t, NotificationServiceConfig{})
	f.events.count = 2
	f.announcements.count = 1
	f.appointments.count = 3
	f.messages.count = 4

	assert.Equal(t, 10, f.svc.UnreadCount(context.Background(), "user-1"))
}

func TestNotificationServiceUnreadCount_MatchesFeedLength(t *testing.T) {
	f := newNotificationFixture(t, NotificationServiceConfig{})
	f.events.events = []models.Event{{ID: "evt-1", CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}}
	f.events.count = 1
	f.announcements.announcements = []models.Announcement{{ID: "ann-1", CreatedAt: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)}}
	f.announcements.count = 1
	f.appointments.count = 0
	f.messages.count = 0

	count := f.svc.UnreadCount(context.Background(), "user-1")
	entries := f.svc.Recent(context.Background(), "user-1", nil)

	assert.Equal(t, count, len(entries))
}

func TestNotificationServiceUnreadCount_FailsOpenToZero(t *testing.T) {
	f := newNotificationFixture(t, NotificationServiceConfig{})
	f.events.count = 5
	f.appointments.countErr = errors.New("relation does not exist")

	assert.Zero(t, f.svc.UnreadCount(context.Background(), "user-1"))
}

func TestNotificationServiceUnreadCount_NoCounselorsSkipsMessageCount(t *testing.T) {
	f := newNotificationFixture(t, NotificationServiceConfig{})
	f.users.counselors = []string{}
	f.events.count = 1

	assert.Equal(t, 1, f.svc.UnreadCount(context.Background(), "user-1"))
	assert.Zero(t, f.messages.countCalls)
}

func TestNotificationServiceCounselorIDs_CachedBetweenCalls(t *testing.T) {
	f := newNotificationFixture(t, NotificationServiceConfig{})
	f.users.counselors = []string{"counselor-1", "counselor-2"}

	f.svc.UnreadCount(context.Background(), "user-1")
	f.svc.UnreadCount(context.Background(), "user-1")

	assert.Equal(t, 1, f.users.counselorCalls)
	assert.ElementsMatch(t, []string{"counselor-1", "counselor-2"}, f.messages.gotCounselors)
}

func TestNotificationServiceMarkAsRead(t *testing.T) {
	f := newNotificationFixture(t, NotificationServiceConfig{})
	f.store.markResult = true

	updated, err := f.svc.MarkAsRead(context.Background(), "notif-1", "user-1")
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, "notif-1", f.store.markedID)
	assert.Equal(t, "user-1", f.store.markedUser)

	_, err = f.svc.MarkAsRead(context.Background(), "", "user-1")
	assert.Error(t, err)
}

func TestNotificationServiceCreate(t *testing.T) {
	f := newNotificationFixture(t, NotificationServiceConfig{})
	f.store.createID = "notif-9"

	id, err := f.svc.Create(context.Background(), models.CreateNotificationRequest{
		UserID:    "user-1",
		Type:      models.FeedEntryAppointment,
		Title:     "Appointment Reminder",
		Message:   "Coming up tomorrow.",
		RelatedID: "apt-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "notif-9", id)
	require.NotNil(t, f.store.created)
	assert.Equal(t, "user-1", f.store.created.UserID)
	require.NotNil(t, f.store.created.RelatedID)
	assert.Equal(t, "apt-1", *f.store.created.RelatedID)
	assert.True(t, f.store.created.CreatedAt.Equal(f.now))

	_, err = f.svc.Create(context.Background(), models.CreateNotificationRequest{UserID: "user-1"})
	assert.Error(t, err)
}

func TestFormatMessageEntryDirection(t *testing.T) {
	counselors := map[string]struct{}{"counselor-1": {}}

	incoming := formatMessageEntry(models.Message{SenderID: "counselor-1", Text: "hello"}, counselors)
	assert.Equal(t, "New Message from Counselor", incoming.Title)

	outgoing := formatMessageEntry(models.Message{SenderID: "user-1", ReceiverID: "counselor-1", Text: "hi"}, counselors)
	assert.Equal(t, "Your Message to Counselor", outgoing.Title)
}

func TestFormatAppointmentEntry_OptionalFields(t *testing.T) {
	reason := "counselor unavailable"
	entry := formatAppointmentEntry(models.Appointment{
		ID:                  "apt-2",
		CounselorPreference: "Any counselor",
		PreferredDate:       time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		PreferredTime:       "2:30 PM",
		Status:              models.AppointmentStatusRejected,
		Reason:              &reason,
		UpdatedAt:           time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, "Your appointment for March 5, 2024 at 2:30 PM with Any counselor has been rejected. Reason: counselor unavailable", entry.Message)
	assert.True(t, entry.CreatedAt.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestTruncateBody(t *testing.T) {
	exactly := strings.Repeat("a", 100)
	assert.Equal(t, exactly, truncateBody(exactly))

	over := strings.Repeat("a", 101)
	got := truncateBody(over)
	assert.Equal(t, strings.Repeat("a", 100)+"...", got)

	multibyte := strings.Repeat("ñ", 150)
	got = truncateBody(multibyte)
	assert.Equal(t, strings.Repeat("ñ", 100)+"...", got)

	assert.Equal(t, "short", truncateBody("short"))
}
