package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/counselign/counselign-api/internal/models"
)

func newEventMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEventRepositoryListCreatedAfter(t *testing.T) {
	db, mock, cleanup := newEventMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "title", "event_date", "event_time", "location", "created_by", "created_at", "updated_at"}).
		AddRow("evt-1", "Career Orientation", since.AddDate(0, 0, 19), "9:00 AM", "Auditorium", "admin-1", since.Add(time.Hour), since.Add(time.Hour))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, event_date, event_time, location, created_by, created_at, updated_at FROM events WHERE created_at > $1 ORDER BY created_at DESC")).
		WithArgs(since).
		WillReturnRows(rows)

	events, err := repo.ListCreatedAfter(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Career Orientation", events[0].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryCountCreatedAfter(t *testing.T) {
	db, mock, cleanup := newEventMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM events WHERE created_at > $1")).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountCreatedAfter(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryList(t *testing.T) {
	db, mock, cleanup := newEventMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "title", "event_date", "event_time", "location", "created_by", "created_at", "updated_at"}).
		AddRow("evt-1", "Orientation", now, "9:00 AM", "Auditorium", "admin-1", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM events WHERE 1=1 ORDER BY event_date ASC LIMIT 20 OFFSET 0")).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM events WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	events, total, err := repo.List(context.Background(), models.EventFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newEventMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	mock.ExpectExec("INSERT INTO events").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	event := &models.Event{Title: "Orientation", EventDate: time.Now(), EventTime: "9:00 AM", Location: "Auditorium", CreatedBy: "admin-1"}
	require.NoError(t, repo.Create(context.Background(), event))
	assert.NotEmpty(t, event.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
