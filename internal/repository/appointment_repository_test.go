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

func newAppointmentMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func appointmentRows(id, studentID string, status models.AppointmentStatus, updatedAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "student_id", "counselor_preference", "preferred_date", "preferred_time", "purpose", "status", "reason", "created_at", "updated_at"}).
		AddRow(id, studentID, "Ms. Reyes", updatedAt.AddDate(0, 0, 7), "10:00 AM", "career advice", status, nil, updatedAt.Add(-time.Hour), updatedAt)
}

func TestAppointmentRepositoryListUpdatedAfter(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM appointments WHERE student_id = $1 AND updated_at > $2 ORDER BY updated_at DESC")).
		WithArgs("student-1", since).
		WillReturnRows(appointmentRows("apt-1", "student-1", models.AppointmentStatusApproved, since.Add(time.Hour)))

	appointments, err := repo.ListUpdatedAfter(context.Background(), "student-1", since)
	require.NoError(t, err)
	require.Len(t, appointments, 1)
	assert.Equal(t, models.AppointmentStatusApproved, appointments[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryCountUpdatedAfter(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM appointments WHERE student_id = $1 AND updated_at > $2")).
		WithArgs("student-1", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	count, err := repo.CountUpdatedAfter(context.Background(), "student-1", since)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryListApprovedBetween(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta("FROM appointments WHERE status = $1 AND preferred_date >= $2 AND preferred_date < $3 ORDER BY preferred_date ASC")).
		WithArgs(models.AppointmentStatusApproved, from, to).
		WillReturnRows(appointmentRows("apt-1", "student-1", models.AppointmentStatusApproved, from))

	appointments, err := repo.ListApprovedBetween(context.Background(), from, to)
	require.NoError(t, err)
	assert.Len(t, appointments, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryListFiltersByStudentAndStatus(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	status := models.AppointmentStatusPending
	mock.ExpectQuery(regexp.QuoteMeta("FROM appointments WHERE 1=1 AND student_id = $1 AND status = $2 ORDER BY preferred_date DESC, created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("student-1", status).
		WillReturnRows(appointmentRows("apt-1", "student-1", status, time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM appointments WHERE 1=1 AND student_id = $1 AND status = $2")).
		WithArgs("student-1", status).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	appointments, total, err := repo.List(context.Background(), models.AppointmentFilter{StudentID: "student-1", Status: &status})
	require.NoError(t, err)
	assert.Len(t, appointments, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	reason := "schedule conflict"
	updatedAt := time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE appointments SET status = $2, reason = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("apt-1", models.AppointmentStatusRejected, sqlmock.AnyArg(), updatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "apt-1", models.AppointmentStatusRejected, &reason, updatedAt)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newAppointmentMock(t)
	defer cleanup()
	repo := NewAppointmentRepository(db)

	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	appointment := &models.Appointment{
		StudentID:           "student-1",
		CounselorPreference: "Ms. Reyes",
		PreferredDate:       time.Now(),
		PreferredTime:       "10:00 AM",
		Purpose:             "career advice",
		Status:              models.AppointmentStatusPending,
	}
	require.NoError(t, repo.Create(context.Background(), appointment))
	assert.NotEmpty(t, appointment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
