package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/counselign/counselign-api/internal/models"
)

// AppointmentRepository provides persistence for counseling appointments.
type AppointmentRepository struct {
	db *sqlx.DB
}

// NewAppointmentRepository creates the repository.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

const appointmentColumns = `id, student_id, counselor_preference, preferred_date, preferred_time, purpose, status, reason, created_at, updated_at`

// List returns appointments matching the filter with a total count.
func (r *AppointmentRepository) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	baseQuery := `FROM appointments WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s %s ORDER BY preferred_date DESC, created_at DESC LIMIT %d OFFSET %d`, appointmentColumns, baseQuery, size, offset)
	var appointments []models.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + baseQuery
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}
	return appointments, total, nil
}

// ListUpdatedAfter returns the student's appointments touched strictly after the cursor.
func (r *AppointmentRepository) ListUpdatedAfter(ctx context.Context, studentID string, since time.Time) ([]models.Appointment, error) {
	query := fmt.Sprintf(`SELECT %s FROM appointments WHERE student_id = $1 AND updated_at > $2 ORDER BY updated_at DESC`, appointmentColumns)
	var appointments []models.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, studentID, since); err != nil {
		return nil, fmt.Errorf("list appointments after cursor: %w", err)
	}
	return appointments, nil
}

// CountUpdatedAfter counts the student's appointments touched strictly after the cursor.
func (r *AppointmentRepository) CountUpdatedAfter(ctx context.Context, studentID string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM appointments WHERE student_id = $1 AND updated_at > $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentID, since); err != nil {
		return 0, fmt.Errorf("count appointments after cursor: %w", err)
	}
	return count, nil
}

// ListApprovedBetween returns approved appointments whose preferred date falls
// inside the window. Used by the reminder worker.
func (r *AppointmentRepository) ListApprovedBetween(ctx context.Context, from, to time.Time) ([]models.Appointment, error) {
	query := fmt.Sprintf(`SELECT %s FROM appointments WHERE status = $1 AND preferred_date >= $2 AND preferred_date < $3 ORDER BY preferred_date ASC`, appointmentColumns)
	var appointments []models.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, models.AppointmentStatusApproved, from, to); err != nil {
		return nil, fmt.Errorf("list approved appointments in window: %w", err)
	}
	return appointments, nil
}

// GetByID returns an appointment by identifier.
func (r *AppointmentRepository) GetByID(ctx context.Context, id string) (*models.Appointment, error) {
	query := fmt.Sprintf(`SELECT %s FROM appointments WHERE id = $1`, appointmentColumns)
	var appointment models.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find appointment by id: %w", err)
	}
	return &appointment, nil
}

// Create inserts a new appointment request.
func (r *AppointmentRepository) Create(ctx context.Context, appointment *models.Appointment) error {
	if appointment.ID == "" {
		appointment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if appointment.CreatedAt.IsZero() {
		appointment.CreatedAt = now
	}
	appointment.UpdatedAt = now
	const query = `INSERT INTO appointments (id, student_id, counselor_preference, preferred_date, preferred_time, purpose, status, reason, created_at, updated_at)
VALUES (:id, :student_id, :counselor_preference, :preferred_date, :preferred_time, :purpose, :status, :reason, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, appointment); err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

// UpdateStatus transitions an appointment and bumps updated_at, which is what
// surfaces the change in the activity feed.
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id string, status models.AppointmentStatus, reason *string, updatedAt time.Time) error {
	const query = `UPDATE appointments SET status = $2, reason = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, reason, updatedAt); err != nil {
		return fmt.Errorf("update appointment status: %w", err)
	}
	return nil
}
