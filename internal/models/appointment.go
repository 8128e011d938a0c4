package models

import "time"

// AppointmentStatus tracks the lifecycle of a counseling appointment.
type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "PENDING"
	AppointmentStatusApproved  AppointmentStatus = "APPROVED"
	AppointmentStatusRejected  AppointmentStatus = "REJECTED"
	AppointmentStatusCompleted AppointmentStatus = "COMPLETED"
	AppointmentStatusCancelled AppointmentStatus = "CANCELLED"
)

// Appointment represents a counseling appointment request made by a student.
type Appointment struct {
	ID                  string            `db:"id" json:"id"`
	StudentID           string            `db:"student_id" json:"student_id"`
	CounselorPreference string            `db:"counselor_preference" json:"counselor_preference"`
	PreferredDate       time.Time         `db:"preferred_date" json:"preferred_date"`
	PreferredTime       string            `db:"preferred_time" json:"preferred_time"`
	Purpose             string            `db:"purpose" json:"purpose"`
	Status              AppointmentStatus `db:"status" json:"status"`
	Reason              *string           `db:"reason" json:"reason,omitempty"`
	CreatedAt           time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time         `db:"updated_at" json:"updated_at"`
}

// AppointmentFilter scopes appointment listings.
type AppointmentFilter struct {
	StudentID string
	Status    *AppointmentStatus
	Page      int
	PageSize  int
}

// BookAppointmentRequest is the payload for creating an appointment.
type BookAppointmentRequest struct {
	CounselorPreference string `json:"counselor_preference" validate:"required"`
	PreferredDate       string `json:"preferred_date" validate:"required"`
	PreferredTime       string `json:"preferred_time" validate:"required"`
	Purpose             string `json:"purpose" validate:"required"`
}

// UpdateAppointmentStatusRequest changes an appointment's status.
type UpdateAppointmentStatusRequest struct {
	Status AppointmentStatus `json:"status" validate:"required"`
	Reason string            `json:"reason"`
}
