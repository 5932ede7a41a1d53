package api

import (
	"time"

	"github.com/google/uuid"
)

type CreateWindowRequest struct {
	Weekday     int `json:"weekday" validate:"min=0,max=6"`
	StartMinute int `json:"start_minute" validate:"min=0,max=1439"`
	EndMinute   int `json:"end_minute" validate:"min=1,max=1440,gtfield=StartMinute"`
}

type WindowResponse struct {
	ID          uuid.UUID `json:"id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	Weekday     int       `json:"weekday"`
	StartMinute int       `json:"start_minute"`
	EndMinute   int       `json:"end_minute"`
	Active      bool      `json:"active"`
}

type CreateExceptionRequest struct {
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	StartMinute *int   `json:"start_minute,omitempty" validate:"omitempty,min=0,max=1439"`
	EndMinute   *int   `json:"end_minute,omitempty" validate:"omitempty,min=1,max=1440"`
	Unavailable bool   `json:"unavailable"`
	Reason      string `json:"reason" validate:"max=500"`
}

type ExceptionResponse struct {
	ID          uuid.UUID `json:"id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	Date        string    `json:"date"`
	StartMinute *int      `json:"start_minute,omitempty"`
	EndMinute   *int      `json:"end_minute,omitempty"`
	Unavailable bool      `json:"unavailable"`
	Reason      string    `json:"reason,omitempty"`
}

type SlotsResponse struct {
	DoctorID uuid.UUID   `json:"doctor_id"`
	Slots    []time.Time `json:"slots"`
}

type ReserveRequest struct {
	DoctorID    string `json:"doctor_id" validate:"required,uuid4"`
	ElderID     string `json:"elder_id,omitempty" validate:"omitempty,uuid4"`
	RequesterID string `json:"requester_id" validate:"required,uuid4"`
	SlotStart   string `json:"slot_start" validate:"required"`
	DurationMin int    `json:"duration_minutes,omitempty" validate:"omitempty,min=5,max=480"`
	Kind        string `json:"kind,omitempty" validate:"omitempty,oneof=adhoc monthly"`
}

type GrantResponse struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	ExpiresAt     time.Time `json:"expires_at"`
	Fee           string    `json:"consultation_fee"`
}

type ReleaseRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type DecisionRequest struct {
	Approve bool `json:"approve"`
}

type OutcomeRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=completed cancelled no_show"`
}

type MeetingURLRequest struct {
	URL string `json:"url" validate:"required,url"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	RequesterID     uuid.UUID  `json:"requester_id"`
	ElderID         *uuid.UUID `json:"elder_id,omitempty"`
	DoctorID        uuid.UUID  `json:"doctor_id"`
	StartTime       time.Time  `json:"start_time"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          string     `json:"status"`
	Kind            string     `json:"kind"`
	SessionDate     *string    `json:"session_date,omitempty"`
	ReservedAt      *time.Time `json:"reserved_at,omitempty"`
	BlockedUntil    *time.Time `json:"blocked_until,omitempty"`
	PaymentStatus   string     `json:"payment_status"`
	ConsultationFee string     `json:"consultation_fee"`
	MeetingURL      *string    `json:"meeting_url,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
