package reservation

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusReserved  Status = "reserved"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentExpired   PaymentStatus = "expired"
)

// Kind distinguishes ad-hoc appointments from recurring monthly sessions.
// Both share the ledger and the doctor/slot uniqueness guard; monthly
// sessions additionally carry a per-(elder, session date) guard.
type Kind string

const (
	KindAdhoc   Kind = "adhoc"
	KindMonthly Kind = "monthly"
)

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrSlotTaken         = errors.New("slot already reserved")
	ErrSessionTaken      = errors.New("elder already has a session on that date")
	ErrSlotUnavailable   = errors.New("slot is outside the doctor's availability")
	ErrHoldExpired       = errors.New("reservation hold has expired")
	ErrStaleHold         = errors.New("hold was claimed or cleared by a concurrent writer")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrElderRequired     = errors.New("monthly session requires an elder")
)

// Appointment is a reservation ledger entry. Hold fields (ReservedAt,
// ReservedBy, BlockedUntil) are set while a hold is live and cleared when
// it is consumed, released, or reaped.
type Appointment struct {
	ID              uuid.UUID
	RequesterID     uuid.UUID
	ElderID         *uuid.UUID
	DoctorID        uuid.UUID
	StartTime       time.Time
	DurationMinutes int
	Status          Status
	Kind            Kind
	SessionDate     *time.Time // midnight UTC, set for monthly sessions
	ReservedAt      *time.Time
	ReservedBy      *uuid.UUID
	BlockedUntil    *time.Time
	PaymentStatus   PaymentStatus
	ConsultationFee decimal.Decimal
	MeetingURL      *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Live reports whether the entry still claims its slot. Terminal and
// rejected entries release the slot for re-resolution.
func (s Status) Live() bool {
	switch s {
	case StatusPending, StatusApproved, StatusReserved:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// EventLog is an audit record of a ledger mutation.
type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
