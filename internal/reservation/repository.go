package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all ledger interactions needed by the arbiter and
// the sweeper. Implementations must back CreateReserved with a
// commit-time uniqueness guard on (doctor, slot start) over live
// statuses, and on (elder, session date) for monthly sessions: the
// per-key lock alone is not sufficient once the service is scaled out.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListByRequester(ctx context.Context, requesterID uuid.UUID, limit, offset int) ([]Appointment, error)

	// CreateReserved inserts a new entry with status=reserved and live
	// hold fields. A uniqueness violation surfaces as ErrSlotTaken or
	// ErrSessionTaken depending on which guard fired.
	CreateReserved(ctx context.Context, a Appointment) (*Appointment, error)

	// UpdateStatus is a compare-and-swap: the write lands only if the row
	// is still in the from status. No rows matched -> ErrNotFound; the
	// caller distinguishes stale holds from missing rows.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// ConsumeHold moves reserved -> pending, marks payment completed, and
	// clears hold fields, guarded on blocked_until still being in the
	// future. Zero rows means the hold was lost.
	ConsumeHold(ctx context.Context, id uuid.UUID, now time.Time) (*Appointment, error)

	// ReleaseHold cancels any live entry and clears hold fields.
	ReleaseHold(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ExpireHold cancels one reserved entry whose blocked_until has
	// passed, marking payment expired. Zero rows is a no-op: the hold was
	// already consumed or cleared.
	ExpireHold(ctx context.Context, id uuid.UUID, now time.Time) (*Appointment, error)

	// FindExpiredHolds lists reserved entries whose hold has lapsed.
	FindExpiredHolds(ctx context.Context, now time.Time) ([]Appointment, error)

	// SetMeetingURL stores the provisioned meeting link for an approved
	// appointment.
	SetMeetingURL(ctx context.Context, id uuid.UUID, url string) error

	// OccupiedStarts feeds the slot resolver's subtraction step.
	OccupiedStarts(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
