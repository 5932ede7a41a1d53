package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the schedule service.
type Repository interface {
	CreateWindow(ctx context.Context, w RecurringWindow) (*RecurringWindow, error)
	DeactivateWindow(ctx context.Context, id uuid.UUID) error
	ListWindows(ctx context.Context, doctorID uuid.UUID) ([]RecurringWindow, error)
	ListActiveWindows(ctx context.Context, doctorID uuid.UUID) ([]RecurringWindow, error)

	CreateException(ctx context.Context, e ScheduleException) (*ScheduleException, error)
	ListExceptions(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]ScheduleException, error)
}

// OccupancySource reports slot start times already claimed by live
// ledger entries. Implemented by the reservation store.
type OccupancySource interface {
	OccupiedStarts(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error)
}
