package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service is the schedule store's front door: window and exception
// management plus the availability projection built on the resolver.
type Service struct {
	repo      Repository
	occupancy OccupancySource
}

func NewService(repo Repository, occupancy OccupancySource) *Service {
	return &Service{
		repo:      repo,
		occupancy: occupancy,
	}
}

// AddWindow validates the new window against the doctor's existing active
// windows for the same weekday before persisting it. Overlaps are a
// configuration error and are never silently merged.
func (s *Service) AddWindow(ctx context.Context, w RecurringWindow) (*RecurringWindow, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.ListActiveWindows(ctx, w.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("list active windows: %w", err)
	}

	candidate := minuteRange{start: w.StartMinute, end: w.EndMinute}
	for _, other := range existing {
		if other.Weekday != w.Weekday {
			continue
		}
		if candidate.overlaps(minuteRange{start: other.StartMinute, end: other.EndMinute}) {
			return nil, fmt.Errorf("%w: window overlaps existing %s window", ErrScheduleConflict, other.Weekday)
		}
	}

	return s.repo.CreateWindow(ctx, w)
}

func (s *Service) DeactivateWindow(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeactivateWindow(ctx, id)
}

func (s *Service) ListWindows(ctx context.Context, doctorID uuid.UUID) ([]RecurringWindow, error) {
	return s.repo.ListWindows(ctx, doctorID)
}

func (s *Service) AddException(ctx context.Context, e ScheduleException) (*ScheduleException, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	return s.repo.CreateException(ctx, e)
}

func (s *Service) ListExceptions(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]ScheduleException, error) {
	return s.repo.ListExceptions(ctx, doctorID, from, to)
}

// AvailableSlots resolves the doctor's bookable slot start times over the
// inclusive date range [from, to]. Slots claimed by live ledger entries
// are subtracted; a released or expired hold re-opens its slot on the
// next call.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time, slotDur time.Duration) ([]time.Time, error) {
	windows, err := s.repo.ListActiveWindows(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list active windows: %w", err)
	}

	exceptions, err := s.repo.ListExceptions(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}

	starts, err := s.occupancy.OccupiedStarts(ctx, doctorID, DateOf(from), DateOf(to).AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("load occupied starts: %w", err)
	}

	occupied := make(map[int64]struct{}, len(starts))
	for _, t := range starts {
		occupied[t.Unix()] = struct{}{}
	}

	return Resolve(windows, exceptions, occupied, from, to, slotDur)
}

// SlotBookable reports whether slotStart is a valid candidate for the
// doctor, ignoring current occupancy. Used by the arbiter to reject
// reservations outside the doctor's schedule before touching the ledger.
func (s *Service) SlotBookable(ctx context.Context, doctorID uuid.UUID, slotStart time.Time, slotDur time.Duration) (bool, error) {
	date := DateOf(slotStart)

	windows, err := s.repo.ListActiveWindows(ctx, doctorID)
	if err != nil {
		return false, fmt.Errorf("list active windows: %w", err)
	}

	exceptions, err := s.repo.ListExceptions(ctx, doctorID, date, date)
	if err != nil {
		return false, fmt.Errorf("list exceptions: %w", err)
	}

	slots, err := Resolve(windows, exceptions, nil, date, date, slotDur)
	if err != nil {
		return false, err
	}

	for _, t := range slots {
		if t.Equal(slotStart) {
			return true, nil
		}
	}
	return false, nil
}
