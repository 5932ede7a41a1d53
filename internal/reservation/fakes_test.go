package reservation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	redisclient "github.com/carebridge/reservation-engine/internal/redis"
)

// memRepo is an in-memory ledger that enforces the same live-slot
// uniqueness guards as the Postgres partial indexes, so arbiter and
// sweeper behavior can be exercised without a database.
type memRepo struct {
	mu     sync.Mutex
	rows   map[uuid.UUID]*Appointment
	events []EventLog
}

func newMemRepo() *memRepo {
	return &memRepo{rows: make(map[uuid.UUID]*Appointment)}
}

func (r *memRepo) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) ListByRequester(ctx context.Context, requesterID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.rows {
		if a.RequesterID == requesterID {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (r *memRepo) CreateReserved(ctx context.Context, a Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.rows {
		if !existing.Status.Live() {
			continue
		}
		if existing.DoctorID == a.DoctorID && existing.StartTime.Equal(a.StartTime) {
			return nil, ErrSlotTaken
		}
		if a.Kind == KindMonthly && existing.Kind == KindMonthly &&
			existing.ElderID != nil && a.ElderID != nil && *existing.ElderID == *a.ElderID &&
			existing.SessionDate != nil && a.SessionDate != nil && existing.SessionDate.Equal(*a.SessionDate) {
			return nil, ErrSessionTaken
		}
	}

	a.ID = uuid.New()
	a.Status = StatusReserved
	a.PaymentStatus = PaymentPending
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt

	cp := a
	r.rows[a.ID] = &cp
	out := a
	return &out, nil
}

func (r *memRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.rows[id]
	if !ok || a.Status != from {
		return nil, ErrNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *memRepo) ConsumeHold(ctx context.Context, id uuid.UUID, now time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.rows[id]
	if !ok || a.Status != StatusReserved || a.BlockedUntil == nil || !a.BlockedUntil.After(now) {
		return nil, ErrNotFound
	}
	a.Status = StatusPending
	a.PaymentStatus = PaymentCompleted
	a.ReservedAt = nil
	a.ReservedBy = nil
	a.BlockedUntil = nil
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *memRepo) ReleaseHold(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.rows[id]
	if !ok || !a.Status.Live() {
		return nil, ErrNotFound
	}
	a.Status = StatusCancelled
	a.ReservedAt = nil
	a.ReservedBy = nil
	a.BlockedUntil = nil
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *memRepo) ExpireHold(ctx context.Context, id uuid.UUID, now time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.rows[id]
	if !ok || a.Status != StatusReserved || a.BlockedUntil == nil || !a.BlockedUntil.Before(now) {
		return nil, ErrNotFound
	}
	a.Status = StatusCancelled
	a.PaymentStatus = PaymentExpired
	a.ReservedAt = nil
	a.ReservedBy = nil
	a.BlockedUntil = nil
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *memRepo) FindExpiredHolds(ctx context.Context, now time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Appointment
	for _, a := range r.rows {
		if a.Status == StatusReserved && a.BlockedUntil != nil && a.BlockedUntil.Before(now) {
			result = append(result, *a)
		}
	}
	return result, nil
}

func (r *memRepo) SetMeetingURL(ctx context.Context, id uuid.UUID, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.rows[id]
	if !ok || a.Status != StatusApproved {
		return ErrNotFound
	}
	a.MeetingURL = &url
	return nil
}

func (r *memRepo) OccupiedStarts(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []time.Time
	for _, a := range r.rows {
		if a.DoctorID == doctorID && a.Status.Live() &&
			!a.StartTime.Before(from) && a.StartTime.Before(to) {
			result = append(result, a.StartTime)
		}
	}
	return result, nil
}

func (r *memRepo) InsertEvent(ctx context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// memLocker serializes critical sections per key with plain mutexes.
type memLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMemLocker() *memLocker {
	return &memLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *memLocker) keyMutex(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

func (l *memLocker) WithSlotLock(ctx context.Context, doctorID uuid.UUID, slotStart time.Time, fn func(ctx context.Context) error) error {
	m := l.keyMutex(fmt.Sprintf("slot:%s:%d", doctorID, slotStart.Unix()))
	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

func (l *memLocker) WithSessionLock(ctx context.Context, elderID uuid.UUID, sessionDate time.Time, fn func(ctx context.Context) error) error {
	m := l.keyMutex(fmt.Sprintf("session:%s:%s", elderID, sessionDate.Format("2006-01-02")))
	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

// heldLocker refuses the configured lock, as if another worker holds it.
type heldLocker struct {
	slot    bool
	session bool
}

func (l heldLocker) WithSlotLock(ctx context.Context, doctorID uuid.UUID, slotStart time.Time, fn func(ctx context.Context) error) error {
	if l.slot {
		return redisclient.ErrLockNotAcquired
	}
	return fn(ctx)
}

func (l heldLocker) WithSessionLock(ctx context.Context, elderID uuid.UUID, sessionDate time.Time, fn func(ctx context.Context) error) error {
	if l.session {
		return redisclient.ErrLockNotAcquired
	}
	return fn(ctx)
}

// alwaysBookable accepts any slot, standing in for the schedule service.
type alwaysBookable struct{}

func (alwaysBookable) SlotBookable(ctx context.Context, doctorID uuid.UUID, slotStart time.Time, slotDur time.Duration) (bool, error) {
	return true, nil
}

type neverBookable struct{}

func (neverBookable) SlotBookable(ctx context.Context, doctorID uuid.UUID, slotStart time.Time, slotDur time.Duration) (bool, error) {
	return false, nil
}

type staticFees struct {
	fee decimal.Decimal
}

func (f staticFees) ConsultationFee(ctx context.Context, doctorID uuid.UUID) (decimal.Decimal, error) {
	return f.fee, nil
}
