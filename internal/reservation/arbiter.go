package reservation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/carebridge/reservation-engine/internal/metrics"
	redisclient "github.com/carebridge/reservation-engine/internal/redis"
)

const (
	EventHoldGranted     = "HOLD_GRANTED"
	EventHoldConfirmed   = "HOLD_CONFIRMED"
	EventHoldReleased    = "HOLD_RELEASED"
	EventHoldExpired     = "HOLD_EXPIRED"
	EventDoctorDecision  = "DOCTOR_DECISION"
	EventOutcomeRecorded = "OUTCOME_RECORDED"
)

// SlotSource answers whether a slot start lies inside a doctor's
// resolved availability. Implemented by the schedule service.
type SlotSource interface {
	SlotBookable(ctx context.Context, doctorID uuid.UUID, slotStart time.Time, slotDur time.Duration) (bool, error)
}

// FeeSource supplies the consultation fee snapshot recorded at grant
// time. Backed by the account-management collaborator.
type FeeSource interface {
	ConsultationFee(ctx context.Context, doctorID uuid.UUID) (decimal.Decimal, error)
}

// ReserveRequest is one attempt to claim a slot.
type ReserveRequest struct {
	DoctorID    uuid.UUID
	ElderID     *uuid.UUID
	RequesterID uuid.UUID
	SlotStart   time.Time
	Duration    time.Duration
	Kind        Kind
	HoldTTL     time.Duration
}

// Grant is a successful hold on a slot.
type Grant struct {
	AppointmentID uuid.UUID
	ExpiresAt     time.Time
	Fee           decimal.Decimal
}

// Arbiter owns every ledger mutation. The grant decision and the ledger
// write happen inside a per-key lock and land under the datastore's
// uniqueness guard, so among N concurrent attempts on one slot exactly
// one succeeds.
type Arbiter struct {
	repo    Repository
	slots   SlotSource
	fees    FeeSource
	locker  redisclient.Locker
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewArbiter(repo Repository, slots SlotSource, fees FeeSource, locker redisclient.Locker, log *zap.Logger, m *metrics.Metrics) *Arbiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Arbiter{
		repo:    repo,
		slots:   slots,
		fees:    fees,
		locker:  locker,
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

// WithClock overrides the arbiter's time source.
func (a *Arbiter) WithClock(now func() time.Time) *Arbiter {
	a.now = now
	return a
}

// TryReserve attempts to grant a time-boxed hold on (doctor, slot start).
// Losers of the race observe ErrSlotTaken (or ErrSessionTaken for the
// monthly elder/date guard) and are expected to re-resolve slots rather
// than retry the same one.
func (a *Arbiter) TryReserve(ctx context.Context, req ReserveRequest) (*Grant, error) {
	if req.Duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrSlotUnavailable)
	}
	if req.HoldTTL <= 0 {
		return nil, fmt.Errorf("%w: hold TTL must be positive", ErrSlotUnavailable)
	}
	if req.Kind == "" {
		req.Kind = KindAdhoc
	}
	if req.Kind == KindMonthly && req.ElderID == nil {
		return nil, ErrElderRequired
	}

	bookable, err := a.slots.SlotBookable(ctx, req.DoctorID, req.SlotStart, req.Duration)
	if err != nil {
		return nil, fmt.Errorf("check availability: %w", err)
	}
	if !bookable {
		a.countRejection("slot_unavailable")
		return nil, ErrSlotUnavailable
	}

	fee, err := a.fees.ConsultationFee(ctx, req.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("load consultation fee: %w", err)
	}

	var created *Appointment

	err = a.locker.WithSlotLock(ctx, req.DoctorID, req.SlotStart, func(lockCtx context.Context) error {
		insert := func(insertCtx context.Context) error {
			now := a.now()
			expiresAt := now.Add(req.HoldTTL)

			appt := Appointment{
				RequesterID:     req.RequesterID,
				ElderID:         req.ElderID,
				DoctorID:        req.DoctorID,
				StartTime:       req.SlotStart,
				DurationMinutes: int(req.Duration.Minutes()),
				Kind:            req.Kind,
				ReservedAt:      &now,
				ReservedBy:      &req.RequesterID,
				BlockedUntil:    &expiresAt,
				ConsultationFee: fee,
			}
			if req.Kind == KindMonthly {
				sessionDate := dateOf(req.SlotStart)
				appt.SessionDate = &sessionDate
			}

			row, err := a.repo.CreateReserved(insertCtx, appt)
			if err != nil {
				return err
			}
			created = row
			return nil
		}

		if req.Kind == KindMonthly {
			err := a.locker.WithSessionLock(lockCtx, *req.ElderID, dateOf(req.SlotStart), insert)
			if errors.Is(err, redisclient.ErrLockNotAcquired) {
				// Contention on the elder/date key, not the slot key.
				return ErrSessionTaken
			}
			return err
		}
		return insert(lockCtx)
	})

	if err != nil {
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			a.countRejection("slot_taken")
			return nil, ErrSlotTaken
		case errors.Is(err, ErrSlotTaken):
			a.countRejection("slot_taken")
			return nil, err
		case errors.Is(err, ErrSessionTaken):
			a.countRejection("session_taken")
			return nil, err
		default:
			return nil, err
		}
	}

	a.logEvent(ctx, created.ID, EventHoldGranted, map[string]any{
		"doctor_id":    req.DoctorID.String(),
		"requester_id": req.RequesterID.String(),
		"slot_start":   req.SlotStart,
		"expires_at":   *created.BlockedUntil,
		"kind":         string(req.Kind),
	})
	if a.metrics != nil {
		a.metrics.ReservationsGranted.Inc()
	}

	return &Grant{
		AppointmentID: created.ID,
		ExpiresAt:     *created.BlockedUntil,
		Fee:           created.ConsultationFee,
	}, nil
}

// Confirm consumes a live hold on payment completion: reserved ->
// pending, payment marked completed, hold fields cleared. After
// blocked_until has passed the call fails with ErrHoldExpired; losing
// the race against the sweeper yields ErrStaleHold.
func (a *Arbiter) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	now := a.now()

	updated, err := a.repo.ConsumeHold(ctx, id, now)
	if err == nil {
		a.logEvent(ctx, updated.ID, EventHoldConfirmed, map[string]any{})
		return updated, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("consume hold: %w", err)
	}

	// The guarded write matched nothing: find out why.
	appt, getErr := a.repo.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}

	switch {
	case appt.Status == StatusReserved:
		// Hold lapsed but the sweeper has not reached it yet. Expire it
		// now so the slot re-opens without waiting for the next sweep.
		if _, expErr := a.repo.ExpireHold(ctx, id, now); expErr != nil && !errors.Is(expErr, ErrNotFound) {
			a.log.Warn("expire lapsed hold during confirm", zap.String("appointment_id", id.String()), zap.Error(expErr))
		}
		a.logEvent(ctx, id, EventHoldExpired, map[string]any{"reason": "confirm_after_expiry"})
		return nil, ErrHoldExpired
	case appt.Status == StatusCancelled && appt.PaymentStatus == PaymentExpired:
		return nil, ErrHoldExpired
	case appt.Status.Terminal():
		return nil, ErrStaleHold
	default:
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, StatusPending)
	}
}

// Release cancels a live entry at the caller's request, clearing any
// hold so the slot re-enters the resolver's output.
func (a *Arbiter) Release(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	updated, err := a.repo.ReleaseHold(ctx, id)
	if err == nil {
		a.logEvent(ctx, updated.ID, EventHoldReleased, map[string]any{"reason": reason})
		return updated, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("release hold: %w", err)
	}

	appt, getErr := a.repo.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, StatusCancelled)
}

// Decide records the doctor's approval or rejection of a pending
// appointment.
func (a *Arbiter) Decide(ctx context.Context, id uuid.UUID, approve bool) (*Appointment, error) {
	to := StatusApproved
	if !approve {
		to = StatusRejected
	}
	updated, err := a.transition(ctx, id, StatusPending, to)
	if err != nil {
		return nil, err
	}

	a.logEvent(ctx, updated.ID, EventDoctorDecision, map[string]any{"status": string(to)})
	return updated, nil
}

// RecordOutcome closes an approved appointment as completed, cancelled,
// or no-show.
func (a *Arbiter) RecordOutcome(ctx context.Context, id uuid.UUID, outcome Status) (*Appointment, error) {
	if err := CheckTransition(StatusApproved, outcome); err != nil {
		return nil, err
	}

	updated, err := a.transition(ctx, id, StatusApproved, outcome)
	if err != nil {
		return nil, err
	}

	a.logEvent(ctx, updated.ID, EventOutcomeRecorded, map[string]any{"outcome": string(outcome)})
	return updated, nil
}

// AttachMeetingURL stores the externally provisioned meeting link. Only
// approved appointments get one; the URL is opaque to the engine.
func (a *Arbiter) AttachMeetingURL(ctx context.Context, id uuid.UUID, url string) error {
	return a.repo.SetMeetingURL(ctx, id, url)
}

func (a *Arbiter) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return a.repo.GetByID(ctx, id)
}

func (a *Arbiter) ListByRequester(ctx context.Context, requesterID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return a.repo.ListByRequester(ctx, requesterID, limit, offset)
}

// transition runs a status CAS and maps a miss to the precise error.
func (a *Arbiter) transition(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	if err := CheckTransition(from, to); err != nil {
		return nil, err
	}

	updated, err := a.repo.UpdateStatus(ctx, id, from, to)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("update status: %w", err)
	}

	appt, getErr := a.repo.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, to)
}

func (a *Arbiter) countRejection(reason string) {
	if a.metrics != nil {
		a.metrics.ReservationsRejected.WithLabelValues(reason).Inc()
	}
}

func (a *Arbiter) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		a.log.Warn("marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     a.now(),
	}

	if err := a.repo.InsertEvent(ctx, ev); err != nil {
		a.log.Warn("insert event log",
			zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err))
	}
}

func dateOf(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
