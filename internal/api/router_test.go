package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/carebridge/reservation-engine/internal/reservation"
	"github.com/carebridge/reservation-engine/internal/schedule"
)

// ledgerStub is an in-memory reservation.Repository with the same
// uniqueness guards as the SQL layer.
type ledgerStub struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*reservation.Appointment
}

func newLedgerStub() *ledgerStub {
	return &ledgerStub{rows: map[uuid.UUID]*reservation.Appointment{}}
}

func (l *ledgerStub) GetByID(ctx context.Context, id uuid.UUID) (*reservation.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.rows[id]
	if !ok {
		return nil, reservation.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (l *ledgerStub) ListByRequester(ctx context.Context, requesterID uuid.UUID, limit, offset int) ([]reservation.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []reservation.Appointment
	for _, a := range l.rows {
		if a.RequesterID == requesterID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (l *ledgerStub) CreateReserved(ctx context.Context, a reservation.Appointment) (*reservation.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, existing := range l.rows {
		if !existing.Status.Live() {
			continue
		}
		if existing.DoctorID == a.DoctorID && existing.StartTime.Equal(a.StartTime) {
			return nil, reservation.ErrSlotTaken
		}
		if a.Kind == reservation.KindMonthly && existing.Kind == reservation.KindMonthly &&
			a.ElderID != nil && existing.ElderID != nil && *a.ElderID == *existing.ElderID &&
			a.SessionDate != nil && existing.SessionDate != nil && a.SessionDate.Equal(*existing.SessionDate) {
			return nil, reservation.ErrSessionTaken
		}
	}

	a.ID = uuid.New()
	a.Status = reservation.StatusReserved
	a.PaymentStatus = reservation.PaymentPending
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	l.rows[a.ID] = &a
	cp := a
	return &cp, nil
}

func (l *ledgerStub) UpdateStatus(ctx context.Context, id uuid.UUID, from, to reservation.Status) (*reservation.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.rows[id]
	if !ok || a.Status != from {
		return nil, reservation.ErrNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (l *ledgerStub) ConsumeHold(ctx context.Context, id uuid.UUID, now time.Time) (*reservation.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.rows[id]
	if !ok || a.Status != reservation.StatusReserved || a.BlockedUntil == nil || !a.BlockedUntil.After(now) {
		return nil, reservation.ErrNotFound
	}
	a.Status = reservation.StatusPending
	a.PaymentStatus = reservation.PaymentCompleted
	a.ReservedAt = nil
	a.ReservedBy = nil
	a.BlockedUntil = nil
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (l *ledgerStub) ReleaseHold(ctx context.Context, id uuid.UUID) (*reservation.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.rows[id]
	if !ok || !a.Status.Live() {
		return nil, reservation.ErrNotFound
	}
	a.Status = reservation.StatusCancelled
	a.ReservedAt = nil
	a.ReservedBy = nil
	a.BlockedUntil = nil
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (l *ledgerStub) ExpireHold(ctx context.Context, id uuid.UUID, now time.Time) (*reservation.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.rows[id]
	if !ok || a.Status != reservation.StatusReserved || a.BlockedUntil == nil || !a.BlockedUntil.Before(now) {
		return nil, reservation.ErrNotFound
	}
	a.Status = reservation.StatusCancelled
	a.PaymentStatus = reservation.PaymentExpired
	a.ReservedAt = nil
	a.ReservedBy = nil
	a.BlockedUntil = nil
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (l *ledgerStub) FindExpiredHolds(ctx context.Context, now time.Time) ([]reservation.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []reservation.Appointment
	for _, a := range l.rows {
		if a.Status == reservation.StatusReserved && a.BlockedUntil != nil && a.BlockedUntil.Before(now) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (l *ledgerStub) SetMeetingURL(ctx context.Context, id uuid.UUID, url string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.rows[id]
	if !ok || a.Status != reservation.StatusApproved {
		return reservation.ErrNotFound
	}
	a.MeetingURL = &url
	return nil
}

func (l *ledgerStub) OccupiedStarts(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []time.Time
	for _, a := range l.rows {
		if a.DoctorID == doctorID && a.Status.Live() && !a.StartTime.Before(from) && a.StartTime.Before(to) {
			out = append(out, a.StartTime)
		}
	}
	return out, nil
}

func (l *ledgerStub) InsertEvent(ctx context.Context, ev reservation.EventLog) error {
	return nil
}

// scheduleStub is an in-memory schedule.Repository.
type scheduleStub struct {
	mu         sync.Mutex
	windows    []schedule.RecurringWindow
	exceptions []schedule.ScheduleException
}

func (r *scheduleStub) CreateWindow(ctx context.Context, w schedule.RecurringWindow) (*schedule.RecurringWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w.ID = uuid.New()
	w.Active = true
	r.windows = append(r.windows, w)
	return &w, nil
}

func (r *scheduleStub) DeactivateWindow(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.windows {
		if r.windows[i].ID == id {
			r.windows[i].Active = false
			return nil
		}
	}
	return schedule.ErrWindowNotFound
}

func (r *scheduleStub) ListWindows(ctx context.Context, doctorID uuid.UUID) ([]schedule.RecurringWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []schedule.RecurringWindow
	for _, w := range r.windows {
		if w.DoctorID == doctorID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *scheduleStub) ListActiveWindows(ctx context.Context, doctorID uuid.UUID) ([]schedule.RecurringWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []schedule.RecurringWindow
	for _, w := range r.windows {
		if w.DoctorID == doctorID && w.Active {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *scheduleStub) CreateException(ctx context.Context, e schedule.ScheduleException) (*schedule.ScheduleException, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = uuid.New()
	r.exceptions = append(r.exceptions, e)
	return &e, nil
}

func (r *scheduleStub) ListExceptions(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]schedule.ScheduleException, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []schedule.ScheduleException
	for _, e := range r.exceptions {
		if e.DoctorID == doctorID && !e.Date.Before(schedule.DateOf(from)) && !e.Date.After(schedule.DateOf(to)) {
			out = append(out, e)
		}
	}
	return out, nil
}

// passLocker runs the critical section without any distributed lock.
type passLocker struct{}

func (passLocker) WithSlotLock(ctx context.Context, doctorID uuid.UUID, slotStart time.Time, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (passLocker) WithSessionLock(ctx context.Context, elderID uuid.UUID, sessionDate time.Time, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fixedFees answers every fee lookup with the same amount.
type fixedFees struct{ fee decimal.Decimal }

func (f fixedFees) ConsultationFee(ctx context.Context, doctorID uuid.UUID) (decimal.Decimal, error) {
	return f.fee, nil
}

type testEnv struct {
	server   *httptest.Server
	doctorID uuid.UUID
}

// newTestEnv builds a full router over in-memory stores and opens a
// Monday 09:00-11:00 window for one doctor.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ledger := newLedgerStub()
	scheduleSvc := schedule.NewService(&scheduleStub{}, ledger)
	arb := reservation.NewArbiter(ledger, scheduleSvc, fixedFees{fee: decimal.NewFromInt(120)}, passLocker{}, zap.NewNop(), nil)

	handler := NewRouter(RouterConfig{
		Schedule:     scheduleSvc,
		Arbiter:      arb,
		Logger:       zap.NewNop(),
		HoldTTL:      10 * time.Minute,
		SlotDuration: 30 * time.Minute,
		Env:          "test",
		Version:      "test",
	})

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	env := &testEnv{server: server, doctorID: uuid.New()}
	env.postJSON(t, fmt.Sprintf("/doctors/%s/windows", env.doctorID), map[string]any{
		"weekday":      1,
		"start_minute": 9 * 60,
		"end_minute":   11 * 60,
	}, http.StatusCreated, nil)
	return env
}

func (e *testEnv) postJSON(t *testing.T, path string, body any, wantStatus int, out any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	resp, err := http.Post(e.server.URL+path, "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, wantStatus, resp.StatusCode, "POST %s", path)
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
}

func (e *testEnv) getJSON(t *testing.T, path string, wantStatus int, out any) {
	t.Helper()

	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, wantStatus, resp.StatusCode, "GET %s", path)
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
}

// mondaySlot is 09:00 on an open Monday, RFC 3339.
const mondaySlot = "2025-03-03T09:00:00Z"

func (e *testEnv) reserveBody(slot string) map[string]any {
	return map[string]any{
		"doctor_id":    e.doctorID.String(),
		"requester_id": uuid.New().String(),
		"slot_start":   slot,
	}
}

func TestReserveEndpointGrantsHold(t *testing.T) {
	env := newTestEnv(t)

	var grant GrantResponse
	env.postJSON(t, "/reservations", env.reserveBody(mondaySlot), http.StatusCreated, &grant)
	assert.NotEqual(t, uuid.Nil, grant.AppointmentID)
	assert.Equal(t, "120", grant.Fee)
	assert.True(t, grant.ExpiresAt.After(time.Now()))

	var appt AppointmentResponse
	env.getJSON(t, "/appointments/"+grant.AppointmentID.String(), http.StatusOK, &appt)
	assert.Equal(t, "reserved", appt.Status)
	assert.Equal(t, "pending", appt.PaymentStatus)
	require.NotNil(t, appt.BlockedUntil)
}

func TestReserveEndpointSlotTaken(t *testing.T) {
	env := newTestEnv(t)

	env.postJSON(t, "/reservations", env.reserveBody(mondaySlot), http.StatusCreated, nil)

	var errResp ErrorResponse
	env.postJSON(t, "/reservations", env.reserveBody(mondaySlot), http.StatusConflict, &errResp)
	assert.Equal(t, "slot_taken", errResp.Error)
}

func TestReserveEndpointOutsideAvailability(t *testing.T) {
	env := newTestEnv(t)

	var errResp ErrorResponse
	env.postJSON(t, "/reservations", env.reserveBody("2025-03-03T13:00:00Z"), http.StatusConflict, &errResp)
	assert.Equal(t, "slot_unavailable", errResp.Error)
}

func TestReserveEndpointValidation(t *testing.T) {
	env := newTestEnv(t)

	var errResp ErrorResponse
	env.postJSON(t, "/reservations", map[string]any{
		"requester_id": uuid.New().String(),
		"slot_start":   mondaySlot,
	}, http.StatusBadRequest, &errResp)
	assert.Equal(t, "validation_failed", errResp.Error)

	body := env.reserveBody("03/03/2025 9am")
	env.postJSON(t, "/reservations", body, http.StatusBadRequest, &errResp)
	assert.Equal(t, "invalid_slot_start", errResp.Error)

	// Kinds other than adhoc and monthly never reach the arbiter.
	body = env.reserveBody(mondaySlot)
	body["kind"] = "weekly"
	env.postJSON(t, "/reservations", body, http.StatusBadRequest, &errResp)
	assert.Equal(t, "validation_failed", errResp.Error)
}

func TestReserveEndpointMonthlyRequiresElder(t *testing.T) {
	env := newTestEnv(t)

	body := env.reserveBody(mondaySlot)
	body["kind"] = "monthly"

	var errResp ErrorResponse
	env.postJSON(t, "/reservations", body, http.StatusBadRequest, &errResp)
	assert.Equal(t, "elder_required", errResp.Error)
}

func TestConfirmAndLifecycleEndpoints(t *testing.T) {
	env := newTestEnv(t)

	var grant GrantResponse
	env.postJSON(t, "/reservations", env.reserveBody(mondaySlot), http.StatusCreated, &grant)
	base := "/reservations/" + grant.AppointmentID.String()

	var appt AppointmentResponse
	env.postJSON(t, base+"/confirm", nil, http.StatusOK, &appt)
	assert.Equal(t, "pending", appt.Status)
	assert.Equal(t, "completed", appt.PaymentStatus)
	assert.Nil(t, appt.BlockedUntil)

	env.postJSON(t, base+"/decision", map[string]any{"approve": true}, http.StatusOK, &appt)
	assert.Equal(t, "approved", appt.Status)

	env.postJSON(t, base+"/meeting-url", map[string]any{"url": "https://meet.example.com/abc"}, http.StatusNoContent, nil)

	env.postJSON(t, base+"/outcome", map[string]any{"outcome": "completed"}, http.StatusOK, &appt)
	assert.Equal(t, "completed", appt.Status)

	// Terminal entries reject further outcomes.
	var errResp ErrorResponse
	env.postJSON(t, base+"/outcome", map[string]any{"outcome": "no_show"}, http.StatusConflict, &errResp)
	assert.Equal(t, "invalid_status_transition", errResp.Error)
}

func TestReleaseEndpointReopensSlot(t *testing.T) {
	env := newTestEnv(t)

	var grant GrantResponse
	env.postJSON(t, "/reservations", env.reserveBody(mondaySlot), http.StatusCreated, &grant)

	var slots SlotsResponse
	env.getJSON(t, fmt.Sprintf("/doctors/%s/slots?from=2025-03-03&to=2025-03-03", env.doctorID), http.StatusOK, &slots)
	assert.Len(t, slots.Slots, 3)

	var appt AppointmentResponse
	env.postJSON(t, "/reservations/"+grant.AppointmentID.String()+"/release",
		map[string]any{"reason": "changed my mind"}, http.StatusOK, &appt)
	assert.Equal(t, "cancelled", appt.Status)

	env.getJSON(t, fmt.Sprintf("/doctors/%s/slots?from=2025-03-03&to=2025-03-03", env.doctorID), http.StatusOK, &slots)
	assert.Len(t, slots.Slots, 4)
}

func TestConfirmUnknownAppointment(t *testing.T) {
	env := newTestEnv(t)

	var errResp ErrorResponse
	env.postJSON(t, "/reservations/"+uuid.NewString()+"/confirm", nil, http.StatusNotFound, &errResp)
	assert.Equal(t, "appointment_not_found", errResp.Error)
}

func TestWindowEndpoints(t *testing.T) {
	env := newTestEnv(t)
	base := fmt.Sprintf("/doctors/%s/windows", env.doctorID)

	// Overlaps the window seeded by newTestEnv.
	var errResp ErrorResponse
	env.postJSON(t, base, map[string]any{
		"weekday":      1,
		"start_minute": 10 * 60,
		"end_minute":   12 * 60,
	}, http.StatusUnprocessableEntity, &errResp)
	assert.Equal(t, "schedule_conflict", errResp.Error)

	var created WindowResponse
	env.postJSON(t, base, map[string]any{
		"weekday":      2,
		"start_minute": 9 * 60,
		"end_minute":   10 * 60,
	}, http.StatusCreated, &created)
	assert.True(t, created.Active)

	var windows []WindowResponse
	env.getJSON(t, base, http.StatusOK, &windows)
	assert.Len(t, windows, 2)

	req, err := http.NewRequest(http.MethodDelete, env.server.URL+base+"/"+created.ID.String(), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestWindowValidation(t *testing.T) {
	env := newTestEnv(t)

	var errResp ErrorResponse
	env.postJSON(t, fmt.Sprintf("/doctors/%s/windows", env.doctorID), map[string]any{
		"weekday":      1,
		"start_minute": 11 * 60,
		"end_minute":   9 * 60,
	}, http.StatusBadRequest, &errResp)
	assert.Equal(t, "validation_failed", errResp.Error)
}

func TestExceptionEndpointBlocksDay(t *testing.T) {
	env := newTestEnv(t)

	var created ExceptionResponse
	env.postJSON(t, fmt.Sprintf("/doctors/%s/exceptions", env.doctorID), map[string]any{
		"date":        "2025-03-03",
		"unavailable": true,
		"reason":      "holiday",
	}, http.StatusCreated, &created)
	assert.Equal(t, "2025-03-03", created.Date)

	var slots SlotsResponse
	env.getJSON(t, fmt.Sprintf("/doctors/%s/slots?from=2025-03-03&to=2025-03-03", env.doctorID), http.StatusOK, &slots)
	assert.Empty(t, slots.Slots)
}

func TestSlotsEndpointRejectsBadRange(t *testing.T) {
	env := newTestEnv(t)

	var errResp ErrorResponse
	env.getJSON(t, fmt.Sprintf("/doctors/%s/slots?from=2025-03-10&to=2025-03-03", env.doctorID), http.StatusBadRequest, &errResp)
	assert.Equal(t, "invalid_range", errResp.Error)

	env.getJSON(t, fmt.Sprintf("/doctors/%s/slots?from=bad&to=2025-03-03", env.doctorID), http.StatusBadRequest, &errResp)
	assert.Equal(t, "invalid_from", errResp.Error)
}

func TestSlotsEndpointRejectsFractionalDuration(t *testing.T) {
	env := newTestEnv(t)

	var errResp ErrorResponse
	for _, d := range []string{"30s", "90s", "-30m", "abc"} {
		env.getJSON(t, fmt.Sprintf("/doctors/%s/slots?from=2025-03-03&to=2025-03-03&duration=%s", env.doctorID, d),
			http.StatusBadRequest, &errResp)
		assert.Equal(t, "invalid_duration", errResp.Error, "duration %q", d)
	}
}

func TestListAppointmentsByRequester(t *testing.T) {
	env := newTestEnv(t)

	requesterID := uuid.New()
	body := env.reserveBody(mondaySlot)
	body["requester_id"] = requesterID.String()
	env.postJSON(t, "/reservations", body, http.StatusCreated, nil)

	var appts []AppointmentResponse
	env.getJSON(t, "/appointments?requester_id="+requesterID.String(), http.StatusOK, &appts)
	require.Len(t, appts, 1)
	assert.Equal(t, requesterID, appts[0].RequesterID)

	env.getJSON(t, "/appointments?requester_id=nope", http.StatusBadRequest, nil)
}
