package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// The live-slot guard is enforced by two partial unique indexes:
//
//	CREATE UNIQUE INDEX appointments_doctor_slot_live_idx
//	  ON appointments (doctor_id, start_time)
//	  WHERE status IN ('pending', 'approved', 'reserved');
//
//	CREATE UNIQUE INDEX appointments_elder_session_live_idx
//	  ON appointments (elder_id, session_date)
//	  WHERE kind = 'monthly' AND status IN ('pending', 'approved', 'reserved');
const (
	doctorSlotIndex   = "appointments_doctor_slot_live_idx"
	elderSessionIndex = "appointments_elder_session_live_idx"
)

const appointmentColumns = `id, requester_id, elder_id, doctor_id, start_time, duration_minutes,
	status, kind, session_date, reserved_at, reserved_by, blocked_until,
	payment_status, consultation_fee, meeting_url, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.RequesterID,
		&a.ElderID,
		&a.DoctorID,
		&a.StartTime,
		&a.DurationMinutes,
		&a.Status,
		&a.Kind,
		&a.SessionDate,
		&a.ReservedAt,
		&a.ReservedBy,
		&a.BlockedUntil,
		&a.PaymentStatus,
		&a.ConsultationFee,
		&a.MeetingURL,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &a, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListByRequester(ctx context.Context, requesterID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE requester_id = $1
		ORDER BY start_time DESC
		LIMIT $2 OFFSET $3
	`, requesterID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) CreateReserved(ctx context.Context, a Appointment) (*Appointment, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (
			id, requester_id, elder_id, doctor_id, start_time, duration_minutes,
			status, kind, session_date, reserved_at, reserved_by, blocked_until,
			payment_status, consultation_fee, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, 'reserved', $7, $8, $9, $10, $11, 'pending', $12, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, a.RequesterID, a.ElderID, a.DoctorID, a.StartTime, a.DurationMinutes,
		a.Kind, a.SessionDate, a.ReservedAt, a.ReservedBy, a.BlockedUntil, a.ConsultationFee)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}
	return created, nil
}

// mapUniqueViolation translates SQLSTATE 23505 on one of the live-slot
// indexes into the arbiter's typed rejections.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, elderSessionIndex):
		return ErrSessionTaken
	case strings.Contains(pgErr.ConstraintName, doctorSlotIndex):
		return ErrSlotTaken
	default:
		return err
	}
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) ConsumeHold(ctx context.Context, id uuid.UUID, now time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'pending',
		    payment_status = 'completed',
		    reserved_at = NULL,
		    reserved_by = NULL,
		    blocked_until = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'reserved'
		  AND blocked_until > $2
		RETURNING `+appointmentColumns+`
	`, id, now)

	return scanAppointment(row)
}

func (r *PgRepository) ReleaseHold(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    reserved_at = NULL,
		    reserved_by = NULL,
		    blocked_until = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status IN ('pending', 'approved', 'reserved')
		RETURNING `+appointmentColumns+`
	`, id)

	return scanAppointment(row)
}

func (r *PgRepository) ExpireHold(ctx context.Context, id uuid.UUID, now time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    payment_status = 'expired',
		    reserved_at = NULL,
		    reserved_by = NULL,
		    blocked_until = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'reserved'
		  AND blocked_until < $2
		RETURNING `+appointmentColumns+`
	`, id, now)

	return scanAppointment(row)
}

func (r *PgRepository) FindExpiredHolds(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'reserved'
		  AND blocked_until IS NOT NULL
		  AND blocked_until < $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) SetMeetingURL(ctx context.Context, id uuid.UUID, url string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET meeting_url = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'approved'
	`, id, url)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgRepository) OccupiedStarts(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time
		FROM appointments
		WHERE doctor_id = $1
		  AND start_time >= $2
		  AND start_time < $3
		  AND status IN ('pending', 'approved', 'reserved')
		ORDER BY start_time
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		result = append(result, t)
	}

	return result, rows.Err()
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
