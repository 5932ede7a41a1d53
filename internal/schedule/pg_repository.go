package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanWindow(row pgx.Row) (*RecurringWindow, error) {
	var w RecurringWindow
	var weekday int

	err := row.Scan(
		&w.ID,
		&w.DoctorID,
		&weekday,
		&w.StartMinute,
		&w.EndMinute,
		&w.Active,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, err
	}

	w.Weekday = time.Weekday(weekday)
	return &w, nil
}

func scanException(row pgx.Row) (*ScheduleException, error) {
	var e ScheduleException
	var startMinute, endMinute *int

	err := row.Scan(
		&e.ID,
		&e.DoctorID,
		&e.Date,
		&startMinute,
		&endMinute,
		&e.Unavailable,
		&e.Reason,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExceptionNotFound
		}
		return nil, err
	}

	e.StartMinute = startMinute
	e.EndMinute = endMinute
	return &e, nil
}

func (r *PgRepository) CreateWindow(ctx context.Context, w RecurringWindow) (*RecurringWindow, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}

	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO recurring_windows (id, doctor_id, weekday, start_minute, end_minute, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, true, now(), now())
		RETURNING id, doctor_id, weekday, start_minute, end_minute, active, created_at, updated_at
	`, id, w.DoctorID, int(w.Weekday), w.StartMinute, w.EndMinute)

	return scanWindow(row)
}

func (r *PgRepository) DeactivateWindow(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE recurring_windows
		SET active = false,
		    updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWindowNotFound
	}
	return nil
}

func (r *PgRepository) ListWindows(ctx context.Context, doctorID uuid.UUID) ([]RecurringWindow, error) {
	return r.listWindows(ctx, doctorID, false)
}

func (r *PgRepository) ListActiveWindows(ctx context.Context, doctorID uuid.UUID) ([]RecurringWindow, error) {
	return r.listWindows(ctx, doctorID, true)
}

func (r *PgRepository) listWindows(ctx context.Context, doctorID uuid.UUID, activeOnly bool) ([]RecurringWindow, error) {
	query := `
		SELECT id, doctor_id, weekday, start_minute, end_minute, active, created_at, updated_at
		FROM recurring_windows
		WHERE doctor_id = $1
	`
	if activeOnly {
		query += ` AND active`
	}
	query += ` ORDER BY weekday, start_minute`

	rows, err := r.pool.Query(ctx, query, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []RecurringWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}

	return result, rows.Err()
}

func (r *PgRepository) CreateException(ctx context.Context, e ScheduleException) (*ScheduleException, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}

	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO schedule_exceptions (id, doctor_id, date, start_minute, end_minute, unavailable, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING id, doctor_id, date, start_minute, end_minute, unavailable, reason, created_at
	`, id, e.DoctorID, DateOf(e.Date), e.StartMinute, e.EndMinute, e.Unavailable, e.Reason)

	return scanException(row)
}

func (r *PgRepository) ListExceptions(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]ScheduleException, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, date, start_minute, end_minute, unavailable, reason, created_at
		FROM schedule_exceptions
		WHERE doctor_id = $1
		  AND date >= $2
		  AND date <= $3
		ORDER BY date, start_minute NULLS FIRST
	`, doctorID, DateOf(from), DateOf(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ScheduleException
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}

	return result, rows.Err()
}
