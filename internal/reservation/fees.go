package reservation

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var ErrDoctorNotFound = errors.New("doctor not found")

// PgFeeSource reads the consultation fee from the account-management
// schema. The fee is snapshotted onto the ledger entry at grant time so
// later fee changes never reprice an existing reservation.
type PgFeeSource struct {
	pool *pgxpool.Pool
}

func NewPgFeeSource(pool *pgxpool.Pool) *PgFeeSource {
	return &PgFeeSource{pool: pool}
}

func (f *PgFeeSource) ConsultationFee(ctx context.Context, doctorID uuid.UUID) (decimal.Decimal, error) {
	var fee decimal.Decimal

	err := f.pool.QueryRow(ctx, `
		SELECT consultation_fee
		FROM doctors
		WHERE id = $1
	`, doctorID).Scan(&fee)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Decimal{}, ErrDoctorNotFound
		}
		return decimal.Decimal{}, err
	}

	return fee, nil
}
