package main

import (
	"context"
	"log"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/carebridge/reservation-engine/internal/config"
	"github.com/carebridge/reservation-engine/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	doctorIDs, err := seedDoctors(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedFamilies(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed families: %v", err)
	}
	if err := seedSchedules(context.Background(), pool, doctorIDs); err != nil {
		log.Fatalf("seed schedules: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
		"Geriatrics",
		"Cardiology",
		"General Practice",
		"Endocrinology",
		"Neurology",
		"Psychiatry",
		"Physiotherapy",
		"Nutrition",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		fee := decimal.NewFromInt(int64(gofakeit.Number(30, 200)))

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, consultation_fee, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, name, spec, fee)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("doctors seeded")
	return ids, nil
}

func seedFamilies(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d family accounts with elders", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			requesterID := uuid.New()
			elderID := uuid.New()

			_, err := tx.Exec(ctx, `
				INSERT INTO family_members (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, requesterID, gofakeit.Name(), gofakeit.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}

			_, err = tx.Exec(ctx, `
				INSERT INTO elders (id, family_member_id, name, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, elderID, requesterID, gofakeit.Name())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("families seeded: %d/%d", end, count)
	}

	log.Println("families seeded")
	return nil
}

// seedSchedules gives every doctor a plausible working week: two or
// three weekday windows plus the occasional day-off exception.
func seedSchedules(ctx context.Context, pool *pgxpool.Pool, doctorIDs []uuid.UUID) error {
	log.Printf("seeding schedules for %d doctors", len(doctorIDs))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, doctorID := range doctorIDs {
		days := gofakeit.Number(2, 5)
		for d := 1; d <= days; d++ {
			startMinute := gofakeit.Number(8, 10) * 60
			endMinute := startMinute + gofakeit.Number(4, 8)*60

			_, err := tx.Exec(ctx, `
				INSERT INTO recurring_windows (id, doctor_id, weekday, start_minute, end_minute, active, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, true, now(), now())
			`, uuid.New(), doctorID, d, startMinute, endMinute)
			if err != nil {
				return err
			}
		}

		if gofakeit.Bool() {
			dayOff := time.Now().AddDate(0, 0, gofakeit.Number(1, 28))
			_, err := tx.Exec(ctx, `
				INSERT INTO schedule_exceptions (id, doctor_id, date, start_minute, end_minute, unavailable, reason, created_at)
				VALUES ($1, $2, $3, NULL, NULL, true, $4, now())
			`, uuid.New(), doctorID, dayOff.Format("2006-01-02"), "seeded day off")
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("schedules seeded")
	return nil
}
