package reservation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/carebridge/reservation-engine/internal/metrics"
)

// Sweeper reclaims holds whose time-box elapsed without a completed
// payment. Each reclaim goes through the same status guard as the
// arbiter, so a payment landing concurrently wins or loses cleanly.
type Sweeper struct {
	repo    Repository
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewSweeper(repo Repository, log *zap.Logger, m *metrics.Metrics) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		repo:    repo,
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

// WithClock overrides the sweeper's time source.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// SweepOnce expires every lapsed hold it can claim and returns the
// count. Running it twice over the same rows is a no-op the second time:
// the guarded update matches nothing once a row has left reserved.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()

	candidates, err := s.repo.FindExpiredHolds(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("find expired holds: %w", err)
	}

	expired := 0
	for _, appt := range candidates {
		updated, err := s.repo.ExpireHold(ctx, appt.ID, now)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// Lost the race to a confirming payment or a release.
				s.log.Debug("hold already claimed", zap.String("appointment_id", appt.ID.String()))
				continue
			}
			s.log.Error("expire hold", zap.String("appointment_id", appt.ID.String()), zap.Error(err))
			continue
		}

		expired++
		if s.metrics != nil {
			s.metrics.HoldsExpired.Inc()
		}
		s.recordEvent(ctx, updated)
	}

	if s.metrics != nil {
		s.metrics.SweeperRuns.Inc()
	}

	return expired, nil
}

// Run executes one sweep immediately, then on every tick until the
// context is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	s.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopping")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	expired, err := s.SweepOnce(runCtx)
	if err != nil {
		s.log.Error("sweep failed", zap.Error(err))
		return
	}
	s.log.Info("sweep complete", zap.Int("expired", expired), zap.Duration("took", time.Since(start)))
}

func (s *Sweeper) recordEvent(ctx context.Context, appt *Appointment) {
	payload, err := json.Marshal(map[string]any{"reason": "sweeper"})
	if err != nil {
		payload = nil
	}

	apptID := appt.ID
	ev := EventLog{
		EventType:     EventHoldExpired,
		AppointmentID: &apptID,
		Payload:       payload,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn("insert event log", zap.String("appointment_id", appt.ID.String()), zap.Error(err))
	}
}
