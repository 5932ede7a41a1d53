package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/carebridge/reservation-engine/internal/api"
	"github.com/carebridge/reservation-engine/internal/config"
	"github.com/carebridge/reservation-engine/internal/db"
	"github.com/carebridge/reservation-engine/internal/logger"
	"github.com/carebridge/reservation-engine/internal/metrics"
	redisclient "github.com/carebridge/reservation-engine/internal/redis"
	"github.com/carebridge/reservation-engine/internal/reservation"
	"github.com/carebridge/reservation-engine/internal/schedule"

	"github.com/prometheus/client_golang/prometheus"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("api-server starting", zap.String("env", cfg.Env), zap.String("http_port", cfg.HTTPPort))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.Connect(pgCtx, cfg)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	rdb, err := redisclient.NewClient(cfg)
	if err != nil {
		log.Fatal("redis connection", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("closing redis", zap.Error(err))
		}
	}()
	log.Info("connected to Redis")

	m := metrics.New(prometheus.DefaultRegisterer)

	ledgerRepo := reservation.NewPgRepository(pgPool)
	scheduleRepo := schedule.NewPgRepository(pgPool)
	scheduleSvc := schedule.NewService(scheduleRepo, ledgerRepo)

	locker := redisclient.NewRedisReservationLocker(rdb, cfg.LockTTL)
	fees := reservation.NewPgFeeSource(pgPool)
	arbiter := reservation.NewArbiter(ledgerRepo, scheduleSvc, fees, locker, log, m)

	router := api.NewRouter(api.RouterConfig{
		Schedule:     scheduleSvc,
		Arbiter:      arbiter,
		PgPool:       pgPool,
		Redis:        rdb,
		Logger:       log,
		Metrics:      m,
		HoldTTL:      cfg.HoldTTL,
		SlotDuration: cfg.SlotDuration,
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown", zap.Error(err))
	}
}
