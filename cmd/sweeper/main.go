package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/carebridge/reservation-engine/internal/config"
	"github.com/carebridge/reservation-engine/internal/db"
	"github.com/carebridge/reservation-engine/internal/logger"
	"github.com/carebridge/reservation-engine/internal/metrics"
	"github.com/carebridge/reservation-engine/internal/reservation"
)

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

	log.Info("sweeper starting",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.SweepInterval))

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

	m := metrics.New(prometheus.DefaultRegisterer)
	repo := reservation.NewPgRepository(pgPool)
	sweeper := reservation.NewSweeper(repo, log, m)

	sweeper.Run(rootCtx, cfg.SweepInterval)
}
