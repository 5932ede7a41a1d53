package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ReservationsGranted  prometheus.Counter
	ReservationsRejected *prometheus.CounterVec
	HoldsExpired         prometheus.Counter
	SweeperRuns          prometheus.Counter
	RequestDuration      *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ReservationsGranted: factory.NewCounter(prometheus.CounterOpts{
			Name: "reservations_granted_total",
			Help: "Number of reservation holds granted.",
		}),
		ReservationsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reservations_rejected_total",
			Help: "Number of reservation attempts rejected, by reason.",
		}, []string{"reason"}),
		HoldsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "holds_expired_total",
			Help: "Number of holds reclaimed by the expiry sweeper.",
		}),
		SweeperRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "sweeper_runs_total",
			Help: "Number of completed sweeper passes.",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}
