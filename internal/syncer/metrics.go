package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	runOK      = "ok"
	runPartial = "partial"
	runSkipped = "skipped"
)

var (
	syncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulse_diary",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Sync runs by outcome.",
		},
		[]string{"outcome"},
	)

	phaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pulse_diary",
			Subsystem: "sync",
			Name:      "phase_duration_seconds",
			Help:      "Wall time of each sync phase.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"phase"},
	)
)
