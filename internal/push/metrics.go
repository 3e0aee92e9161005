package push

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK      = "ok"
	outcomeFailed  = "failed"
	outcomeSkipped = "skipped"
	outcomeDropped = "dropped"
)

var pushesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "pulse_diary",
		Subsystem: "push",
		Name:      "operations_total",
		Help:      "Remote push operations by entity kind, operation and outcome.",
	},
	[]string{"kind", "op", "outcome"},
)
