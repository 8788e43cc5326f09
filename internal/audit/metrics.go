package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phiguard_audit_records_total",
		Help: "Number of audit records produced, by action and outcome",
	}, []string{"action", "success", "phi"})

	writeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phiguard_audit_write_failures_total",
		Help: "Number of audit records a sink failed to persist and that were dead-lettered",
	})

	emitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "phiguard_audit_emit_duration_seconds",
		Help:    "Time spent handing a record to the configured sink",
		Buckets: prometheus.DefBuckets,
	})
)
