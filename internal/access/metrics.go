package access

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var denialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "phiguard_access_denials_total",
	Help: "Number of requests denied by the permission evaluator, by check and reason",
}, []string{"check", "reason"})

func recordDenial(check string, reason Reason) {
	denialsTotal.WithLabelValues(check, string(reason)).Inc()
}
