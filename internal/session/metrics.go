package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	expirationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phiguard_session_expirations_total",
		Help: "Number of sessions expired for exceeding the idle timeout",
	})
	warningsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "phiguard_session_warnings_total",
		Help: "Number of requests served inside the pre-expiry warning window",
	})
	storeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "phiguard_session_store_errors_total",
		Help: "Number of session store failures by operation",
	}, []string{"op"})
)
