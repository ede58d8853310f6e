package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login methods and outcomes used as label values.
const (
	MethodPIN       = "pin"
	MethodBiometric = "biometric"
	MethodRefresh   = "refresh"

	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeLocked   = "locked"
	OutcomeError    = "error"
)

var (
	AuthAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokerline_auth_attempts_total",
			Help: "Authentication attempts by method and outcome.",
		},
		[]string{"method", "outcome"},
	)
	PINInstalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brokerline_pin_installs_total",
			Help: "PIN installations and changes by outcome.",
		},
		[]string{"outcome"},
	)
	ChallengesIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "brokerline_biometric_challenges_total",
			Help: "Biometric login challenges issued.",
		},
	)
)

// NewRegistry returns a registry with the application and runtime collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		AuthAttempts,
		PINInstalls,
		ChallengesIssued,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// Handler exposes the registry in the prometheus text format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
