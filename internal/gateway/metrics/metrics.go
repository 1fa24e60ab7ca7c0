// Package metrics exposes the gateway's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GateDecisions counts gate verdicts by outcome
	// (allow, allow_with_cookie, redirect) and whether fail-open fired.
	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quillboard",
		Subsystem: "gateway",
		Name:      "gate_decisions_total",
		Help:      "Request gate decisions by action.",
	}, []string{"action", "failed_open"})

	// LoginAttempts counts login outcomes per identity backend.
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quillboard",
		Subsystem: "gateway",
		Name:      "login_attempts_total",
		Help:      "Login attempts by backend and outcome.",
	}, []string{"backend", "outcome"})

	// RefreshAttempts counts refresh outcomes per identity backend.
	RefreshAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quillboard",
		Subsystem: "gateway",
		Name:      "refresh_attempts_total",
		Help:      "Token refresh attempts by backend and outcome.",
	}, []string{"backend", "outcome"})
)

// Handler serves the default registry in Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
