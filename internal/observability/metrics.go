// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/identity/internal/account"
)

// Metrics contains the identity service's Prometheus metrics.
type Metrics struct {
	RegistrationsTotal *prometheus.CounterVec
	LoginsTotal        *prometheus.CounterVec
	AuthDecisionsTotal *prometheus.CounterVec
	HTTPRequestsTotal  *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

var _ account.Recorder = (*Metrics)(nil)

// NewMetrics creates the identity metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RegistrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_registrations_total",
				Help: "Total number of account registrations by result",
			},
			[]string{"result"},
		),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_logins_total",
				Help: "Total number of login attempts by result",
			},
			[]string{"result"},
		),
		AuthDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_auth_decisions_total",
				Help: "Total number of bearer token checks by operation and result",
			},
			[]string{"operation", "result"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "identity_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(
		m.RegistrationsTotal,
		m.LoginsTotal,
		m.AuthDecisionsTotal,
		m.HTTPRequestsTotal,
		m.HTTPDuration,
	)
	return m
}

// RegistrationResult implements account.Recorder.
func (m *Metrics) RegistrationResult(result string) {
	m.RegistrationsTotal.WithLabelValues(result).Inc()
}

// LoginResult implements account.Recorder.
func (m *Metrics) LoginResult(result string) {
	m.LoginsTotal.WithLabelValues(result).Inc()
}

// AuthDecision implements account.Recorder.
func (m *Metrics) AuthDecision(operation, result string) {
	m.AuthDecisionsTotal.WithLabelValues(operation, result).Inc()
}

// ObserveHTTP records one served request. route is the matched pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
