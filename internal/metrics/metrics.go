// Package metrics holds the Prometheus collectors for entitlement checks,
// lifecycle transitions, sweeps and the HTTP surface. Every method is safe
// to call on a nil *Metrics.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "entitlements"

// maxLabelLen is the maximum length for a metric label value
const maxLabelLen = 64

// Metrics manages Prometheus instrumentation for the service.
type Metrics struct {
	accessDenied  *prometheus.CounterVec
	limitReached  *prometheus.CounterVec
	events        *prometheus.CounterVec
	auditFailures prometheus.Counter

	sweepRuns     prometheus.Counter
	sweepItems    *prometheus.CounterVec
	sweepDuration prometheus.Histogram

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		accessDenied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "access_denied_total",
				Help:      "Feature access denials by failing gate.",
			},
			[]string{"gate"},
		),
		limitReached: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "limit_reached_total",
				Help:      "Quota checks that hit the plan limit.",
			},
			[]string{"limit"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscription_events_total",
				Help:      "Audit events recorded by type.",
			},
			[]string{"event_type"},
		),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_failures_total",
			Help:      "Audit events that could not be stored.",
		}),
		sweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Completed expiration sweeps.",
		}),
		sweepItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_items_total",
				Help:      "Sweep candidates by scan and outcome.",
			},
			[]string{"scan", "outcome"},
		),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of expiration sweeps.",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by method and route.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.accessDenied,
			m.limitReached,
			m.events,
			m.auditFailures,
			m.sweepRuns,
			m.sweepItems,
			m.sweepDuration,
			m.httpRequests,
			m.httpDuration,
		)
	}
	return m
}

// AccessDenied counts a denial at gate.
func (m *Metrics) AccessDenied(gate string) {
	if m == nil {
		return
	}
	m.accessDenied.WithLabelValues(sanitizeLabel(gate)).Inc()
}

// LimitReached counts a quota denial for limit.
func (m *Metrics) LimitReached(limit string) {
	if m == nil {
		return
	}
	m.limitReached.WithLabelValues(sanitizeLabel(limit)).Inc()
}

// EventRecorded counts a stored audit event.
func (m *Metrics) EventRecorded(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(sanitizeLabel(eventType)).Inc()
}

// AuditFailed counts an audit event that could not be stored.
func (m *Metrics) AuditFailed() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

// SweepItem counts one sweep candidate outcome.
func (m *Metrics) SweepItem(scan, outcome string) {
	if m == nil {
		return
	}
	m.sweepItems.WithLabelValues(sanitizeLabel(scan), sanitizeLabel(outcome)).Inc()
}

// SweepCompleted records a finished sweep.
func (m *Metrics) SweepCompleted(d time.Duration) {
	if m == nil {
		return
	}
	m.sweepRuns.Inc()
	m.sweepDuration.Observe(d.Seconds())
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	route = sanitizeLabel(route)
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// sanitizeLabel ensures a label value is safe for Prometheus:
// - Truncates to maxLabelLen
// - Replaces spaces with underscores
// - Returns "unknown" for empty values
func sanitizeLabel(s string) string {
	if s == "" {
		return "unknown"
	}
	s = strings.ReplaceAll(s, " ", "_")
	if len(s) > maxLabelLen {
		s = s[:maxLabelLen]
	}
	return s
}
