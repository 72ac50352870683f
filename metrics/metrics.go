/*
 * MIT License
 *
 * Copyright (c) 2026 Genesis Mesh Authors
 */

// Package metrics exposes a node's Prometheus metrics and a per-component
// health aggregator that folds individual Check results into one node-wide
// status.Status via status.Worst.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nabbar/genesis-mesh/status"
)

// Metrics holds the Prometheus collectors a node exposes. All counters and
// gauges are registered against a private registry rather than the global
// default, so multiple nodes can run in one process (e.g. in tests) without
// collector name collisions.
type Metrics struct {
	Registry *prometheus.Registry

	ConnectionsActive      prometheus.Gauge
	PeersKnown             prometheus.Gauge
	RoutesInstalled        prometheus.Gauge
	MessagesForwardedTotal prometheus.Counter
	MessagesDroppedTotal   prometheus.Counter
	MessagesDuplicateTotal prometheus.Counter
	ControlAppliedTotal    prometheus.Counter
	ControlRejectedTotal   prometheus.Counter
	CRLSequence            prometheus.Gauge
	CertRemainingFraction  prometheus.Gauge
}

// New builds a Metrics instance with every collector registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "genesis_mesh",
			Name:      "connections_active",
			Help:      "Number of currently established connections.",
		}),
		PeersKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "genesis_mesh",
			Name:      "peers_known",
			Help:      "Number of peers in the known-peer table.",
		}),
		RoutesInstalled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "genesis_mesh",
			Name:      "routes_installed",
			Help:      "Number of routes currently in the routing table.",
		}),
		MessagesForwardedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "genesis_mesh",
			Name:      "messages_forwarded_total",
			Help:      "Total messages forwarded by the router.",
		}),
		MessagesDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "genesis_mesh",
			Name:      "messages_dropped_total",
			Help:      "Total messages dropped by the router (no route, TTL expired, queue full).",
		}),
		MessagesDuplicateTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "genesis_mesh",
			Name:      "messages_duplicate_total",
			Help:      "Total messages suppressed by the router's loop-suppression cache.",
		}),
		ControlAppliedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "genesis_mesh",
			Name:      "control_applied_total",
			Help:      "Total control messages successfully applied.",
		}),
		ControlRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "genesis_mesh",
			Name:      "control_rejected_total",
			Help:      "Total control messages rejected (replay, unauthorized, or handler failure).",
		}),
		CRLSequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "genesis_mesh",
			Name:      "crl_sequence",
			Help:      "Sequence number of the currently installed CRL.",
		}),
		CertRemainingFraction: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "genesis_mesh",
			Name:      "certificate_remaining_fraction",
			Help:      "Fraction of this node's certificate validity window remaining.",
		}),
	}

	reg.MustRegister(
		m.ConnectionsActive,
		m.PeersKnown,
		m.RoutesInstalled,
		m.MessagesForwardedTotal,
		m.MessagesDroppedTotal,
		m.MessagesDuplicateTotal,
		m.ControlAppliedTotal,
		m.ControlRejectedTotal,
		m.CRLSequence,
		m.CertRemainingFraction,
	)

	return m
}

// Handler returns the HTTP handler serving this Metrics' registry in the
// Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Checker reports a single component's health.
type Checker interface {
	Check() (status.Status, string)
}

// CheckerFunc adapts a plain function to Checker.
type CheckerFunc func() (status.Status, string)

// Check implements Checker.
func (f CheckerFunc) Check() (status.Status, string) { return f() }

// Health aggregates named component health checks into one node-wide
// status, worst-of-N.
type Health struct {
	mu     sync.RWMutex
	checks map[string]Checker
}

// NewHealth constructs an empty Health aggregator.
func NewHealth() *Health {
	return &Health{checks: make(map[string]Checker)}
}

// Register associates name with a health check, replacing any existing
// check under that name.
func (h *Health) Register(name string, c Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = c
}

// Unregister removes a named health check.
func (h *Health) Unregister(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.checks, name)
}

// Detail is one component's health check result.
type Detail struct {
	Component string
	Status    status.Status
	Message   string
}

// Overall runs every registered check and folds their statuses with
// status.Worst. An aggregator with no registered checks reports OK.
func (h *Health) Overall() (status.Status, []Detail) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overall := status.OK
	details := make([]Detail, 0, len(h.checks))
	for name, c := range h.checks {
		s, msg := c.Check()
		overall = status.Worst(overall, s)
		details = append(details, Detail{Component: name, Status: s, Message: msg})
	}
	return overall, details
}
