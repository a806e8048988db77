// Package metrics exposes Prometheus counters for lifecycle activity.
//
// The collector owns a private registry so embedding applications control
// what they expose; no HTTP server is started here (transport belongs to
// the external collaborator layer).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for RecordTransition.
const (
	OutcomeApplied  = "applied"
	OutcomeDenied   = "denied"
	OutcomeConflict = "conflict"
	OutcomeInvalid  = "invalid"
)

// Collector counts lifecycle transitions by entity, event, and outcome.
// A nil *Collector is a no-op, so wiring metrics stays optional.
type Collector struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	return &Collector{
		registry: registry,
		transitions: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "rulegov_lifecycle_transitions_total",
			Help: "Lifecycle transition attempts by entity, event, and outcome",
		}, []string{"entity", "event", "outcome"}),
	}
}

// RecordTransition increments the transition counter.
func (c *Collector) RecordTransition(entity, event, outcome string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(entity, event, outcome).Inc()
}

// Registry returns the underlying registry for mounting by an external
// scraper endpoint.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}
