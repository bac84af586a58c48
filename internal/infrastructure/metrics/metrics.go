package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	AssociationsCreated prometheus.Counter
	RulesCreated        prometheus.Counter
	DispatchesScheduled prometheus.Counter
	DispatchesFinished  *prometheus.CounterVec // outcome: resolved | failed
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: reg,
		AssociationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "integration_associations_created_total",
			Help: "New organization-integration associations created.",
		}),
		RulesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rules_created_total",
			Help: "Alert rules persisted.",
		}),
		DispatchesScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatches_scheduled_total",
			Help: "Async side-effect units scheduled.",
		}),
		DispatchesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatches_finished_total",
			Help: "Async side-effect units reaching a terminal state.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(m.AssociationsCreated, m.RulesCreated, m.DispatchesScheduled, m.DispatchesFinished)
	return m
}

// Handler exposes the registry for the /metrics route.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
