package reviewapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the review-api prometheus collectors. Each component instance
// owns its registry so tests never collide on the default one.
type metrics struct {
	registry *prometheus.Registry

	approvals    *prometheus.CounterVec
	stagedEdits  prometheus.Counter
	repositions  prometheus.Counter
	reviewErrors *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scanreview",
			Subsystem: "review_api",
			Name:      "approvals_total",
			Help:      "Phase approvals recorded through the review API.",
		}, []string{"phase"}),
		stagedEdits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scanreview",
			Subsystem: "review_api",
			Name:      "staged_edits_total",
			Help:      "Artifact edits staged through the review API.",
		}),
		repositions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scanreview",
			Subsystem: "review_api",
			Name:      "page_repositions_total",
			Help:      "Page reposition operations applied.",
		}),
		reviewErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scanreview",
			Subsystem: "review_api",
			Name:      "errors_total",
			Help:      "Review API errors by kind.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(m.approvals, m.stagedEdits, m.repositions, m.reviewErrors)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
