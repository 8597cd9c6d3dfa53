// Package metrics holds the prometheus collectors for judgment traffic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pairjudge"

// Metrics is registered on its own registry so tests and multiple services
// in one process do not collide on the default one.
type Metrics struct {
	Registry *prometheus.Registry

	judgments       *prometheus.CounterVec
	pairsDrawn      *prometheus.CounterVec
	emptyPairs      *prometheus.CounterVec
	cycleBoundaries prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		judgments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "judgments_total",
			Help:      "Judgments saved by outcome and whether they were new or rejudged",
		}, []string{"outcome", "kind"}),
		pairsDrawn: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairs_drawn_total",
			Help:      "Pairs offered by selection strategy",
		}, []string{"strategy"}),
		emptyPairs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_pairs_total",
			Help:      "Selections that found fewer than two candidates",
		}, []string{"strategy"}),
		cycleBoundaries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_boundaries_total",
			Help:      "Completed cycles across all users",
		}),
	}
}

func (m *Metrics) JudgmentSaved(outcome, kind string) {
	m.judgments.WithLabelValues(outcome, kind).Inc()
}

func (m *Metrics) PairDrawn(strategy string, empty bool) {
	if empty {
		m.emptyPairs.WithLabelValues(strategy).Inc()
		return
	}
	m.pairsDrawn.WithLabelValues(strategy).Inc()
}

func (m *Metrics) CycleBoundary() {
	m.cycleBoundaries.Inc()
}
