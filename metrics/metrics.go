// Package metrics exports training progress as Prometheus metrics.
//
// A nil *Metrics is valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	prometheus Prometheus
}

// New creates an unregistered set of collectors.
func New() *Metrics {
	return &Metrics{prometheus: NewPrometheusMetrics()}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.prometheus.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors exposes the underlying collectors.
func (m *Metrics) Collectors() Prometheus { return m.prometheus }

// Epoch records the end of a pass over the dataset.
func (m *Metrics) Epoch(run string, loss, best, smooth, delta float32) {
	if m == nil {
		return
	}
	m.prometheus.TrainerEpochs.WithLabelValues(run).Inc()
	m.prometheus.TrainerLoss.WithLabelValues(run, "epoch").Set(float64(loss))
	m.prometheus.TrainerLoss.WithLabelValues(run, "best").Set(float64(best))
	m.prometheus.TrainerLoss.WithLabelValues(run, "smooth").Set(float64(smooth))
	m.prometheus.TrainerLoss.WithLabelValues(run, "delta").Set(float64(delta))
}

// Generation records one evaluated network.
func (m *Metrics) Generation(run string, best, second, mutation float32) {
	if m == nil {
		return
	}
	m.prometheus.EvolverGenerations.WithLabelValues(run).Inc()
	m.prometheus.EvolverLoss.WithLabelValues(run, "best").Set(float64(best))
	m.prometheus.EvolverLoss.WithLabelValues(run, "second").Set(float64(second))
	m.prometheus.EvolverMutation.WithLabelValues(run).Set(float64(mutation))
}

// Decision records one chosen action.
func (m *Metrics) Decision(run string) {
	if m == nil {
		return
	}
	m.prometheus.ReplayDecisions.WithLabelValues(run).Inc()
}

// Session records one rewarded session.
func (m *Metrics) Session(run string) {
	if m == nil {
		return
	}
	m.prometheus.ReplaySessions.WithLabelValues(run).Inc()
}
