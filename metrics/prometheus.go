package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus holds the collectors.
type Prometheus struct {
	TrainerLoss   *prometheus.GaugeVec
	TrainerEpochs *prometheus.CounterVec

	EvolverLoss        *prometheus.GaugeVec
	EvolverMutation    *prometheus.GaugeVec
	EvolverGenerations *prometheus.CounterVec

	ReplaySessions  *prometheus.CounterVec
	ReplayDecisions *prometheus.CounterVec
}

func NewPrometheusMetrics() Prometheus {
	return Prometheus{
		TrainerLoss: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "jinx",
				Subsystem: "trainer",
				Name:      "loss",
				Help:      "Loss of the last epoch (epoch), the best so far (best), the smoothed loss (smooth) and its delta (delta).",
			}, []string{"run", "measure"}),
		TrainerEpochs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jinx",
				Subsystem: "trainer",
				Name:      "epochs_total",
				Help:      "Passes over the dataset.",
			}, []string{"run"}),
		EvolverLoss: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "jinx",
				Subsystem: "evolver",
				Name:      "loss",
				Help:      "Loss of the best and second best networks.",
			}, []string{"run", "rank"}),
		EvolverMutation: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "jinx",
				Subsystem: "evolver",
				Name:      "mutation_rate",
				Help:      "Current mutation chance applied to bred networks.",
			}, []string{"run"}),
		EvolverGenerations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jinx",
				Subsystem: "evolver",
				Name:      "generations_total",
				Help:      "Recorded episodes.",
			}, []string{"run"}),
		ReplaySessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jinx",
				Subsystem: "qlearning",
				Name:      "sessions_total",
				Help:      "Rewarded sessions.",
			}, []string{"run"}),
		ReplayDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jinx",
				Subsystem: "qlearning",
				Name:      "decisions_total",
				Help:      "Actions chosen.",
			}, []string{"run"}),
	}
}

func (p Prometheus) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		p.TrainerLoss, p.TrainerEpochs,
		p.EvolverLoss, p.EvolverMutation, p.EvolverGenerations,
		p.ReplaySessions, p.ReplayDecisions,
	}
}
