// Package metrics exposes the engine's Prometheus instrumentation. Unlike
// the teacher's observability package, which registers its collectors as
// package-level promauto vars, every collector here is built from an
// injected prometheus.Registerer so an engine instance owns its own
// metrics and two engines in one process never collide on collector
// registration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds one engine's collectors.
type Recorder struct {
	ObservationsTotal    *prometheus.CounterVec
	AdmissionDeniedTotal *prometheus.CounterVec
	AdmissionScale       prometheus.Histogram
	RecalibrationsTotal  prometheus.Counter
	HealthScore          prometheus.Gauge
	LockedPatches        prometheus.Gauge
	PrunedPatchesTotal   *prometheus.CounterVec
}

// New builds a Recorder and registers its collectors with reg. Passing a
// prometheus.NewRegistry() per engine (rather than the global
// DefaultRegisterer) keeps multiple engines in one process independent,
// matching the "no module-level mutable state" rule applied to this repo.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		ObservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evidence",
			Name:      "observations_total",
			Help:      "Observations processed by the engine, by verdict.",
		}, []string{"verdict"}),
		AdmissionDeniedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evidence",
			Name:      "admission_denied_total",
			Help:      "Observations rejected by the admission controller, by reason.",
		}, []string{"reason"}),
		AdmissionScale: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "evidence",
			Name:      "admission_scale",
			Help:      "Quality scale factor applied by the admission controller.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
		RecalibrationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "evidence",
			Name:      "aggregator_recalibrations_total",
			Help:      "Bucketed aggregator recalibration passes run.",
		}),
		HealthScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "evidence",
			Name:      "health_score",
			Help:      "Current engine health score in [0,1].",
		}),
		LockedPatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "evidence",
			Name:      "locked_patches",
			Help:      "Number of patches currently locked.",
		}),
		PrunedPatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evidence",
			Name:      "pruned_patches_total",
			Help:      "Patches evicted by capacity pruning, by prune strategy.",
		}, []string{"strategy"}),
	}

	if reg != nil {
		reg.MustRegister(
			r.ObservationsTotal,
			r.AdmissionDeniedTotal,
			r.AdmissionScale,
			r.RecalibrationsTotal,
			r.HealthScore,
			r.LockedPatches,
			r.PrunedPatchesTotal,
		)
	}

	return r
}

// NewUnregistered builds a Recorder whose collectors exist but are not
// attached to any registry, for tests that only want to observe values
// and never scrape them.
func NewUnregistered() *Recorder {
	return New(nil)
}
