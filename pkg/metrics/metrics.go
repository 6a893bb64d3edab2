// Package metrics exposes Prometheus counters for template operations and ticket triggers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "blueprint"

// Recorder holds the counters. A nil *Recorder is valid and records nothing.
type Recorder struct {
	gatherer prometheus.Gatherer

	triggers  *prometheus.CounterVec
	reorders  *prometheus.CounterVec
	conflicts *prometheus.CounterVec
	clones    *prometheus.CounterVec
	rollups   *prometheus.CounterVec
}

// NewRecorder registers the counters on a fresh registry.
func NewRecorder() *Recorder {
	return NewRecorderWith(prometheus.NewRegistry())
}

// NewRecorderWith registers the counters on reg.
func NewRecorderWith(reg *prometheus.Registry) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		gatherer: reg,
		triggers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticket_generation_triggers_total",
			Help:      "Ticket generation signals by outcome (signaled, failed, duplicate, resignaled).",
		}, []string{"outcome"}),
		reorders: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reorders_total",
			Help:      "Applied reorders by entity kind and mode (move, bulk).",
		}, []string{"kind", "mode"}),
		conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Operations rejected because storage changed underneath them.",
		}, []string{"operation"}),
		clones: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clones_total",
			Help:      "Workflow template clones by depth (workflow, milestones, tasks).",
		}, []string{"depth"}),
		rollups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollups_total",
			Help:      "Rollup recomputations by level and whether the stored value changed.",
		}, []string{"level", "changed"}),
	}
}

func (r *Recorder) Trigger(outcome string) {
	if r == nil {
		return
	}

	r.triggers.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Reorder(kind, mode string) {
	if r == nil {
		return
	}

	r.reorders.WithLabelValues(kind, mode).Inc()
}

func (r *Recorder) Conflict(operation string) {
	if r == nil {
		return
	}

	r.conflicts.WithLabelValues(operation).Inc()
}

func (r *Recorder) Clone(depth string) {
	if r == nil {
		return
	}

	r.clones.WithLabelValues(depth).Inc()
}

func (r *Recorder) Rollup(level string, changed bool) {
	if r == nil {
		return
	}

	label := "false"
	if changed {
		label = "true"
	}

	r.rollups.WithLabelValues(level, label).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
