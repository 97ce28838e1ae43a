// Package metrics exposes Prometheus collectors for the catalog.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the catalog collectors on their own registry.
type Metrics struct {
	Registry *prometheus.Registry

	RecordsIngested    prometheus.Counter
	RecordsDeleted     prometheus.Counter
	FlushUpdates       *prometheus.CounterVec
	Annotations        *prometheus.CounterVec
	AnnotationDuration prometheus.Histogram
	PendingRecords     prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RecordsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "picshelf_records_ingested_total",
			Help: "Records created by folder scans and the watcher.",
		}),
		RecordsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "picshelf_records_deleted_total",
			Help: "Records removed by explicit deletes.",
		}),
		FlushUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "picshelf_flush_updates_total",
			Help: "Field updates written by flushes.",
		}, []string{"result"}), // ok | failed
		Annotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "picshelf_annotations_total",
			Help: "Annotation items by outcome.",
		}, []string{"outcome"}), // annotated | failed | skipped
		AnnotationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "picshelf_annotation_call_seconds",
			Help:    "Duration of external annotation calls.",
			Buckets: prometheus.DefBuckets,
		}),
		PendingRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "picshelf_pending_records",
			Help: "Records with unsaved edits.",
		}),
	}
	m.Registry.MustRegister(
		m.RecordsIngested, m.RecordsDeleted, m.FlushUpdates,
		m.Annotations, m.AnnotationDuration, m.PendingRecords,
	)
	return m
}

// ObserveAnnotation records one annotation outcome. Skipped items made no
// call and are not timed.
func (m *Metrics) ObserveAnnotation(outcome string, took time.Duration) {
	m.Annotations.WithLabelValues(outcome).Inc()
	if took > 0 {
		m.AnnotationDuration.Observe(took.Seconds())
	}
}

// ObserveFlush records the outcome counts of one flush.
func (m *Metrics) ObserveFlush(succeeded, failed int) {
	m.FlushUpdates.WithLabelValues("ok").Add(float64(succeeded))
	m.FlushUpdates.WithLabelValues("failed").Add(float64(failed))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
