package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediagw",
		Name:      "batches_total",
		Help:      "Batches processed, by operation and outcome code.",
	}, []string{"operation", "outcome"})
	BatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mediagw",
		Name:      "batch_duration_seconds",
		Help:      "Wall time of a batch once it holds a worker slot.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"operation"})
	ItemsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mediagw",
		Name:      "ocr_items_skipped_total",
		Help:      "Extraction items dropped because they could not be read or recognized.",
	})
	ItemsUploaded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mediagw",
		Name:      "upload_items_total",
		Help:      "Objects stored by successful upload batches.",
	})
	BatchesInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mediagw",
		Name:      "batches_in_flight",
		Help:      "Batches currently holding a worker slot.",
	})
)

var registerOnce sync.Once

// Init registers collectors with the default registry; safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(BatchesTotal, BatchDuration, ItemsSkipped, ItemsUploaded, BatchesInFlight)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
