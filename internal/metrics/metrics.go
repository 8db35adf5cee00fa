// Registers:
//
//	#heatflow_snapshots_ingested_total
//	#heatflow_orders_ingested_total
//	#heatflow_feed_malformed_total{encoding}
//	#heatflow_feed_dropped_total{source}
//	#heatflow_frames_rendered_total
//	#heatflow_render_duration_seconds
//	#go_* and process_* system metrics
//
// Exposes them through Handler and, when an address is given, on a dedicated
// listener.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"heatflow/logger"
)

var (
	once     sync.Once
	registry = prometheus.NewRegistry()

	snapshotsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "heatflow_snapshots_ingested_total",
		Help: "Number of order book snapshots pushed into the heatmap buffer",
	})
	ordersIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "heatflow_orders_ingested_total",
		Help: "Number of order events appended to the order log",
	})
	feedMalformed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "heatflow_feed_malformed_total",
		Help: "Number of inbound feed messages dropped because they could not be decoded",
	}, []string{"encoding"})
	feedDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "heatflow_feed_dropped_total",
		Help: "Number of inbound feed messages dropped because the feed buffer was full",
	}, []string{"source"})
	framesRendered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "heatflow_frames_rendered_total",
		Help: "Number of heatmap frames rasterized",
	})
	renderDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "heatflow_render_duration_seconds",
		Help:    "Time spent rasterizing and encoding one heatmap frame",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
)

func init() {
	registry.MustRegister(
		snapshotsIngested,
		ordersIngested,
		feedMalformed,
		feedDropped,
		framesRendered,
		renderDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the heatflow registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Init starts a dedicated /metrics listener on address. An empty address
// leaves the metrics reachable only through Handler. Init is idempotent.
func Init(address string) {
	once.Do(func() {
		if address == "" {
			return
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", Handler())
		go func() {
			log := logger.GetLogger().WithComponent("metrics")
			log.WithFields(logger.Fields{"address": address}).Info("prometheus listener started")
			if err := http.ListenAndServe(address, mux); err != nil {
				log.WithError(err).Error("prometheus listener failed")
			}
		}()
	})
}

// IncSnapshotIngested counts one snapshot pushed into the buffer.
func IncSnapshotIngested() {
	snapshotsIngested.Inc()
}

// AddOrdersIngested counts n orders appended to the order log.
func AddOrdersIngested(n int) {
	if n > 0 {
		ordersIngested.Add(float64(n))
	}
}

// IncMalformed counts one undecodable message of the given encoding.
func IncMalformed(encoding string) {
	feedMalformed.WithLabelValues(encoding).Inc()
}

// IncFeedDropped counts one message dropped at the feed buffer.
func IncFeedDropped(source string) {
	feedDropped.WithLabelValues(source).Inc()
}

// ObserveRender records one rendered frame and the time it took.
func ObserveRender(d time.Duration) {
	framesRendered.Inc()
	renderDuration.Observe(d.Seconds())
}
