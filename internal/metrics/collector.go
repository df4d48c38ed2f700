package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures the metrics collector's naming.
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Collector exposes the Prometheus series described in the metrics design:
// provider adapter call latency/errors, migration transfer duration/bytes,
// event bus publish/drop counts, and catalog refresh duration. It is mounted
// at the Control API's /metrics endpoint rather than serving its own port.
type Collector struct {
	enabled  bool
	registry *prometheus.Registry

	providerCallDuration *prometheus.HistogramVec
	providerCallErrors   *prometheus.CounterVec

	transferDuration *prometheus.HistogramVec
	transferBytes    *prometheus.CounterVec

	eventsPublished *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec

	catalogRefreshDuration *prometheus.HistogramVec
	catalogObjectCount     *prometheus.GaugeVec
}

// NewCollector creates a Collector and registers its series. A nil Config
// uses the defaults (enabled, namespace "orchestrator"); a disabled Config
// returns a Collector whose record methods are no-ops.
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{Enabled: true, Namespace: "orchestrator"}
	}
	if config.Namespace == "" {
		config.Namespace = "orchestrator"
	}

	if !config.Enabled {
		return &Collector{enabled: false}, nil
	}

	registry := prometheus.NewRegistry()
	ns := config.Namespace

	c := &Collector{
		enabled:  true,
		registry: registry,
		providerCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Duration of provider adapter calls in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"provider", "operation"}),
		providerCallErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "provider",
			Name:      "call_errors_total",
			Help:      "Provider adapter call errors by taxonomy code.",
		}, []string{"provider", "operation", "code"}),
		transferDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "migration",
			Name:      "transfer_duration_seconds",
			Help:      "Duration of a single file transfer in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 15),
		}, []string{"source_provider", "dest_provider"}),
		transferBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "migration",
			Name:      "transfer_bytes_total",
			Help:      "Bytes moved by completed file transfers.",
		}, []string{"source_provider", "dest_provider"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Events published to the bus by type.",
		}, []string{"event_type"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events dropped from a subscriber's queue because it fell behind.",
		}, []string{"subscription_id"}),
		catalogRefreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "catalog",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a catalog refresh against one provider.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"provider"}),
		catalogObjectCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "catalog",
			Name:      "object_count",
			Help:      "Number of objects currently held for a provider.",
		}, []string{"provider"}),
	}

	collectors := []prometheus.Collector{
		c.providerCallDuration,
		c.providerCallErrors,
		c.transferDuration,
		c.transferBytes,
		c.eventsPublished,
		c.eventsDropped,
		c.catalogRefreshDuration,
		c.catalogObjectCount,
	}
	for _, col := range collectors {
		if err := registry.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Handler returns the promhttp handler to mount at /metrics.
func (c *Collector) Handler() http.Handler {
	if !c.enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RecordProviderCall records one provider adapter call's latency and, on
// failure, its orcherr code.
func (c *Collector) RecordProviderCall(provider, operation string, duration time.Duration, errCode string) {
	if !c.enabled {
		return
	}
	c.providerCallDuration.With(prometheus.Labels{"provider": provider, "operation": operation}).Observe(duration.Seconds())
	if errCode != "" {
		c.providerCallErrors.With(prometheus.Labels{"provider": provider, "operation": operation, "code": errCode}).Inc()
	}
}

// RecordTransfer records a completed file transfer's duration and size.
func (c *Collector) RecordTransfer(sourceProvider, destProvider string, duration time.Duration, bytes int64) {
	if !c.enabled {
		return
	}
	labels := prometheus.Labels{"source_provider": sourceProvider, "dest_provider": destProvider}
	c.transferDuration.With(labels).Observe(duration.Seconds())
	c.transferBytes.With(labels).Add(float64(bytes))
}

// RecordEventPublished records one event published to the bus.
func (c *Collector) RecordEventPublished(eventType string) {
	if !c.enabled {
		return
	}
	c.eventsPublished.With(prometheus.Labels{"event_type": eventType}).Inc()
}

// RecordEventDropped records one event dropped from a subscriber's queue.
func (c *Collector) RecordEventDropped(subscriptionID string) {
	if !c.enabled {
		return
	}
	c.eventsDropped.With(prometheus.Labels{"subscription_id": subscriptionID}).Inc()
}

// RecordCatalogRefresh records one provider's catalog refresh duration and
// resulting object count.
func (c *Collector) RecordCatalogRefresh(provider string, duration time.Duration, objectCount int) {
	if !c.enabled {
		return
	}
	c.catalogRefreshDuration.With(prometheus.Labels{"provider": provider}).Observe(duration.Seconds())
	c.catalogObjectCount.With(prometheus.Labels{"provider": provider}).Set(float64(objectCount))
}
