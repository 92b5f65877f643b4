// Package metrics exposes Prometheus instrumentation for the reactor loop.
//
// A nil *Collector is valid and records nothing, so the server can run
// without a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collector
type Config struct {
	// Namespace is the metrics namespace (default: "netserver").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collector
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "netserver",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector holds the reactor's metrics
type Collector struct {
	connectionsActive   prometheus.Gauge
	connectionsAccepted prometheus.Counter
	connectionsRejected prometheus.Counter
	connectionsClosed   prometheus.Counter
	messagesReceived    *prometheus.CounterVec
	textFallbacks       prometheus.Counter
	dispatchErrors      prometheus.Counter
	broadcastDeliveries prometheus.Counter
	passDuration        prometheus.Histogram
}

// New registers the reactor metrics
func New(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		})
	}

	return &Collector{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "connections_active",
			Help:        "Number of connections in the connection table",
			ConstLabels: config.ConstLabels,
		}),
		connectionsAccepted: counter("connections_accepted_total", "Total number of accepted connections"),
		connectionsRejected: counter("connections_rejected_total", "Total number of connections rejected at capacity"),
		connectionsClosed:   counter("connections_closed_total", "Total number of connections pruned from the table"),
		messagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "messages_received_total",
			Help:        "Total number of frames dispatched, by message type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),
		textFallbacks:       counter("text_fallbacks_total", "Total number of frames that did not decode and were wrapped as text"),
		dispatchErrors:      counter("dispatch_errors_total", "Total number of handler failures that closed a connection"),
		broadcastDeliveries: counter("broadcast_deliveries_total", "Total number of per-recipient broadcast sends"),
		passDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "reactor_pass_seconds",
			Help:        "Time spent processing ready connections in one reactor pass",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
}

// ConnectionAccepted records an accepted connection and the new table size
func (c *Collector) ConnectionAccepted(active int) {
	if c == nil {
		return
	}
	c.connectionsAccepted.Inc()
	c.connectionsActive.Set(float64(active))
}

// ConnectionRejected records a connection refused because the table was full
func (c *Collector) ConnectionRejected() {
	if c == nil {
		return
	}
	c.connectionsRejected.Inc()
}

// ConnectionsPruned records pruned connections and the new table size
func (c *Collector) ConnectionsPruned(pruned, active int) {
	if c == nil {
		return
	}
	c.connectionsClosed.Add(float64(pruned))
	c.connectionsActive.Set(float64(active))
}

// MessageReceived records one dispatched frame
func (c *Collector) MessageReceived(msgType string, fallback bool) {
	if c == nil {
		return
	}
	c.messagesReceived.WithLabelValues(msgType).Inc()
	if fallback {
		c.textFallbacks.Inc()
	}
}

// DispatchError records a handler failure
func (c *Collector) DispatchError() {
	if c == nil {
		return
	}
	c.dispatchErrors.Inc()
}

// BroadcastDelivered records per-recipient broadcast sends
func (c *Collector) BroadcastDelivered(n int) {
	if c == nil {
		return
	}
	c.broadcastDeliveries.Add(float64(n))
}

// ObservePass records the processing time of one reactor pass
func (c *Collector) ObservePass(d time.Duration) {
	if c == nil {
		return
	}
	c.passDuration.Observe(d.Seconds())
}
