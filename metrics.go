package sensocto

import "github.com/prometheus/client_golang/prometheus"

// metricsCollector holds the client's Prometheus metrics and implements
// prometheus.Collector directly, so Client.Metrics() can hand the caller one
// value to register rather than a slice. The caller is responsible for
// registering it into their own registry — this library never touches
// prometheus.DefaultRegisterer.
type metricsCollector struct {
	connected         prometheus.Gauge
	reconnectAttempts prometheus.Counter
	attentionLevel    *prometheus.GaugeVec
	batchFlushes      *prometheus.CounterVec
}

func newMetricsCollector() *metricsCollector {
	return &metricsCollector{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensocto_connection_state",
			Help: "1 when the client is connected, 0 otherwise.",
		}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensocto_reconnect_attempts_total",
			Help: "Total number of reconnect attempts made.",
		}),
		attentionLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sensocto_attention_level",
			Help: "Current backpressure attention level per sensor topic: 0=none, 1=low, 2=medium, 3=high.",
		}, []string{"topic"}),
		batchFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensocto_batch_flushes_total",
			Help: "Total number of non-empty batch flushes per sensor topic.",
		}, []string{"topic"}),
	}
}

func (m *metricsCollector) setConnected(v bool) {
	if v {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *metricsCollector) incReconnectAttempt() {
	m.reconnectAttempts.Inc()
}

func attentionLevelOrdinal(level AttentionLevel) float64 {
	switch level {
	case AttentionLow:
		return 1
	case AttentionMedium:
		return 2
	case AttentionHigh:
		return 3
	default:
		return 0
	}
}

func (m *metricsCollector) setAttentionLevel(topic string, level AttentionLevel) {
	m.attentionLevel.WithLabelValues(topic).Set(attentionLevelOrdinal(level))
}

func (m *metricsCollector) forgetTopic(topic string) {
	m.attentionLevel.DeleteLabelValues(topic)
}

func (m *metricsCollector) incBatchFlush(topic string) {
	m.batchFlushes.WithLabelValues(topic).Inc()
}

// Describe implements prometheus.Collector.
func (m *metricsCollector) Describe(ch chan<- *prometheus.Desc) {
	m.connected.Describe(ch)
	m.reconnectAttempts.Describe(ch)
	m.attentionLevel.Describe(ch)
	m.batchFlushes.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *metricsCollector) Collect(ch chan<- prometheus.Metric) {
	m.connected.Collect(ch)
	m.reconnectAttempts.Collect(ch)
	m.attentionLevel.Collect(ch)
	m.batchFlushes.Collect(ch)
}

// Metrics returns the client's connection-state gauge, reconnect-attempt
// counter, per-topic backpressure attention-level gauge, and batch-flush
// counters as a single prometheus.Collector, for the caller to register into
// their own prometheus.Registerer, e.g. registry.MustRegister(client.Metrics()).
func (c *Client) Metrics() prometheus.Collector {
	return c.metrics
}
