package sensocto

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// BackpressureObserver is notified after a sensor topic's BackpressureState
// changes.
type BackpressureObserver func(BackpressureState)

// backpressureController tracks the BackpressureState for every sensor
// topic and hands the updated state back to the owning Stream. It does not
// own the backpressure_config subscription: each Stream installs that
// handler on its own topic when it is constructed (see newStream), since the
// Multiplexer only dispatches per-topic.
type backpressureController struct {
	logger  *slog.Logger
	metrics *metricsCollector

	mu     sync.Mutex
	states map[string]BackpressureState // topic -> state
}

func newBackpressureController(logger *slog.Logger, metrics *metricsCollector) *backpressureController {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = newMetricsCollector()
	}
	return &backpressureController{logger: logger, metrics: metrics, states: make(map[string]BackpressureState)}
}

// State returns the current BackpressureState for topic, or the default
// {none, 5000ms, 20} if the server hasn't spoken yet.
func (c *backpressureController) State(topic string) BackpressureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[topic]; ok {
		return s
	}
	return defaultBackpressureState()
}

// handle parses an inbound backpressure_config payload for topic, updates
// the stored state, and returns it so the caller (the Stream) can notify its
// own observers. A new configuration never cancels an already-armed flush
// timer — that invariant lives in Stream, not here.
func (c *backpressureController) handle(topic string, payload json.RawMessage) (BackpressureState, error) {
	var p backpressureConfigPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return BackpressureState{}, newProtocolError(err)
	}
	s := stateFromPayload(p)

	c.mu.Lock()
	c.states[topic] = s
	c.mu.Unlock()
	c.metrics.setAttentionLevel(topic, s.AttentionLevel)

	c.logger.Debug("backpressure state updated", "topic", topic, "attention_level", s.AttentionLevel, "batch_window_ms", s.BatchWindowMs, "batch_size", s.BatchSize)
	return s, nil
}

// forget removes topic's tracked state, called when a stream leaves.
func (c *backpressureController) forget(topic string) {
	c.mu.Lock()
	delete(c.states, topic)
	c.mu.Unlock()
	c.metrics.forgetTopic(topic)
}
