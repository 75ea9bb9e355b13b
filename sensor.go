package sensocto

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"sensocto/internal/phoenix"
)

var attributeIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,63}$`)

// ValidateAttributeID checks attribute_id against
// `^[A-Za-z][A-Za-z0-9_-]{0,63}$`, returning InvalidAttributeIdError on
// failure.
func ValidateAttributeID(attributeID string) error {
	if attributeID == "" {
		return newInvalidAttributeIDError(attributeID, "attribute id cannot be empty")
	}
	if len(attributeID) > 64 {
		return newInvalidAttributeIDError(attributeID, "attribute id cannot exceed 64 characters")
	}
	if !attributeIDPattern.MatchString(attributeID) {
		return newInvalidAttributeIDError(attributeID, "attribute id must start with a letter and contain only alphanumeric characters, underscores, or hyphens")
	}
	return nil
}

// AttributeAction is the action field of an update_attributes frame.
type AttributeAction string

const (
	AttributeAdd    AttributeAction = "add"
	AttributeRemove AttributeAction = "remove"
	AttributeUpdate AttributeAction = "update"
)

// Stream is the per-sensor facade: join, send a single measurement, enqueue
// into the batch buffer, flush. It holds a weak reference to the owning
// Client's substrate — closing the Client invalidates every Stream's
// subsequent operations with ErrDisconnected.
type Stream struct {
	logger  *slog.Logger
	mux     *phoenix.Multiplexer
	bp      *backpressureController
	metrics *metricsCollector

	topic    string
	sensorID string
	config   SensorConfig

	connected func() bool

	mu      sync.Mutex
	buffer  []Measurement
	timer   *time.Timer
	joined  bool

	observerMu sync.Mutex
	observer   BackpressureObserver
}

func newStream(logger *slog.Logger, mux *phoenix.Multiplexer, bp *backpressureController, metrics *metricsCollector, sensorID string, config SensorConfig, connected func() bool) *Stream {
	if metrics == nil {
		metrics = newMetricsCollector()
	}
	topic := fmt.Sprintf("sensocto:sensor:%s", sensorID)
	s := &Stream{
		logger:    logger,
		mux:       mux,
		bp:        bp,
		metrics:   metrics,
		topic:     topic,
		sensorID:  sensorID,
		config:    config,
		connected: connected,
	}
	mux.On(topic, "backpressure_config", func(topic, event string, payload json.RawMessage) {
		state, err := bp.handle(topic, payload)
		if err != nil {
			s.logger.Warn("malformed backpressure_config payload", "topic", topic, "err", err)
			return
		}
		s.notifyBackpressure(state)
	})
	return s
}

// SensorID returns the sensor identifier this stream was constructed with.
func (s *Stream) SensorID() string { return s.sensorID }

// Topic returns the channel topic this stream is bound to.
func (s *Stream) Topic() string { return s.topic }

// IsActive reports whether the stream has successfully joined and the
// underlying transport is currently connected.
func (s *Stream) IsActive() bool {
	s.mu.Lock()
	joined := s.joined
	s.mu.Unlock()
	return joined && s.connected()
}

// BackpressureState returns the stream's current batching configuration.
func (s *Stream) BackpressureState() BackpressureState {
	return s.bp.State(s.topic)
}

// OnBackpressure installs an observer invoked after each BackpressureState
// change for this topic. Only one observer may be installed at a time;
// calling again replaces the previous one.
func (s *Stream) OnBackpressure(handler BackpressureObserver) {
	s.observerMu.Lock()
	s.observer = handler
	s.observerMu.Unlock()
}

func (s *Stream) notifyBackpressure(state BackpressureState) {
	s.observerMu.Lock()
	handler := s.observer
	s.observerMu.Unlock()
	if handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("backpressure observer panicked", "topic", s.topic, "recover", r)
		}
	}()
	handler(state)
}

// Join binds the stream to its sensocto:sensor:<sensor_id> topic, sending
// phx_join with joinParams (the exact keys from the external interfaces
// section: connector_id, connector_name, sensor_id, sensor_name, sensor_type,
// attributes, sampling_rate, batch_size, bearer_token).
func (s *Stream) Join(ctx context.Context, joinParams any, timeoutMs int64) error {
	s.mux.Subscribe(s.topic, joinParams)
	if err := s.mux.Join(ctx, s.topic, timeoutMs); err != nil {
		return translatePhoenixError(err)
	}
	s.mu.Lock()
	s.joined = true
	s.mu.Unlock()
	s.logger.Info("joined sensor channel", "topic", s.topic)
	return nil
}

// SendMeasurement validates attribute_id, fills timestamp with now if nil,
// and emits a one-way measurement frame, bypassing the batch buffer.
func (s *Stream) SendMeasurement(attributeID string, payload any, timestampMs *int64) error {
	if !s.IsActive() {
		return ErrDisconnected
	}
	if err := ValidateAttributeID(attributeID); err != nil {
		return err
	}

	ts := resolveTimestamp(timestampMs)
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal measurement payload: %w", err)
	}

	msg := Measurement{AttributeID: attributeID, Payload: raw, TimestampMs: ts}
	if err := s.mux.Emit(s.topic, "measurement", msg); err != nil {
		return translatePhoenixError(err)
	}
	return nil
}

// AddToBatch enqueues into the BatchBuffer. If the buffer's length after
// insertion is >= the active batch_size, it flushes immediately; otherwise
// it arms a flush timer for batch_window_ms from the first enqueue since the
// last flush. The timer is created lazily and deliberately not reset by
// later enqueues.
func (s *Stream) AddToBatch(attributeID string, payload any, timestampMs *int64) error {
	if !s.IsActive() {
		return ErrDisconnected
	}
	if err := ValidateAttributeID(attributeID); err != nil {
		return err
	}

	ts := resolveTimestamp(timestampMs)
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal measurement payload: %w", err)
	}
	m := Measurement{AttributeID: attributeID, Payload: raw, TimestampMs: ts}

	state := s.BackpressureState()

	s.mu.Lock()
	s.buffer = append(s.buffer, m)
	shouldFlush := len(s.buffer) >= state.BatchSize
	armTimer := !shouldFlush && s.timer == nil
	if armTimer {
		window := time.Duration(state.BatchWindowMs) * time.Millisecond
		s.timer = time.AfterFunc(window, s.timerFlush)
	}
	s.mu.Unlock()

	if shouldFlush {
		return s.FlushBatch()
	}
	return nil
}

func (s *Stream) timerFlush() {
	if err := s.FlushBatch(); err != nil {
		s.logger.Warn("scheduled batch flush failed", "topic", s.topic, "err", err)
	}
}

// FlushBatch atomically drains the buffer and emits either a single
// measurement frame (length == 1) or a measurements_batch frame (length >=
// 2); nothing is emitted for an empty buffer.
func (s *Stream) FlushBatch() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	drained := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	if len(drained) == 0 {
		return nil
	}

	s.logger.Debug("flushing batch", "topic", s.topic, "count", len(drained))
	s.metrics.incBatchFlush(s.topic)

	if len(drained) == 1 {
		if err := s.mux.Emit(s.topic, "measurement", drained[0]); err != nil {
			return translatePhoenixError(err)
		}
		return nil
	}
	if err := s.mux.Emit(s.topic, "measurements_batch", drained); err != nil {
		return translatePhoenixError(err)
	}
	return nil
}

// UpdateAttribute emits a one-way update_attributes frame.
func (s *Stream) UpdateAttribute(action AttributeAction, attributeID string, metadata map[string]any) error {
	if !s.IsActive() {
		return ErrDisconnected
	}
	if err := ValidateAttributeID(attributeID); err != nil {
		return err
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	payload := map[string]any{
		"action":       string(action),
		"attribute_id": attributeID,
		"metadata":     metadata,
	}
	if err := s.mux.Emit(s.topic, "update_attributes", payload); err != nil {
		return translatePhoenixError(err)
	}
	return nil
}

// Leave flushes pending measurements then sends phx_leave. Idempotent.
func (s *Stream) Leave(ctx context.Context, timeoutMs int64) error {
	s.mu.Lock()
	joined := s.joined
	s.mu.Unlock()
	if !joined {
		return nil
	}

	if err := s.FlushBatch(); err != nil {
		s.logger.Warn("flush on leave failed", "topic", s.topic, "err", err)
	}

	err := s.mux.Leave(ctx, s.topic, timeoutMs)
	s.mu.Lock()
	s.joined = false
	s.mu.Unlock()
	s.bp.forget(s.topic)

	if err != nil {
		return translatePhoenixError(err)
	}
	s.logger.Info("left sensor channel", "topic", s.topic)
	return nil
}

// Close is an alias for Leave, matching the facade's close-the-facet idiom
// used throughout the substrate.
func (s *Stream) Close(ctx context.Context, timeoutMs int64) error {
	return s.Leave(ctx, timeoutMs)
}

func resolveTimestamp(ts *int64) int64 {
	if ts != nil {
		return *ts
	}
	return time.Now().UnixMilli()
}
