package phoenix

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// ChannelState is the lifecycle state of one multiplexed topic.
type ChannelState int

const (
	Pending ChannelState = iota
	Joined
	Leaving
	Left
)

func (s ChannelState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Joined:
		return "joined"
	case Leaving:
		return "leaving"
	case Left:
		return "left"
	default:
		return "unknown"
	}
}

// Handler receives an inbound frame's payload for one (topic, event)
// subscription. It must not block the dispatcher; long work should be
// handed off.
type Handler func(topic, event string, payload json.RawMessage)

// channel is the Multiplexer's bookkeeping record for one topic.
type channel struct {
	topic      string
	joinParams any
	state      ChannelState
	subs       map[string][]Handler // event -> ordered handlers
}

// Writer is the minimal surface the Multiplexer needs from a Transport: a
// serialized, best-effort write of an already-encoded frame.
type Writer interface {
	Write([]byte) error
}

// Multiplexer tracks joined topics, their join parameters, and per-topic
// per-event subscriber lists, and routes inbound frames to either the Reply
// Registry or the matching subscriber list.
type Multiplexer struct {
	logger   *slog.Logger
	writer   Writer
	refs     *RefAllocator
	registry *Registry

	mu       sync.Mutex
	channels map[string]*channel
}

// NewMultiplexer constructs a Multiplexer bound to writer for outbound
// frames, refs for ref allocation, and registry for reply correlation.
func NewMultiplexer(logger *slog.Logger, writer Writer, refs *RefAllocator, registry *Registry) *Multiplexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multiplexer{
		logger:   logger,
		writer:   writer,
		refs:     refs,
		registry: registry,
		channels: make(map[string]*channel),
	}
}

// Subscribe records the channel with its join parameters but does not send a
// join frame. Idempotent on topic: subsequent calls update join_params
// without resetting state.
func (m *Multiplexer) Subscribe(topic string, joinParams any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[topic]
	if !ok {
		ch = &channel{topic: topic, state: Pending, subs: make(map[string][]Handler)}
		m.channels[topic] = ch
	}
	ch.joinParams = joinParams
}

// ChannelJoinError reports that the server rejected a phx_join.
type ChannelJoinError struct {
	Topic  string
	Reason string
}

func (e *ChannelJoinError) Error() string {
	return fmt.Sprintf("phoenix: join %q rejected: %s", e.Topic, e.Reason)
}

// Join sends phx_join with the recorded params and awaits the reply,
// transitioning the channel to Joined on success.
func (m *Multiplexer) Join(ctx context.Context, topic string, timeoutMs int64) error {
	_, err := m.JoinWithReply(ctx, topic, timeoutMs)
	return err
}

// JoinWithReply behaves like Join but also returns the server's reply
// payload, for callers (such as a call session reading ice_servers) that
// need more than the ok/error signal.
func (m *Multiplexer) JoinWithReply(ctx context.Context, topic string, timeoutMs int64) (Reply, error) {
	m.mu.Lock()
	ch, ok := m.channels[topic]
	if !ok {
		ch = &channel{topic: topic, state: Pending, subs: make(map[string][]Handler)}
		m.channels[topic] = ch
	}
	params := ch.joinParams
	m.mu.Unlock()

	reply, err := m.request(ctx, topic, EventJoin, params, timeoutMs)
	if err != nil {
		return Reply{}, err
	}
	if reply.Status != StatusOK {
		return Reply{}, &ChannelJoinError{Topic: topic, Reason: reasonFrom(reply)}
	}

	m.mu.Lock()
	ch.state = Joined
	m.mu.Unlock()
	return reply, nil
}

// Request sends a one-off request-style frame on an already-joined topic
// and awaits its reply, without touching channel lifecycle state. Used by
// higher-level facades (e.g. Call) for in-channel RPCs like join_call or
// toggle_audio.
func (m *Multiplexer) Request(ctx context.Context, topic, event string, payload any, timeoutMs int64) (Reply, error) {
	return m.request(ctx, topic, event, payload, timeoutMs)
}

// Leave sends phx_leave, transitions the channel to Left, and removes the
// record. Idempotent: leaving an already-left or unknown topic is a no-op.
func (m *Multiplexer) Leave(ctx context.Context, topic string, timeoutMs int64) error {
	m.mu.Lock()
	ch, ok := m.channels[topic]
	if !ok || ch.state == Left {
		m.mu.Unlock()
		return nil
	}
	ch.state = Leaving
	m.mu.Unlock()

	_, err := m.request(ctx, topic, EventLeave, nil, timeoutMs)

	m.mu.Lock()
	delete(m.channels, topic)
	m.mu.Unlock()

	return err
}

// On registers handler for (topic, event), appended in registration order.
func (m *Multiplexer) On(topic, event string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[topic]
	if !ok {
		ch = &channel{topic: topic, state: Pending, subs: make(map[string][]Handler)}
		m.channels[topic] = ch
	}
	ch.subs[event] = append(ch.subs[event], handler)
}

// Off removes handlers registered for (topic, event). A nil handler clears
// every subscriber for that (topic, event) pair.
func (m *Multiplexer) Off(topic, event string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[topic]
	if !ok {
		return
	}
	if handler == nil {
		delete(ch.subs, event)
		return
	}
	// Handlers are incomparable func values in general; clearing by value
	// identity is unreliable, so Off(topic, event, non-nil) is a best-effort
	// no-op here and callers should prefer Off(topic, event, nil).
}

// Dispatch routes one inbound frame: phx_reply frames with a registered ref
// go to the Reply Registry; everything else is fanned out to subscribers of
// (topic, event) in registration order. Handler panics are caught and
// logged so the dispatcher keeps running.
func (m *Multiplexer) Dispatch(f Frame) {
	if f.Event == EventReply && f.Ref != nil {
		reply, err := DecodeReply(f)
		if err != nil {
			m.logger.Warn("malformed phx_reply payload", "topic", f.Topic, "ref", *f.Ref, "err", err)
			return
		}
		if m.registry.Resolve(*f.Ref, reply) {
			return
		}
		// Unregistered ref: fall through to subscriber dispatch in case a
		// caller wants visibility into replies it didn't await.
	}

	m.mu.Lock()
	ch, ok := m.channels[f.Topic]
	var handlers []Handler
	if ok {
		handlers = append(handlers, ch.subs[f.Event]...)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		m.invoke(h, f)
	}
}

func (m *Multiplexer) invoke(h Handler, f Frame) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("subscriber handler panicked", "topic", f.Topic, "event", f.Event, "recover", r)
		}
	}()
	h(f.Topic, f.Event, f.Payload)
}

// RejoinAll marks every Pending or Joined channel Pending and re-emits
// phx_join for each, invoked after a fresh transport is established.
// Failures for individual topics are recorded but do not stop the rest.
func (m *Multiplexer) RejoinAll(ctx context.Context, timeoutMs int64) map[string]error {
	m.mu.Lock()
	topics := make([]string, 0, len(m.channels))
	for topic, ch := range m.channels {
		if ch.state == Pending || ch.state == Joined {
			ch.state = Pending
			topics = append(topics, topic)
		}
	}
	m.mu.Unlock()

	failures := make(map[string]error)
	for _, topic := range topics {
		if err := m.Join(ctx, topic, timeoutMs); err != nil {
			failures[topic] = err
			m.logger.Warn("rejoin failed", "topic", topic, "err", err)
		}
	}
	return failures
}

// State reports the lifecycle state of topic, and whether it is known at all.
func (m *Multiplexer) State(topic string) (ChannelState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[topic]
	if !ok {
		return Left, false
	}
	return ch.state, true
}

// request allocates a ref, writes a frame, and awaits its reply.
func (m *Multiplexer) request(ctx context.Context, topic, event string, payload any, timeoutMs int64) (Reply, error) {
	ref := m.refs.Next()
	frame, err := NewFrame(topic, event, payload, &ref)
	if err != nil {
		return Reply{}, err
	}
	wire, err := Encode(frame)
	if err != nil {
		return Reply{}, err
	}

	reqCtx := ctx
	var cancel context.CancelFunc
	if timeoutMs > 0 {
		reqCtx, cancel = contextWithTimeoutMs(ctx, timeoutMs)
		defer cancel()
	}

	// Register synchronously, on this goroutine, before writing: a reply
	// racing in via Dispatch must always find the awaiter already in the
	// map, never a window where it's been dropped by Resolve.
	a := m.registry.Register(ref)

	if err := m.writer.Write(wire); err != nil {
		m.registry.Resolve(ref, Reply{})
		return Reply{}, fmt.Errorf("write %s:%s: %w", topic, event, err)
	}

	return m.registry.Wait(reqCtx, ref, a, timeoutMs)
}

// Emit writes a one-way frame (no ref, no reply awaited).
func (m *Multiplexer) Emit(topic, event string, payload any) error {
	frame, err := NewFrame(topic, event, payload, nil)
	if err != nil {
		return err
	}
	wire, err := Encode(frame)
	if err != nil {
		return err
	}
	if err := m.writer.Write(wire); err != nil {
		return fmt.Errorf("write %s:%s: %w", topic, event, err)
	}
	return nil
}

func reasonFrom(r Reply) string {
	if len(r.Response) == 0 {
		return "unknown"
	}
	var obj map[string]any
	if err := json.Unmarshal(r.Response, &obj); err == nil {
		if reason, ok := obj["reason"].(string); ok {
			return reason
		}
	}
	return string(r.Response)
}
