package phoenix

import (
	"context"
	"log/slog"
	"time"
)

// Heartbeat periodically emits a liveness frame on the reserved phoenix
// topic and signals the owner when a heartbeat write fails or its reply
// goes missing.
type Heartbeat struct {
	logger   *slog.Logger
	mux      *Multiplexer
	interval time.Duration
	onLost   func()

	cancel context.CancelFunc
}

// NewHeartbeat constructs a driver that will emit on mux every interval
// (clamped to a minimum of one second) once Start is called. onLost is
// invoked each time a heartbeat write fails or a heartbeat reply is not
// observed within 2*interval; the driver does not deduplicate these calls.
func NewHeartbeat(logger *slog.Logger, mux *Multiplexer, interval time.Duration, onLost func()) *Heartbeat {
	if logger == nil {
		logger = slog.Default()
	}
	if interval < time.Second {
		interval = time.Second
	}
	return &Heartbeat{logger: logger, mux: mux, interval: interval, onLost: onLost}
}

// Start begins the periodic emission loop. Calling Start again after Stop
// begins a fresh loop, as happens on reconnect.
func (h *Heartbeat) Start(ctx context.Context, refs *RefAllocator, registry *Registry) {
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	go func() {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.beat(ctx, refs, registry)
			}
		}
	}()
}

func (h *Heartbeat) beat(ctx context.Context, refs *RefAllocator, registry *Registry) {
	ref := refs.Next()
	frame, err := NewFrame(ReservedTopic, EventHeartbeat, nil, &ref)
	if err != nil {
		h.logger.Error("encode heartbeat frame", "err", err)
		return
	}
	wire, err := Encode(frame)
	if err != nil {
		h.logger.Error("encode heartbeat frame", "err", err)
		return
	}

	deadline := 2 * h.interval
	awaitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	// Register synchronously before writing: a reply racing in via
	// Dispatch must always find the awaiter already in the map.
	a := registry.Register(ref)

	if err := h.mux.writer.Write(wire); err != nil {
		registry.Resolve(ref, Reply{})
		h.logger.Warn("heartbeat write failed", "err", err)
		h.signalLost()
		return
	}

	if _, err := registry.Wait(awaitCtx, ref, a, deadline.Milliseconds()); err != nil {
		h.logger.Warn("heartbeat reply missed, treating as transport loss", "deadline", deadline)
		h.signalLost()
	}
}

func (h *Heartbeat) signalLost() {
	if h.onLost != nil {
		h.onLost()
	}
}

// Stop cancels the periodic loop. Safe to call multiple times.
func (h *Heartbeat) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
}
