package phoenix

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// SupervisorState is the Reconnect Supervisor's state machine position.
type SupervisorState int

const (
	StateConnected SupervisorState = iota
	StateLost
	StateBackoff
	StateConnecting
	StateError
)

func (s SupervisorState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateLost:
		return "lost"
	case StateBackoff:
		return "backoff"
	case StateConnecting:
		return "connecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Dialer opens a fresh transport. The endpoint and any auth header for
// re-dials are baked in by the caller's closure; only an error is returned.
type Dialer func(ctx context.Context) error

// Reconnect drives Connected -> Lost -> Backoff(n) -> Connecting -> Connected,
// capped at maxAttempts, after which it transitions to Error and stops.
// Concurrent callers that observe a dead transport collapse onto a single
// in-flight reconnect attempt via singleflight.
type Reconnect struct {
	logger      *slog.Logger
	dial        Dialer
	backoff     time.Duration
	maxAttempts int

	mu    sync.Mutex
	state SupervisorState
	group singleflight.Group

	onStateChange func(SupervisorState)
}

// NewReconnect constructs a supervisor with a fixed backoff delay and a cap
// on consecutive failed attempts.
func NewReconnect(logger *slog.Logger, dial Dialer, backoff time.Duration, maxAttempts int, onStateChange func(SupervisorState)) *Reconnect {
	if logger == nil {
		logger = slog.Default()
	}
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Reconnect{
		logger:        logger,
		dial:          dial,
		backoff:       backoff,
		maxAttempts:   maxAttempts,
		state:         StateConnected,
		onStateChange: onStateChange,
	}
}

// ErrReconnectExhausted is returned once maxAttempts consecutive failures
// have occurred; the supervisor transitions to Error and will not retry
// again on its own.
var ErrReconnectExhausted = fmt.Errorf("phoenix: reconnect attempts exhausted")

// Recover runs (or joins an in-flight run of) the reconnect sequence:
// Lost -> Backoff -> Connecting -> Connected, retrying up to maxAttempts
// times with a fixed delay between attempts.
func (r *Reconnect) Recover(ctx context.Context) error {
	_, err, _ := r.group.Do("reconnect", func() (any, error) {
		r.setState(StateLost)

		var lastErr error
		for attempt := 1; attempt <= r.maxAttempts; attempt++ {
			r.setState(StateBackoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.backoff):
			}

			r.setState(StateConnecting)
			if err := r.dial(ctx); err != nil {
				lastErr = err
				r.logger.Warn("reconnect attempt failed", "attempt", attempt, "max_attempts", r.maxAttempts, "err", err)
				continue
			}

			r.setState(StateConnected)
			return nil, nil
		}

		r.setState(StateError)
		return nil, fmt.Errorf("%w after %d attempts: %v", ErrReconnectExhausted, r.maxAttempts, lastErr)
	})
	return err
}

// State reports the current supervisor state.
func (r *Reconnect) State() SupervisorState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Reconnect) setState(s SupervisorState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	if r.onStateChange != nil {
		r.onStateChange(s)
	}
}
