package phoenix

import (
	"context"
	"fmt"
	"sync"
)

// TimeoutError reports that an awaiter's deadline elapsed before a matching
// reply arrived.
type TimeoutError struct {
	TimeoutMs int64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("phoenix: awaiter timed out after %dms", e.TimeoutMs)
}

type awaiter struct {
	slot chan awaiterResult
	done bool // guarded by Registry.mu
}

type awaiterResult struct {
	reply Reply
	err   error
}

// Registry holds awaiters keyed by ref and resolves each exactly once: by a
// matching reply, by deadline, or by transport loss.
type Registry struct {
	mu       sync.Mutex
	awaiters map[string]*awaiter
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{awaiters: make(map[string]*awaiter)}
}

// Register synchronously installs the awaiter for ref, returning it for a
// subsequent Wait. It must complete on the caller's goroutine before the
// request frame is written, so a reply racing in via Dispatch -> Resolve can
// never find the map empty and be dropped.
func (r *Registry) Register(ref string) *awaiter {
	a := &awaiter{slot: make(chan awaiterResult, 1)}
	r.mu.Lock()
	r.awaiters[ref] = a
	r.mu.Unlock()
	return a
}

// Await registers ref and blocks until resolution or ctx's deadline/cancel.
// Resolution happens via Resolve, FailAll, or ctx expiring. Exactly one of
// the three ever completes a given ref's slot.
//
// Deprecated: registering and waiting in one call leaves a window, between
// the goroutine that runs Await being scheduled and its registration taking
// effect, during which a fast reply is silently dropped by Resolve. Callers
// that write a request frame after starting the wait must call Register on
// their own goroutine first, then Wait.
func (r *Registry) Await(ctx context.Context, ref string, timeoutMs int64) (Reply, error) {
	a := r.Register(ref)
	return r.Wait(ctx, ref, a, timeoutMs)
}

// Wait blocks on an awaiter previously installed by Register until
// resolution or ctx's deadline/cancel.
func (r *Registry) Wait(ctx context.Context, ref string, a *awaiter, timeoutMs int64) (Reply, error) {
	select {
	case res := <-a.slot:
		return res.reply, res.err
	case <-ctx.Done():
		r.mu.Lock()
		if cur, ok := r.awaiters[ref]; ok && cur == a && !a.done {
			a.done = true
			delete(r.awaiters, ref)
			r.mu.Unlock()
			return Reply{}, &TimeoutError{TimeoutMs: timeoutMs}
		}
		r.mu.Unlock()
		// Another goroutine resolved it between ctx firing and our lock;
		// take whatever was delivered.
		select {
		case res := <-a.slot:
			return res.reply, res.err
		default:
			return Reply{}, &TimeoutError{TimeoutMs: timeoutMs}
		}
	}
}

// Resolve completes the awaiter for ref with reply, if one is registered.
// Late replies for an unregistered ref are dropped silently, returning false.
func (r *Registry) Resolve(ref string, reply Reply) bool {
	r.mu.Lock()
	a, ok := r.awaiters[ref]
	if ok {
		delete(r.awaiters, ref)
	}
	r.mu.Unlock()
	if !ok || a.done {
		return false
	}
	a.done = true
	a.slot <- awaiterResult{reply: reply}
	return true
}

// FailAll fails every outstanding awaiter with err, as happens on transport
// loss before the Reconnect Supervisor attempts a new socket.
func (r *Registry) FailAll(err error) {
	r.mu.Lock()
	pending := r.awaiters
	r.awaiters = make(map[string]*awaiter)
	r.mu.Unlock()

	for _, a := range pending {
		a.done = true
		a.slot <- awaiterResult{err: err}
	}
}

// Pending reports the number of outstanding awaiters, for diagnostics/tests.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.awaiters)
}
