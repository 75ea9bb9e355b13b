package phoenix

import (
	"strconv"
	"sync/atomic"
)

// RefAllocator produces monotonically increasing, opaque correlation tokens
// unique within the lifetime of one transport connection. It is reset
// by its owner via Reset whenever a new transport is established (the root
// package's Client does so on every dial).
type RefAllocator struct {
	counter atomic.Uint64
}

// NewRefAllocator returns an allocator starting from zero.
func NewRefAllocator() *RefAllocator {
	return &RefAllocator{}
}

// Next returns the decimal string form of the next ref value. Safe for
// concurrent use.
func (a *RefAllocator) Next() string {
	v := a.counter.Add(1)
	return strconv.FormatUint(v, 10)
}

// Reset sets the counter back to zero, as happens when a fresh transport
// replaces a lost one.
func (a *RefAllocator) Reset() {
	a.counter.Store(0)
}
