package phoenix

import (
	"context"
	"time"
)

// contextWithTimeoutMs is a small convenience over context.WithTimeout that
// takes a millisecond duration, matching the wire/config representation
// used throughout the protocol (timeouts, batch windows).
func contextWithTimeoutMs(parent context.Context, ms int64) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, time.Duration(ms)*time.Millisecond)
}
