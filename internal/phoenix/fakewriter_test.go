package phoenix

import "sync"

// fakeWriter records every frame written to it and lets tests drive replies
// back through a Multiplexer/Registry without a real socket.
type fakeWriter struct {
	mu       sync.Mutex
	written  []Frame
	failNext bool
}

func (w *fakeWriter) Write(wire []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failNext {
		w.failNext = false
		return errFakeWrite
	}
	f, err := Decode(wire)
	if err != nil {
		return err
	}
	w.written = append(w.written, f)
	return nil
}

func (w *fakeWriter) last() (Frame, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.written) == 0 {
		return Frame{}, false
	}
	return w.written[len(w.written)-1], true
}

func (w *fakeWriter) all() []Frame {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Frame, len(w.written))
	copy(out, w.written)
	return out
}

var errFakeWrite = fakeWriteError{}

type fakeWriteError struct{}

func (fakeWriteError) Error() string { return "fake write error" }
