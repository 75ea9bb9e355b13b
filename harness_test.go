package sensocto

import (
	"encoding/json"
	"log/slog"
	"sync"

	"sensocto/internal/phoenix"
)

// recordingWriter is a fake phoenix.Writer for root-package tests: it records
// every frame written and, for request-style frames (those carrying a ref),
// auto-resolves the Reply Registry with either a canned ok reply or whatever
// replyFor returns. Registration happens on the caller's goroutine before
// Write is ever invoked, so the awaiter is always present by the time Write
// runs and Resolve is called synchronously, inline.
type recordingWriter struct {
	mu       sync.Mutex
	frames   []phoenix.Frame
	registry *phoenix.Registry
	replyFor func(f phoenix.Frame) phoenix.Reply
}

func newRecordingWriter(registry *phoenix.Registry) *recordingWriter {
	return &recordingWriter{registry: registry}
}

func (w *recordingWriter) Write(wire []byte) error {
	f, err := phoenix.Decode(wire)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.frames = append(w.frames, f)
	w.mu.Unlock()

	if f.Ref == nil {
		return nil
	}
	reply := phoenix.Reply{Status: phoenix.StatusOK, Response: json.RawMessage(`{}`)}
	if w.replyFor != nil {
		reply = w.replyFor(f)
	}
	w.registry.Resolve(*f.Ref, reply)
	return nil
}

func (w *recordingWriter) all() []phoenix.Frame {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]phoenix.Frame, len(w.frames))
	copy(out, w.frames)
	return out
}

func (w *recordingWriter) last() phoenix.Frame {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames[len(w.frames)-1]
}

// newTestMux builds a Multiplexer wired to a recordingWriter, for tests that
// need a real substrate without a real socket.
func newTestMux() (*phoenix.Multiplexer, *recordingWriter) {
	logger := slog.New(slog.NewTextHandler(discardWriter{}, nil))
	refs := phoenix.NewRefAllocator()
	registry := phoenix.NewRegistry()
	w := newRecordingWriter(registry)
	mux := phoenix.NewMultiplexer(logger, w, refs, registry)
	return mux, w
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
