package phoenix

import (
	"context"
	"testing"
	"time"
)

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	done := make(chan struct{})
	var got Reply
	var err error
	go func() {
		got, err = r.Await(context.Background(), "1", 1000)
		close(done)
	}()

	// Give the awaiter a moment to register.
	for r.Pending() == 0 {
		time.Sleep(time.Millisecond)
	}
	if !r.Resolve("1", Reply{Status: StatusOK}) {
		t.Fatal("expected Resolve to find the awaiter")
	}
	<-done
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusOK {
		t.Fatalf("unexpected reply: %+v", got)
	}
}

func TestRegistryTimeout(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Await(ctx, "2", 20)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var te *TimeoutError
	if !isTimeoutError(err, &te) {
		t.Fatalf("expected *TimeoutError, got %T: %v", err, err)
	}
}

func isTimeoutError(err error, target **TimeoutError) bool {
	if te, ok := err.(*TimeoutError); ok {
		*target = te
		return true
	}
	return false
}

func TestRegistryFailAll(t *testing.T) {
	r := NewRegistry()
	done := make(chan error, 1)
	go func() {
		_, err := r.Await(context.Background(), "3", 1000)
		done <- err
	}()
	for r.Pending() == 0 {
		time.Sleep(time.Millisecond)
	}
	r.FailAll(ErrDisconnected)
	if err := <-done; err != ErrDisconnected {
		t.Fatalf("expected ErrDisconnected, got %v", err)
	}
}

func TestRegistryLateReplyDroppedSilently(t *testing.T) {
	r := NewRegistry()
	if r.Resolve("unregistered", Reply{Status: StatusOK}) {
		t.Fatal("expected Resolve on unknown ref to report false")
	}
}
