package transport

import (
	"testing"
)

func TestCancellationHandleCancelIsIdempotent(t *testing.T) {
	h := NewCancellationHandle()
	calls := 0
	h.AddHandler(func() { calls++ })
	h.Cancel()
	h.Cancel()
	h.Cancel()
	if calls != 1 {
		t.Errorf("handler ran %d times, want 1", calls)
	}
	if !h.IsCancelled() {
		t.Error("IsCancelled() = false after Cancel()")
	}
	select {
	case <-h.Cancelled():
	default:
		t.Error("Cancelled() channel should be closed after Cancel()")
	}
}

func TestCancellationHandleAddHandlerAfterCancelRunsImmediately(t *testing.T) {
	h := NewCancellationHandle()
	h.Cancel()
	ran := false
	h.AddHandler(func() { ran = true })
	if !ran {
		t.Error("handler added after Cancel() should run immediately")
	}
}

func TestCancellationHandleRemoveHandler(t *testing.T) {
	h := NewCancellationHandle()
	calls := 0
	id := h.AddHandler(func() { calls++ })
	h.RemoveHandler(id)
	h.Cancel()
	if calls != 0 {
		t.Errorf("removed handler ran %d times, want 0", calls)
	}
}

func TestMethodDescriptorFullMethod(t *testing.T) {
	d := MethodDescriptor{Service: "pkg.Echo", Method: "Say"}
	if got, want := d.FullMethod(), "/pkg.Echo/Say"; got != want {
		t.Errorf("FullMethod() = %q, want %q", got, want)
	}
}
