package status

import (
	"errors"
	"testing"

	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/metadata"
)

func TestErrNilIffOK(t *testing.T) {
	if err := New(codes.OK, "fine").Err(); err != nil {
		t.Errorf("Err() on OK status = %v, want nil", err)
	}
	if err := New(codes.Internal, "broken").Err(); err == nil {
		t.Error("Err() on non-OK status = nil, want non-nil")
	}
}

func TestErrorNilOnOK(t *testing.T) {
	if err := Error(codes.OK, "fine", metadata.MD{}); err != nil {
		t.Errorf("Error(OK, ...) = %v, want nil", err)
	}
}

func TestErrorRoundTrip(t *testing.T) {
	md := metadata.Pairs("x-debug", "1")
	err := Error(codes.NotFound, "no such widget", md)
	if err == nil {
		t.Fatal("Error(NotFound, ...) = nil")
	}
	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("Error(...) returned %T, want *RPCError", err)
	}
	if rpcErr.Code() != codes.NotFound {
		t.Errorf("Code() = %v, want NotFound", rpcErr.Code())
	}
	if rpcErr.Message() != "no such widget" {
		t.Errorf("Message() = %q", rpcErr.Message())
	}
	if v, _ := rpcErr.Metadata().Get("x-debug"); v != "1" {
		t.Errorf("Metadata() lost x-debug: %v", rpcErr.Metadata())
	}
}

func TestFromErrorNil(t *testing.T) {
	s, ok := FromError(nil)
	if !ok || s.Code() != codes.OK {
		t.Errorf("FromError(nil) = (%v, %v), want (OK, true)", s.Code(), ok)
	}
}

func TestFromErrorRPCError(t *testing.T) {
	original := Error(codes.Aborted, "conflict", metadata.MD{})
	s, ok := FromError(original)
	if !ok || s.Code() != codes.Aborted || s.Message() != "conflict" {
		t.Errorf("FromError(rpcErr) = (%v, %q, %v)", s.Code(), s.Message(), ok)
	}
}

func TestFromErrorPlain(t *testing.T) {
	s, ok := FromError(errors.New("boom"))
	if ok {
		t.Error("FromError(plain error) ok = true, want false")
	}
	if s.Code() != codes.Unknown || s.Message() != "boom" {
		t.Errorf("FromError(plain error) = (%v, %q)", s.Code(), s.Message())
	}
}

func TestToRPCErrorWrapsAndPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := ToRPCError(cause)
	rpcErr, ok := wrapped.(*RPCError)
	if !ok {
		t.Fatalf("ToRPCError(plain) returned %T, want *RPCError", wrapped)
	}
	if rpcErr.Code() != codes.Unknown {
		t.Errorf("Code() = %v, want Unknown", rpcErr.Code())
	}
	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is(wrapped, cause) = false, want true")
	}
}

func TestToRPCErrorPassesThroughRPCError(t *testing.T) {
	original := Error(codes.Internal, "oops", metadata.MD{})
	if ToRPCError(original) != original {
		t.Error("ToRPCError(rpcErr) should return the same value unchanged")
	}
}

func TestToRPCErrorNil(t *testing.T) {
	if ToRPCError(nil) != nil {
		t.Error("ToRPCError(nil) should be nil")
	}
}

func TestCodeConvenience(t *testing.T) {
	if Code(nil) != codes.OK {
		t.Error("Code(nil) should be OK")
	}
	if Code(Error(codes.Canceled, "stop", metadata.MD{})) != codes.Canceled {
		t.Error("Code(rpcErr) should match the wrapped code")
	}
}

func TestFromHTTPStatus(t *testing.T) {
	cases := map[int]codes.Code{
		400: codes.Internal,
		401: codes.Unauthenticated,
		403: codes.PermissionDenied,
		404: codes.Unimplemented,
		429: codes.Unavailable,
		502: codes.Unavailable,
		503: codes.Unavailable,
		504: codes.Unavailable,
		418: codes.Unknown,
	}
	for httpStatus, want := range cases {
		if got := FromHTTPStatus(httpStatus); got != want {
			t.Errorf("FromHTTPStatus(%d) = %v, want %v", httpStatus, got, want)
		}
	}
}
