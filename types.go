// Package corerpc is a client/server RPC execution engine: a request
// executor running under one of three policies (one-shot, retry,
// hedging), an interceptor pipeline, a per-attempt stream processor, and a
// server-side router and handler executor. It runs over a pluggable
// transport.Transport; the wire format, the byte transport itself, and the
// message codec are external collaborators reached only through
// interfaces (transport.ClientTransport/ServerTransport, encoding.Codec).
package corerpc

import (
	"context"
	"time"

	"github.com/corerpc/corerpc/encoding"
	"github.com/corerpc/corerpc/metadata"
	"github.com/corerpc/corerpc/serviceconfig"
	"github.com/corerpc/corerpc/status"
	"github.com/corerpc/corerpc/transport"
)

// StreamDesc describes a method's streaming shape. It drops the
// codegen-bound Handler/StreamName fields other StreamDesc variants
// carry, since this engine has no code generator to populate them.
type StreamDesc struct {
	ClientStreams bool
	ServerStreams bool
}

// MessageFactory constructs a new, zero-valued instance of a response
// message type, used once per inbound message so the stream processor can
// unmarshal into it without the caller threading a pointer through every
// read.
type MessageFactory func() interface{}

// RequestProducer writes zero or more messages by calling send, returning
// after the last one (or on error). It is invoked by the executor at
// most once per attempt for one-shot, and once total (into the replay
// buffer) for retry/hedging.
type RequestProducer func(ctx context.Context, send func(msg interface{}) error) error

// SingleMessageProducer returns a RequestProducer that sends exactly one
// message, for the common unary request shape.
func SingleMessageProducer(msg interface{}) RequestProducer {
	return func(_ context.Context, send func(interface{}) error) error {
		return send(msg)
	}
}

// ClientRequest is the caller-facing request describes: request
// metadata plus a producer closure. A single-message request is just a
// RequestProducer constructed via SingleMessageProducer.
type ClientRequest struct {
	Metadata metadata.MD
	Producer RequestProducer
}

// StreamingResponse is the caller-facing outcome of one attempt execution.
// Exactly one of (Accepted == true, with Body non-nil) or (Accepted ==
// false, with RejectErr a non-nil *status.RPCError) holds.
type StreamingResponse struct {
	// Accepted is true iff the first inbound part was metadata (the server
	// agreed to process the RPC).
	Accepted bool
	// Metadata is the initial (header) metadata of an accepted response.
	// Empty for a trailers-only rejection.
	Metadata metadata.MD
	// Body is the lazy message sequence of an accepted response.
	Body *Body
	// RejectErr is the RPCError of a trailers-only rejection.
	RejectErr error
}

// ExecutionPolicy selects which AttemptExecutor drives a call.
type ExecutionPolicy int

const (
	OneShot ExecutionPolicy = iota
	RetryPolicyExecution
	HedgingPolicyExecution
)

// CallOptions configures one RPC invocation, merging dial-time defaults
// with per-call overrides applied through a CallOption chain.
type CallOptions struct {
	Policy         ExecutionPolicy
	Timeout        *durationOption
	WaitForReady   bool
	MaxReqBytes    int
	MaxRespBytes   int
	Codec          encoding.Codec
	NewMessage     MessageFactory
	Retry          *serviceconfig.RetryPolicy
	Hedging        *serviceconfig.HedgingPolicy
	ReplayCapacity int
}

// durationOption wraps a deadline so CallOptions's zero value means "no
// timeout" without relying on a magic zero time.Duration.
type durationOption struct {
	nanos int64
}

// Timeout returns a CallOptions.Timeout value representing d.
func Timeout(d time.Duration) *durationOption {
	return &durationOption{nanos: int64(d)}
}

// Duration returns the wrapped time.Duration.
func (o *durationOption) Duration() time.Duration {
	return time.Duration(o.nanos)
}

// deadlineFrom returns the absolute deadline o represents, measured from
// now.
func deadlineFrom(o *durationOption) time.Time {
	return time.Now().Add(o.Duration())
}

// ResponseHandler consumes a StreamingResponse produced by an attempt. The
// executor invokes it at most once: for OneShot/Retry with the committed
// attempt, for Hedging with the winning attempt.
type ResponseHandler func(ctx context.Context, resp *StreamingResponse) error

// AttemptExecutor orchestrates one or more attempts of a call against an
// opener of transport streams, applying the interceptor pipeline and
// stream processor to each, and invokes handler with the resulting
// response. Its own return value is the handler's result.
type AttemptExecutor interface {
	Execute(ctx context.Context, opener StreamOpener, desc transport.MethodDescriptor, req ClientRequest, opts CallOptions, interceptors []UnaryClientInterceptor, handler ResponseHandler) error
}

// StreamOpener is the minimal client-transport capability an executor
// needs: opening one fresh attempt's stream.
type StreamOpener interface {
	OpenStream(ctx context.Context, desc transport.MethodDescriptor) (*transport.RPCStream, error)
}

// transportErr normalizes a transport-layer failure to open a stream into
// an RPCError, "transport errors" kind.
func transportErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*status.RPCError); ok {
		return err
	}
	return status.Wrap(unavailableOrUnknown(err), err.Error(), metadata.MD{}, err)
}
