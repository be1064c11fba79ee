// Package transport defines the pluggable byte-transport contract corerpc's
// execution engine depends on: opening client streams, accepting server
// streams, and the RequestPart/ResponsePart grammar that flows over them.
// Framing, flow control, TLS termination, connection pooling, and name
// resolution are left to whatever concrete Transport is plugged in; this
// package only fixes the shape of the interface.
package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/corerpc/corerpc/metadata"
	"github.com/corerpc/corerpc/status"
)

// MethodDescriptor identifies an RPC method and its streaming shape.
type MethodDescriptor struct {
	Service string
	Method  string
	// StreamingClient is true if the client may send more than one message.
	StreamingClient bool
	// StreamingServer is true if the server may send more than one message.
	StreamingServer bool
}

// FullMethod returns the wire path "/service/method".
func (d MethodDescriptor) FullMethod() string {
	return "/" + d.Service + "/" + d.Method
}

// PartKind discriminates the Part sum type shared by both directions of a
// stream.
type PartKind int

const (
	PartMetadata PartKind = iota
	PartMessage
	PartStatus
)

// Part is one item of a stream in either direction. Metadata must be sent
// first and exactly once in the client-to-server direction. In the
// server-to-client direction the first element is either Metadata (an
// accepted response) or Status (a trailers-only rejection), and Status
// always terminates the sequence.
type Part struct {
	Kind     PartKind
	Metadata metadata.MD
	Message  []byte
	Status   *status.Status
}

// RequestPart documents the client-to-server use of Part: only the
// PartMetadata and PartMessage kinds occur, Status is always nil.
type RequestPart = Part

// ResponsePart documents the server-to-client use of Part: PartMetadata,
// PartMessage, and the terminal PartStatus kind may all occur.
type ResponsePart = Part

// Outbound is the closable sink of Parts a stream writer writes.
type Outbound interface {
	Send(ctx context.Context, part Part) error
	// Close finishes the outbound half of the stream. Close is idempotent.
	Close() error
}

// Inbound is the sequence of Parts a stream delivers to a reader. Recv
// returns io.EOF once the sequence is exhausted with no terminal Status
// part (the "empty stream" edge case); otherwise the Status part itself is
// the final value returned before io.EOF.
type Inbound interface {
	Recv(ctx context.Context) (Part, error)
}

// RPCStream is a single opened stream for one attempt: a reader of response
// parts and a writer of request parts, scoped to one MethodDescriptor.
type RPCStream struct {
	Descriptor MethodDescriptor
	Inbound    Inbound
	Outbound   Outbound
}

// ClientTransport opens streams for outgoing calls.
type ClientTransport interface {
	OpenStream(ctx context.Context, desc MethodDescriptor) (*RPCStream, error)
	// Close releases any resources the transport holds; it does not cancel
	// in-flight streams.
	Close() error
}

// ServerTransport hands accepted inbound streams, paired with their
// per-RPC ServerContext, to a Router. Serve blocks, delivering each
// accepted stream to handle, until ctx is cancelled or the transport is
// closed, at which point it returns.
type ServerTransport interface {
	Serve(ctx context.Context, handle func(*RPCStream, *ServerContext)) error
	Close() error
}

// Event is an out-of-band signal a transport may deliver to stream
// subscribers, independent of the RequestPart/ResponsePart grammar.
type Event int

const (
	// EventRPCCancelled is delivered when the transport observes the RPC
	// was cancelled out of band (e.g. the client closed the connection).
	EventRPCCancelled Event = iota
)

// CancellationHandle is the per-RPC cancellation contract // describes: a thread-safe, idempotent cancel with subscription by
// on-cancel callback, placed into the ServerContext for every inbound RPC.
type CancellationHandle struct {
	mu        sync.Mutex
	cancelled bool
	done      chan struct{}
	handlers  map[int]func()
	nextID    int
}

// NewCancellationHandle returns a handle in the not-yet-cancelled state.
func NewCancellationHandle() *CancellationHandle {
	return &CancellationHandle{
		done:     make(chan struct{}),
		handlers: make(map[int]func()),
	}
}

// IsCancelled reports whether Cancel has been called.
func (h *CancellationHandle) IsCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// Cancelled returns a channel closed exactly once, when Cancel is first
// called; waiting on it is the wait() operation describes.
func (h *CancellationHandle) Cancelled() <-chan struct{} {
	return h.done
}

// Cancel triggers all registered on-cancel handlers exactly once. Repeated
// calls after the first are a no-op.
func (h *CancellationHandle) Cancel() {
	h.mu.Lock()
	if h.cancelled {
		h.mu.Unlock()
		return
	}
	h.cancelled = true
	handlers := make([]func(), 0, len(h.handlers))
	for _, fn := range h.handlers {
		handlers = append(handlers, fn)
	}
	close(h.done)
	h.mu.Unlock()
	for _, fn := range handlers {
		fn()
	}
}

// AddHandler registers fn to run when Cancel is called, returning an id
// usable with RemoveHandler. If the handle is already cancelled, fn runs
// immediately.
func (h *CancellationHandle) AddHandler(fn func()) int {
	h.mu.Lock()
	if h.cancelled {
		h.mu.Unlock()
		fn()
		return -1
	}
	id := h.nextID
	h.nextID++
	h.handlers[id] = fn
	h.mu.Unlock()
	return id
}

// RemoveHandler unregisters the handler added under id, if still present.
func (h *CancellationHandle) RemoveHandler(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.handlers, id)
}

// ServerContext is the per-RPC context a ServerTransport attaches to each
// accepted stream.
type ServerContext struct {
	Descriptor   MethodDescriptor
	Cancellation *CancellationHandle
}

// ErrTransportClosed is returned by Serve once the transport has been
// closed.
var ErrTransportClosed = fmt.Errorf("transport: closed")
