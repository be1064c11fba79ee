// Package inprocess is a Transport implementation connecting a
// ClientTransport and a ServerTransport by buffered Go channels, with no
// sockets, framing, or TLS. It exists so the execution engine's
// invariants (cancellation, backpressure, the RequestPart/ResponsePart
// grammar) are exercisable end-to-end in tests and in the demo CLI,
// mirroring the role an in-process gRPC channel plays in that ecosystem —
// adapted here to corerpc's part-sequence model instead of a direct
// proto SendMsg/RecvMsg pairing.
package inprocess

import (
	"context"
	"io"
	"sync"

	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/status"
	"github.com/corerpc/corerpc/transport"
)

// DefaultBufferSize is the capacity of each direction's part channel,
// matching the low watermark of the stream processor's body buffer.
const DefaultBufferSize = 16

type pendingStream struct {
	desc   transport.MethodDescriptor
	reqCh  chan transport.Part
	respCh chan transport.Part
	cancel *transport.CancellationHandle
}

// channel is the shared state a linked ClientTransport/ServerTransport
// pair communicates through.
type channel struct {
	bufSize int
	accept  chan *pendingStream
	closed  chan struct{}
	once    sync.Once
}

func (c *channel) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *channel) close() {
	c.once.Do(func() { close(c.closed) })
}

// NewChannel returns a linked ClientTransport/ServerTransport pair. bufSize
// is the channel capacity for each direction's part stream; if bufSize <= 0
// DefaultBufferSize is used.
func NewChannel(bufSize int) (transport.ClientTransport, transport.ServerTransport) {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	ch := &channel{
		bufSize: bufSize,
		accept:  make(chan *pendingStream),
		closed:  make(chan struct{}),
	}
	return &clientTransport{ch: ch}, &serverTransport{ch: ch}
}

type clientTransport struct {
	ch *channel
}

func (t *clientTransport) OpenStream(ctx context.Context, desc transport.MethodDescriptor) (*transport.RPCStream, error) {
	if t.ch.isClosed() {
		return nil, status.New(codes.Unavailable, "inprocess: server transport is closed").Err()
	}
	p := &pendingStream{
		desc:   desc,
		reqCh:  make(chan transport.Part, t.ch.bufSize),
		respCh: make(chan transport.Part, t.ch.bufSize),
		cancel: transport.NewCancellationHandle(),
	}
	select {
	case t.ch.accept <- p:
	case <-t.ch.closed:
		return nil, status.New(codes.Unavailable, "inprocess: server transport is closed").Err()
	case <-ctx.Done():
		return nil, status.New(codes.Canceled, ctx.Err().Error()).Err()
	}
	go func() {
		select {
		case <-ctx.Done():
			p.cancel.Cancel()
		case <-p.cancel.Cancelled():
		}
	}()
	return &transport.RPCStream{
		Descriptor: desc,
		Inbound:    &partReader{ch: p.respCh},
		Outbound:   &partWriter{ch: p.reqCh},
	}, nil
}

func (t *clientTransport) Close() error {
	return nil
}

type serverTransport struct {
	ch *channel
}

func (t *serverTransport) Serve(ctx context.Context, handle func(*transport.RPCStream, *transport.ServerContext)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.ch.closed:
			return transport.ErrTransportClosed
		case p := <-t.ch.accept:
			stream := &transport.RPCStream{
				Descriptor: p.desc,
				Inbound:    &partReader{ch: p.reqCh},
				Outbound:   &partWriter{ch: p.respCh},
			}
			sctx := &transport.ServerContext{Descriptor: p.desc, Cancellation: p.cancel}
			go handle(stream, sctx)
		}
	}
}

func (t *serverTransport) Close() error {
	t.ch.close()
	return nil
}

// partWriter is the Outbound side of either direction: it writes Parts onto
// ch and closes ch exactly once.
type partWriter struct {
	ch        chan transport.Part
	closeOnce sync.Once
	closed    bool
	mu        sync.Mutex
}

func (w *partWriter) Send(ctx context.Context, part transport.Part) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return io.ErrClosedPipe
	}
	w.mu.Unlock()
	select {
	case w.ch <- part:
		return nil
	case <-ctx.Done():
		return status.New(codes.Canceled, ctx.Err().Error()).Err()
	}
}

func (w *partWriter) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()
		close(w.ch)
	})
	return nil
}

// partReader is the Inbound side of either direction: it reads Parts from
// ch, returning io.EOF once ch is closed and drained.
type partReader struct {
	ch <-chan transport.Part
}

func (r *partReader) Recv(ctx context.Context) (transport.Part, error) {
	select {
	case part, ok := <-r.ch:
		if !ok {
			return transport.Part{}, io.EOF
		}
		return part, nil
	case <-ctx.Done():
		return transport.Part{}, status.New(codes.Canceled, ctx.Err().Error()).Err()
	}
}
