package corerpc

import (
	"context"
	"sync"

	"github.com/corerpc/corerpc/metadata"
	"github.com/corerpc/corerpc/status"
)

// BodyLowWatermark is the capacity of the buffer the stream processor
// places between the transport reader and the caller consuming a response
// body, so a stalled caller applies backpressure to the transport rather
// than letting the reader race ahead unboundedly. BodyHighWatermark is not
// used by the buffer.
const (
	BodyHighWatermark = 32
	BodyLowWatermark  = 16
)

type bodyItem struct {
	message interface{}
	trailer metadata.MD
	err     error
	eof     bool
}

// Body is the lazy, bounded-buffer projection of a response's message
// sequence that describes: consumed by the caller one message
// at a time, terminating in exactly one of a clean end (trailing metadata)
// or an error.
type Body struct {
	items chan bodyItem
	once  sync.Once

	mu      sync.Mutex
	trailer metadata.MD
}

// newBody returns a Body with capacity BodyLowWatermark; the producer side
// (the stream processor's reader goroutine) blocks once that many items are
// buffered and the caller hasn't drained them, which is the backpressure
// calls for.
func newBody() *Body {
	return &Body{items: make(chan bodyItem, BodyLowWatermark)}
}

// push delivers one message onto the body. Only called by the producer.
func (b *Body) push(ctx context.Context, msg interface{}) bool {
	select {
	case b.items <- bodyItem{message: msg}:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish delivers the single terminal event: a clean end with trailing
// metadata, or a failure. Only called once by the producer.
func (b *Body) finish(trailer metadata.MD, err error) {
	b.once.Do(func() {
		b.mu.Lock()
		b.trailer = trailer
		b.mu.Unlock()
		item := bodyItem{trailer: trailer}
		if err != nil {
			item.err = err
		} else {
			item.eof = true
		}
		b.items <- item
		close(b.items)
	})
}

// Recv returns the next message in the body. ok=true means a message was
// returned; ok=false with a nil error is the clean end; ok=false with a
// non-nil error is a failure (including ctx ending while waiting).
func (b *Body) Recv(ctx context.Context) (interface{}, error, bool) {
	select {
	case item, open := <-b.items:
		if !open {
			return nil, nil, false
		}
		if item.eof {
			return nil, nil, false
		}
		if item.err != nil {
			return nil, item.err, false
		}
		return item.message, nil, true
	case <-ctx.Done():
		return nil, status.New(codeFromContextErr(ctx.Err()), ctx.Err().Error()).Err(), false
	}
}

// Trailer returns the trailing metadata delivered with the body's terminal
// event. It is only meaningful after Recv has returned ok=false with a nil
// error (the clean end).
func (b *Body) Trailer() metadata.MD {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trailer
}
