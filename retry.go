package corerpc

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/internal/backoff"
	"github.com/corerpc/corerpc/replaybuffer"
	"github.com/corerpc/corerpc/status"
	"github.com/corerpc/corerpc/throttle"
	"github.com/corerpc/corerpc/transport"
)

// RetryExecutor coordinates sequential attempts with exponential backoff,
// server pushback, and a shared retry throttle. Throttle is
// shared across every call a channel makes — the caller constructs one
// RetryExecutor per channel (or leaves Throttle nil to disable throttling)
// and reuses it, since hedging contends for the same budget.
type RetryExecutor struct {
	Throttle *throttle.Throttle
}

func (e RetryExecutor) permits() bool {
	if e.Throttle == nil {
		return true
	}
	return e.Throttle.Permits()
}

func (e RetryExecutor) recordSuccess() {
	if e.Throttle != nil {
		e.Throttle.RecordSuccess()
	}
}

func (e RetryExecutor) recordFailure() {
	if e.Throttle != nil {
		e.Throttle.RecordFailure()
	}
}

func (e RetryExecutor) Execute(ctx context.Context, opener StreamOpener, desc transport.MethodDescriptor, req ClientRequest, opts CallOptions, interceptors []UnaryClientInterceptor, handler ResponseHandler) error {
	policy := opts.Retry
	if policy == nil {
		return OneShotExecutor{}.Execute(ctx, opener, desc, req, opts, interceptors, handler)
	}

	attemptCtx := ctx
	if opts.Timeout != nil {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithDeadline(ctx, deadlineFrom(opts.Timeout))
		defer cancel()
	}

	g, gctx := errgroup.WithContext(attemptCtx)
	buf := replaybuffer.New(opts.ReplayCapacity)
	chain := ChainUnaryClient(interceptors...)

	g.Go(func() error {
		return drainIntoReplayBuffer(gctx, req.Producer, codecEncoder(opts.Codec), buf)
	})

	g.Go(func() error {
		backoffCfg := backoff.Config{
			InitialBackoff:    policy.InitialBackoff,
			MaxBackoff:        policy.MaxBackoff,
			BackoffMultiplier: policy.BackoffMultiplier,
		}
		attempt := 1
		backoffN := 1
		for {
			cursor := buf.Subscribe()
			stream, err := opener.OpenStream(gctx, desc)
			if err != nil {
				return transportErr(err)
			}
			attemptReq := ClientRequest{Metadata: req.Metadata, Producer: replayProducer(cursor)}
			resp, err := chain(gctx, desc, attemptReq, opts, func(ctx context.Context, r ClientRequest) (*StreamingResponse, error) {
				return Execute(ctx, r, attempt, rawBytesEncoder(), codecDecoder(opts.Codec), opts.NewMessage, stream)
			})
			if err != nil {
				return err
			}

			if resp.Accepted {
				e.recordSuccess()
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return handler(gctx, resp)
			}

			st, _ := status.FromError(resp.RejectErr)
			if !containsCode(policy.RetryableStatusCodes, st.Code()) {
				e.recordSuccess()
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return handler(gctx, resp)
			}
			e.recordFailure()

			pushback := st.Metadata().RetryPushback()
			if pushback.Stop {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return handler(gctx, resp)
			}
			if attempt >= policy.MaxAttempts || !e.permits() || !buf.SafeForNextSubscriber() {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return handler(gctx, resp)
			}

			var delay time.Duration
			if !pushback.None {
				delay = pushback.After
				backoffN = 1
			} else {
				delay = backoff.Compute(backoffN, backoffCfg)
				backoffN++
			}

			select {
			case <-time.After(delay):
			case <-gctx.Done():
				return gctx.Err()
			}

			buf.InvalidateAll()
			attempt++
		}
	})

	err := g.Wait()
	if err != nil && gctx.Err() == context.DeadlineExceeded {
		return status.New(codes.DeadlineExceeded, "corerpc: deadline exceeded").Err()
	}
	return err
}

// drainIntoReplayBuffer runs producer exactly once, encoding each message it
// sends and appending the result to buf, then closes buf with producer's
// final error (nil on success). It is the "outbound producer" ancillary
// task describes.
func drainIntoReplayBuffer(ctx context.Context, producer RequestProducer, encode Encoder, buf *replaybuffer.Buffer) error {
	if producer == nil {
		buf.Close(nil)
		return nil
	}
	err := producer(ctx, func(msg interface{}) error {
		data, err := encode(msg)
		if err != nil {
			return err
		}
		buf.Produce(data)
		return nil
	})
	buf.Close(err)
	return err
}

// replayProducer returns a RequestProducer that re-reads an attempt's
// messages from cursor, for use as the per-attempt request in retry and
// hedging. Its messages are already-encoded []byte and must be paired with
// rawBytesEncoder, never a real codec's Encoder.
func replayProducer(cursor *replaybuffer.Cursor) RequestProducer {
	return func(_ context.Context, send func(interface{}) error) error {
		for {
			msg, err, ok := cursor.Next()
			if !ok {
				return err
			}
			if err := send(msg); err != nil {
				return err
			}
		}
	}
}

func containsCode(set []codes.Code, c codes.Code) bool {
	for _, x := range set {
		if x == c {
			return true
		}
	}
	return false
}
