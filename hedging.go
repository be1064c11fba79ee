package corerpc

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/replaybuffer"
	"github.com/corerpc/corerpc/serviceconfig"
	"github.com/corerpc/corerpc/status"
	"github.com/corerpc/corerpc/throttle"
	"github.com/corerpc/corerpc/transport"
)

// HedgingExecutor launches staggered concurrent attempts and surfaces the
// first accepted response, cancelling the rest. Throttle is
// shared with RetryExecutor when both run over the same channel.
type HedgingExecutor struct {
	Throttle *throttle.Throttle
}

func (e HedgingExecutor) recordSuccess() {
	if e.Throttle != nil {
		e.Throttle.RecordSuccess()
	}
}

func (e HedgingExecutor) recordFailure() {
	if e.Throttle != nil {
		e.Throttle.RecordFailure()
	}
}

// hedgeCoordinator is the shared mutex-guarded state the launcher and every
// attempt goroutine observe: the winner-takes-all decision, the per-attempt
// pushback signal, and the "every launched attempt has settled" exhaustion
// check.
type hedgeCoordinator struct {
	mu sync.Mutex

	outstanding  int
	launcherDone bool
	decided      bool
	stopHedging  bool
	nextDelay    time.Duration

	lastResp *StreamingResponse
	lastErr  error

	finalResp *StreamingResponse
	finalErr  error

	doneCh chan struct{}
	cancel context.CancelFunc
}

func newHedgeCoordinator(cancel context.CancelFunc) *hedgeCoordinator {
	return &hedgeCoordinator{doneCh: make(chan struct{}), cancel: cancel}
}

// finish records the terminal outcome exactly once, cancels every attempt
// still running, and unblocks the awaiter task.
func (c *hedgeCoordinator) finish(resp *StreamingResponse, err error) {
	c.mu.Lock()
	if c.decided {
		c.mu.Unlock()
		return
	}
	c.decided = true
	c.finalResp, c.finalErr = resp, err
	c.mu.Unlock()
	c.cancel()
	close(c.doneCh)
}

func (c *hedgeCoordinator) launching() {
	c.mu.Lock()
	c.outstanding++
	c.mu.Unlock()
}

// settled records a non-winning, non-fatal attempt's outcome as the most
// recent one seen, then checks whether every launched attempt has now
// settled with no winner or fatal error found.
func (c *hedgeCoordinator) settled(resp *StreamingResponse, err error) {
	c.mu.Lock()
	c.outstanding--
	if resp != nil || err != nil {
		c.lastResp, c.lastErr = resp, err
	}
	c.mu.Unlock()
	c.maybeFinishExhausted()
}

func (c *hedgeCoordinator) doneLaunching() {
	c.mu.Lock()
	c.launcherDone = true
	c.mu.Unlock()
	c.maybeFinishExhausted()
}

func (c *hedgeCoordinator) maybeFinishExhausted() {
	c.mu.Lock()
	if c.decided || !c.launcherDone || c.outstanding > 0 {
		c.mu.Unlock()
		return
	}
	resp, err := c.lastResp, c.lastErr
	c.mu.Unlock()
	if resp == nil && err == nil {
		err = status.New(codes.Unavailable, "corerpc: all hedged attempts failed to open a stream").Err()
	}
	c.finish(resp, err)
}

// setStop disables any further hedge launches without affecting attempts
// already running, stopRetrying pushback semantics.
func (c *hedgeCoordinator) setStop() {
	c.mu.Lock()
	c.stopHedging = true
	c.mu.Unlock()
}

func (c *hedgeCoordinator) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopHedging
}

// setNextDelay overrides the delay before the next hedge launch, per
// retryAfter(d) pushback semantics.
func (c *hedgeCoordinator) setNextDelay(d time.Duration) {
	c.mu.Lock()
	c.nextDelay = d
	c.mu.Unlock()
}

func (c *hedgeCoordinator) consumeDelay(def time.Duration) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nextDelay > 0 {
		d := c.nextDelay
		c.nextDelay = 0
		return d
	}
	return def
}

func (e HedgingExecutor) Execute(ctx context.Context, opener StreamOpener, desc transport.MethodDescriptor, req ClientRequest, opts CallOptions, interceptors []UnaryClientInterceptor, handler ResponseHandler) error {
	policy := opts.Hedging
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
	stopCtx, stopAttempts := context.WithCancel(gctx)
	defer stopAttempts()

	buf := replaybuffer.New(opts.ReplayCapacity)
	chain := ChainUnaryClient(interceptors...)
	coord := newHedgeCoordinator(stopAttempts)

	g.Go(func() error {
		return drainIntoReplayBuffer(gctx, req.Producer, codecEncoder(opts.Codec), buf)
	})

	g.Go(func() error {
	launchLoop:
		for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
			attemptNum := attempt
			cursor := buf.Subscribe()
			coord.launching()
			g.Go(func() error {
				e.runHedgeAttempt(stopCtx, opener, desc, req, opts, chain, attemptNum, cursor, policy, coord)
				return nil
			})

			if attempt == policy.MaxAttempts || coord.isStopped() {
				break
			}
			select {
			case <-time.After(coord.consumeDelay(policy.HedgingDelay)):
			case <-coord.doneCh:
				break launchLoop
			case <-gctx.Done():
				coord.doneLaunching()
				return gctx.Err()
			}
			if coord.isStopped() {
				break
			}
		}
		coord.doneLaunching()
		return nil
	})

	g.Go(func() error {
		select {
		case <-coord.doneCh:
			coord.mu.Lock()
			resp, err := coord.finalResp, coord.finalErr
			coord.mu.Unlock()
			if err != nil {
				return err
			}
			if gctx.Err() != nil {
				return gctx.Err()
			}
			return handler(gctx, resp)
		case <-gctx.Done():
			return gctx.Err()
		}
	})

	err := g.Wait()
	if err != nil && gctx.Err() == context.DeadlineExceeded {
		return status.New(codes.DeadlineExceeded, "corerpc: deadline exceeded").Err()
	}
	return err
}

// runHedgeAttempt executes one hedge attempt and reports its outcome to
// coord; it never returns an error directly, since only coord's decision
// determines the overall call's outcome.
func (e HedgingExecutor) runHedgeAttempt(stopCtx context.Context, opener StreamOpener, desc transport.MethodDescriptor, req ClientRequest, opts CallOptions, chain UnaryClientInterceptor, attempt int, cursor *replaybuffer.Cursor, policy *serviceconfig.HedgingPolicy, coord *hedgeCoordinator) {
	stream, err := opener.OpenStream(stopCtx, desc)
	if err != nil {
		if stopCtx.Err() != nil {
			coord.settled(nil, nil)
			return
		}
		e.recordFailure()
		coord.settled(nil, transportErr(err))
		return
	}

	attemptReq := ClientRequest{Metadata: req.Metadata, Producer: replayProducer(cursor)}
	resp, err := chain(stopCtx, desc, attemptReq, opts, func(ctx context.Context, r ClientRequest) (*StreamingResponse, error) {
		return Execute(ctx, r, attempt, rawBytesEncoder(), codecDecoder(opts.Codec), opts.NewMessage, stream)
	})
	if err != nil {
		if stopCtx.Err() != nil {
			coord.settled(nil, nil)
			return
		}
		coord.settled(nil, err)
		return
	}

	if resp.Accepted {
		e.recordSuccess()
		coord.finish(resp, nil)
		return
	}

	st, _ := status.FromError(resp.RejectErr)
	if containsCode(policy.NonFatalStatusCodes, st.Code()) {
		e.recordFailure()
		pushback := st.Metadata().RetryPushback()
		if pushback.Stop {
			coord.setStop()
		} else if !pushback.None {
			coord.setNextDelay(pushback.After)
		}
		coord.settled(resp, nil)
		return
	}

	e.recordFailure()
	coord.finish(nil, resp.RejectErr)
}
