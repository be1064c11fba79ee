package corerpc

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/status"
	"github.com/corerpc/corerpc/transport"
)

// OneShotExecutor opens a single transport stream and runs it to
// completion. It runs a single task in a scoped task group — implemented
// with golang.org/x/sync/errgroup — that opens the stream, runs the
// interceptor chain and then the response handler, and returns the
// handler's result. An optional timeout becomes a context deadline on that
// task.
type OneShotExecutor struct{}

func (OneShotExecutor) Execute(ctx context.Context, opener StreamOpener, desc transport.MethodDescriptor, req ClientRequest, opts CallOptions, interceptors []UnaryClientInterceptor, handler ResponseHandler) error {
	attemptCtx := ctx
	if opts.Timeout != nil {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithDeadline(ctx, deadlineFrom(opts.Timeout))
		defer cancel()
	}

	g, gctx := errgroup.WithContext(attemptCtx)
	chain := ChainUnaryClient(interceptors...)

	g.Go(func() error {
		stream, err := opener.OpenStream(gctx, desc)
		if err != nil {
			return transportErr(err)
		}
		resp, err := chain(gctx, desc, req, opts, func(ctx context.Context, req ClientRequest) (*StreamingResponse, error) {
			return Execute(ctx, req, 1, codecEncoder(opts.Codec), codecDecoder(opts.Codec), opts.NewMessage, stream)
		})
		if err != nil {
			return err
		}
		if gctx.Err() != nil {
			// Caller cancellation raced the response: the handler
			// is not invoked on caller cancellation.
			return gctx.Err()
		}
		return handler(gctx, resp)
	})

	err := g.Wait()
	if err != nil && gctx.Err() == context.DeadlineExceeded {
		return status.New(codes.DeadlineExceeded, "corerpc: deadline exceeded").Err()
	}
	return err
}
