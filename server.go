package corerpc

import (
	"context"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/encoding"
	"github.com/corerpc/corerpc/metadata"
	"github.com/corerpc/corerpc/status"
	"github.com/corerpc/corerpc/transport"
)

// cancellationCtxKey is the context key a handler or interceptor can use to
// retrieve the RPC's transport.CancellationHandle, "each
// RPC is bound to an RPCCancellationHandle placed in the context".
type cancellationCtxKey struct{}

// CancellationFromContext returns the transport.CancellationHandle bound to
// ctx by the Router, if any.
func CancellationFromContext(ctx context.Context) (*transport.CancellationHandle, bool) {
	h, ok := ctx.Value(cancellationCtxKey{}).(*transport.CancellationHandle)
	return h, ok
}

type registeredMethod struct {
	desc       transport.MethodDescriptor
	codec      encoding.Codec
	newRequest MessageFactory
	handler    UnaryServerHandler
}

// Router stores, for each MethodDescriptor, the tuple of (codec, request
// factory, handler) describes, plus the selectable server
// interceptors registered against it. Registering a method replaces any
// existing handler for the same full method path. The router is
// read-mostly after Serve starts; mutating it concurrently with dispatch
// is not supported.
type Router struct {
	mu           sync.RWMutex
	methods      map[string]registeredMethod
	interceptors []ServerInterceptorEntry
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{methods: make(map[string]registeredMethod)}
}

// Register binds desc.FullMethod() to handler, using codec to (de)serialize
// request and response messages and newRequest to allocate each inbound
// request message.
func (r *Router) Register(desc transport.MethodDescriptor, codec encoding.Codec, newRequest MessageFactory, handler UnaryServerHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[desc.FullMethod()] = registeredMethod{desc: desc, codec: codec, newRequest: newRequest, handler: handler}
}

// Intercept registers interceptor to run for every method subject matches,
// in registration order, ahead of any interceptors registered after it.
func (r *Router) Intercept(subject Subject, interceptor UnaryServerInterceptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interceptors = append(r.interceptors, ServerInterceptorEntry{Subject: subject, Interceptor: interceptor})
}

func (r *Router) lookup(desc transport.MethodDescriptor) (registeredMethod, []UnaryServerInterceptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.methods[desc.FullMethod()]
	if !ok {
		return registeredMethod{}, nil, false
	}
	return m, selectServerInterceptors(r.interceptors, desc), true
}

// Serve dispatches every stream st accepts to its registered handler until
// ctx is done or st stops serving.
func (r *Router) Serve(ctx context.Context, st transport.ServerTransport) error {
	return st.Serve(ctx, func(stream *transport.RPCStream, sctx *transport.ServerContext) {
		r.handleStream(ctx, stream, sctx)
	})
}

// handleStream runs one RPC's whole lifecycle in a scoped task group: a
// cancellation-watcher task bound to the transport's CancellationHandle,
// and the handler-execution task itself, so that a server-initiated
// cancellation cascades into every suspension point the handler touches.
func (r *Router) handleStream(parentCtx context.Context, stream *transport.RPCStream, sctx *transport.ServerContext) {
	g, gctx := errgroup.WithContext(parentCtx)
	rpcCtx := context.WithValue(gctx, cancellationCtxKey{}, sctx.Cancellation)

	g.Go(func() error {
		select {
		case <-sctx.Cancellation.Cancelled():
			return status.New(codes.Canceled, "corerpc: rpc cancelled by transport").Err()
		case <-gctx.Done():
			return nil
		}
	})

	g.Go(func() error {
		r.runHandler(rpcCtx, stream)
		return nil
	})

	g.Wait()
}

func (r *Router) runHandler(ctx context.Context, stream *transport.RPCStream) {
	first, err := stream.Inbound.Recv(ctx)
	if err != nil {
		return
	}
	if first.Kind != transport.PartMetadata {
		writeTrailersOnly(ctx, stream.Outbound, status.New(codes.Internal, "corerpc: transport bug: request missing metadata"), metadata.MD{})
		return
	}

	method, interceptors, ok := r.lookup(stream.Descriptor)
	if !ok {
		writeTrailersOnly(ctx, stream.Outbound, status.New(codes.Unimplemented, "Requested RPC isn't implemented by this server."), metadata.MD{})
		return
	}

	body := newBody()
	go pumpRequestBody(ctx, stream.Inbound, codecDecoder(method.codec), method.newRequest, body)

	handlerBody := body
	if !stream.Descriptor.StreamingClient {
		handlerBody = enforceSingleMessage(ctx, body)
	}

	info := &ServerInfo{
		Descriptor:     stream.Descriptor,
		IsClientStream: stream.Descriptor.StreamingClient,
		IsServerStream: stream.Descriptor.StreamingServer,
	}
	serverReq := &ServerRequest{Metadata: first.Metadata, Body: handlerBody}
	chain := ChainUnaryServer(interceptors...)

	resp, handlerErr := chain(ctx, serverReq, info, method.handler)
	switch {
	case handlerErr != nil:
		resp = &ServerResponse{Err: status.ToRPCError(handlerErr)}
	case resp == nil:
		resp = &ServerResponse{Err: status.New(codes.Internal, "corerpc: handler returned a nil response and a nil error").Err()}
	}

	writeResponse(ctx, stream.Outbound, resp, method.codec)
}

// pumpRequestBody reads a request's message sequence into body. Unlike a
// response body, a clean end of the request stream is signaled by the
// transport closing the Outbound the client wrote with — observed here as
// io.EOF — not by an explicit status part.
func pumpRequestBody(ctx context.Context, in transport.Inbound, decode Decoder, newMessage MessageFactory, body *Body) {
	for {
		part, err := in.Recv(ctx)
		if err != nil {
			if err == io.EOF {
				body.finish(metadata.MD{}, nil)
				return
			}
			body.finish(metadata.MD{}, status.ToRPCError(err))
			return
		}
		if part.Kind != transport.PartMessage {
			body.finish(metadata.MD{}, status.New(codes.Internal, "corerpc: transport bug: unexpected part in request stream").Err())
			return
		}
		msg, err := decode(part.Message, newMessage)
		if err != nil {
			body.finish(metadata.MD{}, status.Wrap(codes.Unknown, err.Error(), metadata.MD{}, err))
			return
		}
		if !body.push(ctx, msg) {
			return
		}
	}
}

// enforceSingleMessage wraps inner so its consumer observes exactly one
// message, raising an internal error if inner carries zero or more than
// one — the "ServerRequest.Single" assertion requires for
// unary and server-streaming methods.
func enforceSingleMessage(ctx context.Context, inner *Body) *Body {
	out := newBody()
	go func() {
		msg, err, ok := inner.Recv(ctx)
		if !ok {
			if err != nil {
				out.finish(metadata.MD{}, err)
			} else {
				out.finish(metadata.MD{}, status.New(codes.Internal, "corerpc: unary request carried zero messages").Err())
			}
			return
		}
		if !out.push(ctx, msg) {
			return
		}
		_, err2, ok2 := inner.Recv(ctx)
		if ok2 {
			out.finish(metadata.MD{}, status.New(codes.Internal, "corerpc: unary request carried more than one message").Err())
			return
		}
		out.finish(inner.Trailer(), err2)
	}()
	return out
}

func writeTrailersOnly(ctx context.Context, out transport.Outbound, st *status.Status, trailer metadata.MD) {
	defer out.Close()
	out.Send(ctx, transport.Part{Kind: transport.PartStatus, Metadata: trailer, Status: st})
}

// writeResponse writes resp's metadata, messages, and final status onto
// out, closing out on return.
func writeResponse(ctx context.Context, out transport.Outbound, resp *ServerResponse, codec encoding.Codec) {
	defer out.Close()

	if resp.Err != nil {
		st, _ := status.FromError(resp.Err)
		md := st.Metadata().Clone()
		md.Merge(resp.Trailer)
		out.Send(ctx, transport.Part{Kind: transport.PartStatus, Metadata: md, Status: st})
		return
	}

	if err := out.Send(ctx, transport.Part{Kind: transport.PartMetadata, Metadata: resp.Metadata}); err != nil {
		return
	}
	if resp.Producer != nil {
		err := resp.Producer(ctx, func(msg interface{}) error {
			data, err := codec.Marshal(msg)
			if err != nil {
				return err
			}
			return out.Send(ctx, transport.Part{Kind: transport.PartMessage, Message: data})
		})
		if err != nil {
			out.Send(ctx, transport.Part{Kind: transport.PartStatus, Metadata: resp.Trailer, Status: status.New(codes.Unknown, err.Error())})
			return
		}
	}
	out.Send(ctx, transport.Part{Kind: transport.PartStatus, Metadata: resp.Trailer, Status: status.New(codes.OK, "")})
}
