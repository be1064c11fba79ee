package corerpc

import (
	"context"

	"github.com/corerpc/corerpc/metadata"
	"github.com/corerpc/corerpc/transport"
)

// UnaryHandler is the terminal continuation a client interceptor chain
// invokes to actually run the attempt.
type UnaryHandler func(ctx context.Context, req ClientRequest) (*StreamingResponse, error)

// UnaryClientInterceptor wraps the execution of one client-side attempt. An
// interceptor may modify req's metadata, observe or rewrite the outcome,
// or short-circuit by never calling next. Errors it returns that are not
// *status.RPCError become RPCError(unknown, ...) when surfaced.
type UnaryClientInterceptor func(ctx context.Context, desc transport.MethodDescriptor, req ClientRequest, opts CallOptions, next UnaryHandler) (*StreamingResponse, error)

// ChainUnaryClient folds interceptors into a single UnaryClientInterceptor,
// composing them in the order given: the first interceptor is outermost.
// It follows the same left-fold shape as ChainUnaryServer below, applied
// to the client call signature.
func ChainUnaryClient(interceptors ...UnaryClientInterceptor) UnaryClientInterceptor {
	if len(interceptors) == 0 {
		return func(ctx context.Context, desc transport.MethodDescriptor, req ClientRequest, opts CallOptions, next UnaryHandler) (*StreamingResponse, error) {
			return next(ctx, req)
		}
	}
	if len(interceptors) == 1 {
		return interceptors[0]
	}
	return func(ctx context.Context, desc transport.MethodDescriptor, req ClientRequest, opts CallOptions, next UnaryHandler) (*StreamingResponse, error) {
		chained := next
		for i := len(interceptors) - 1; i > 0; i-- {
			inner, interceptor := chained, interceptors[i]
			chained = func(ctx context.Context, req ClientRequest) (*StreamingResponse, error) {
				return interceptor(ctx, desc, req, opts, inner)
			}
		}
		return interceptors[0](ctx, desc, req, opts, chained)
	}
}

// ServerRequest is the handler-facing request: the request metadata and
// the deserialized message sequence.
type ServerRequest struct {
	Metadata metadata.MD
	Body     *Body
}

// ServerResponse is the handler-facing response a server handler produces:
// initial metadata, a producer of response messages, trailing metadata,
// and an error (non-nil iff the RPC failed).
type ServerResponse struct {
	Metadata metadata.MD
	Producer RequestProducer
	Trailer  metadata.MD
	Err      error
}

// ServerInfo describes the RPC a server interceptor or handler is running
// for.
type ServerInfo struct {
	Descriptor     transport.MethodDescriptor
	IsClientStream bool
	IsServerStream bool
}

// UnaryServerHandler is the terminal continuation a server interceptor
// chain invokes: the user-supplied service method implementation.
type UnaryServerHandler func(ctx context.Context, req *ServerRequest) (*ServerResponse, error)

// UnaryServerInterceptor wraps the execution of a server-side RPC.
type UnaryServerInterceptor func(ctx context.Context, req *ServerRequest, info *ServerInfo, handler UnaryServerHandler) (*ServerResponse, error)

// ChainUnaryServer folds interceptors into one, in left-to-right
// application order — ChainUnaryServer(one, two, three) runs one, then
// two, then three, each seeing the context changes of those before it.
func ChainUnaryServer(interceptors ...UnaryServerInterceptor) UnaryServerInterceptor {
	n := len(interceptors)
	if n == 0 {
		return func(ctx context.Context, req *ServerRequest, _ *ServerInfo, handler UnaryServerHandler) (*ServerResponse, error) {
			return handler(ctx, req)
		}
	}
	if n == 1 {
		return interceptors[0]
	}
	return func(ctx context.Context, req *ServerRequest, info *ServerInfo, handler UnaryServerHandler) (*ServerResponse, error) {
		curr := handler
		for i := n - 1; i > 0; i-- {
			inner, i := curr, i
			curr = func(ctx context.Context, req *ServerRequest) (*ServerResponse, error) {
				return interceptors[i](ctx, req, info, inner)
			}
		}
		return interceptors[0](ctx, req, info, curr)
	}
}

// Subject selects which methods a server interceptor applies to, per
// "all | services(set) | methods(set)".
type Subject struct {
	all      bool
	services map[string]bool
	methods  map[string]bool
}

// AllSubjects returns a Subject matching every method.
func AllSubjects() Subject {
	return Subject{all: true}
}

// ServiceSubjects returns a Subject matching every method of the given
// fully-qualified service names.
func ServiceSubjects(services ...string) Subject {
	set := make(map[string]bool, len(services))
	for _, s := range services {
		set[s] = true
	}
	return Subject{services: set}
}

// MethodSubjects returns a Subject matching only the given full method
// paths ("/service/method").
func MethodSubjects(fullMethods ...string) Subject {
	set := make(map[string]bool, len(fullMethods))
	for _, m := range fullMethods {
		set[m] = true
	}
	return Subject{methods: set}
}

// Applies reports whether s selects desc.
func (s Subject) Applies(desc transport.MethodDescriptor) bool {
	if s.all {
		return true
	}
	if s.services[desc.Service] {
		return true
	}
	return s.methods[desc.FullMethod()]
}

// ServerInterceptorEntry pairs an interceptor with the Subject it applies
// to, as registered on a Router.
type ServerInterceptorEntry struct {
	Subject     Subject
	Interceptor UnaryServerInterceptor
}

// selectServerInterceptors computes, in registration order, the
// interceptors among entries whose Subject applies to desc — the
// per-method selection describes happening at registration.
func selectServerInterceptors(entries []ServerInterceptorEntry, desc transport.MethodDescriptor) []UnaryServerInterceptor {
	selected := make([]UnaryServerInterceptor, 0, len(entries))
	for _, e := range entries {
		if e.Subject.Applies(desc) {
			selected = append(selected, e.Interceptor)
		}
	}
	return selected
}
