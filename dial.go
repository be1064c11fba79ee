package corerpc

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/corerpc/corerpc/balancer"
	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/credentials"
	"github.com/corerpc/corerpc/encoding"
	"github.com/corerpc/corerpc/keepalive"
	"github.com/corerpc/corerpc/replaybuffer"
	"github.com/corerpc/corerpc/resolver"
	"github.com/corerpc/corerpc/serviceconfig"
	"github.com/corerpc/corerpc/status"
	"github.com/corerpc/corerpc/throttle"
	"github.com/corerpc/corerpc/transport"
)

// dialOptions collects every DialOption's effect: transport security,
// keepalive, default service config, balancer choice, codec, and chained
// client interceptors.
type dialOptions struct {
	creds             credentials.TransportCredentials
	insecure          bool
	keepaliveParams   *keepalive.ClientParameters
	serviceConfigJSON string
	balancerName      string
	codec             encoding.Codec
	chainInterceptors []UnaryClientInterceptor
	addresses         []resolver.Address
	transports        map[string]transport.ClientTransport
}

func defaultDialOptions() dialOptions {
	return dialOptions{transports: make(map[string]transport.ClientTransport)}
}

// DialOption configures a Dial call.
type DialOption func(*dialOptions)

// WithTransportCredentials sets the credentials a Transport should have
// already used (or will use) to authenticate the connection.
func WithTransportCredentials(creds credentials.TransportCredentials) DialOption {
	return func(o *dialOptions) { o.creds = creds }
}

// WithInsecure explicitly opts out of transport security: a caller must
// state this choice rather than fall into it by omission.
func WithInsecure() DialOption {
	return func(o *dialOptions) { o.insecure = true }
}

// WithKeepaliveParams attaches client keepalive parameters. Dial validates
// them and keeps them in its options; nothing in this package passes them
// on to a Transport.
func WithKeepaliveParams(p keepalive.ClientParameters) DialOption {
	return func(o *dialOptions) { o.keepaliveParams = &p }
}

// WithDefaultServiceConfig sets the raw JSON service config Dial parses
// and validates, supplying per-method retry/hedging policy and the shared
// retry throttle.
func WithDefaultServiceConfig(raw string) DialOption {
	return func(o *dialOptions) { o.serviceConfigJSON = raw }
}

// WithBalancerName overrides the load-balancing policy name, taking
// precedence over one named in the service config.
func WithBalancerName(name string) DialOption {
	return func(o *dialOptions) { o.balancerName = name }
}

// WithCodec sets the default codec used to (de)serialize messages for
// calls that don't override it with a CallOption.
func WithCodec(c encoding.Codec) DialOption {
	return func(o *dialOptions) { o.codec = c }
}

// WithChainUnaryInterceptor appends client interceptors run, in order, on
// every call this ClientConn makes.
func WithChainUnaryInterceptor(interceptors ...UnaryClientInterceptor) DialOption {
	return func(o *dialOptions) { o.chainInterceptors = append(o.chainInterceptors, interceptors...) }
}

// WithResolvedTransport registers a ready-made transport.ClientTransport
// behind addr, for the balancer to pick among. Since wire-level dialing
// is outside this engine's scope, the caller supplies already-opened (or
// already-constructible) transports in place of host:port addresses a
// production resolver would discover.
func WithResolvedTransport(addr resolver.Address, ct transport.ClientTransport) DialOption {
	return func(o *dialOptions) {
		o.addresses = append(o.addresses, addr)
		o.transports[addr.Addr] = ct
	}
}

// ClientConn is a configured channel to one or more resolved transports:
// dial-time defaults, a method-config lookup, and call bookkeeping
// counters.
type ClientConn struct {
	target   resolver.Target
	authority string
	dopts    dialOptions
	picker   balancer.Picker
	sc       serviceconfig.ServiceConfig
	throttle *throttle.Throttle

	mu             sync.Mutex
	callsStarted   int64
	callsFailed    int64
	callsSucceeded int64
}

// Dial constructs a ClientConn against target, applying opts. It requires
// an explicit transport-security decision (WithInsecure or
// WithTransportCredentials) and at least one resolved transport — this
// engine does not open sockets itself.
func Dial(target string, opts ...DialOption) (*ClientConn, error) {
	do := defaultDialOptions()
	for _, opt := range opts {
		opt(&do)
	}
	if !do.insecure && do.creds == nil {
		return nil, errors.New("corerpc: no transport security set (use corerpc.WithInsecure() or corerpc.WithTransportCredentials())")
	}
	if do.keepaliveParams != nil {
		if err := do.keepaliveParams.Validate(); err != nil {
			return nil, fmt.Errorf("corerpc: %w", err)
		}
	}
	if len(do.addresses) == 0 {
		return nil, errors.New("corerpc: Dial requires at least one resolved transport (WithResolvedTransport)")
	}

	t := resolver.ParseTarget(target)
	authority := t.Authority
	if authority == "" {
		authority = t.Endpoint
	}

	sc := serviceconfig.ServiceConfig{Methods: make(map[string]serviceconfig.MethodConfig)}
	if do.serviceConfigJSON != "" {
		parsed, err := serviceconfig.Parse(do.serviceConfigJSON)
		if err != nil {
			return nil, fmt.Errorf("corerpc: default service config: %w", err)
		}
		sc = parsed
	}

	balancerName := do.balancerName
	if balancerName == "" {
		balancerName = sc.LoadBalancingPolicy
	}
	if balancerName == "" {
		balancerName = "pick_first"
	}
	builder := balancer.Get(balancerName)
	if builder == nil {
		return nil, fmt.Errorf("corerpc: unknown balancer %q", balancerName)
	}

	var th *throttle.Throttle
	if sc.RetryThrottling != nil {
		th = throttle.New(sc.RetryThrottling.MaxTokens, sc.RetryThrottling.TokenRatio)
	}

	return &ClientConn{
		target:    t,
		authority: authority,
		dopts:     do,
		picker:    builder.Build(do.addresses),
		sc:        sc,
		throttle:  th,
	}, nil
}

// Close releases every transport this ClientConn was dialed with.
func (cc *ClientConn) Close() error {
	var firstErr error
	for _, ct := range cc.dopts.transports {
		if err := ct.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (cc *ClientConn) incrCallsStarted() {
	cc.mu.Lock()
	cc.callsStarted++
	cc.mu.Unlock()
}

func (cc *ClientConn) incrCallsFailed() {
	cc.mu.Lock()
	cc.callsFailed++
	cc.mu.Unlock()
}

func (cc *ClientConn) incrCallsSucceeded() {
	cc.mu.Lock()
	cc.callsSucceeded++
	cc.mu.Unlock()
}

// CallStats reports the call counters this ClientConn has accumulated.
func (cc *ClientConn) CallStats() (started, failed, succeeded int64) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.callsStarted, cc.callsFailed, cc.callsSucceeded
}

// GetMethodConfig returns the resolved MethodConfig for desc.
func (cc *ClientConn) GetMethodConfig(desc transport.MethodDescriptor) (serviceconfig.MethodConfig, bool) {
	return cc.sc.Lookup(desc.Service, desc.Method)
}

// CallOption overrides one field of the CallOptions a call resolves,
// applied after dial-time and service-config defaults.
type CallOption func(*CallOptions)

// WithCallTimeout overrides the call's deadline, which covers every
// attempt the executor makes.
func WithCallTimeout(d time.Duration) CallOption {
	return func(o *CallOptions) { o.Timeout = Timeout(d) }
}

// WithWaitForReady overrides CallOptions.WaitForReady. None of the
// executors consult it: every call fails fast.
func WithWaitForReady(wait bool) CallOption {
	return func(o *CallOptions) { o.WaitForReady = wait }
}

// WithCallCodec overrides the codec used to (de)serialize this call's
// messages.
func WithCallCodec(c encoding.Codec) CallOption {
	return func(o *CallOptions) { o.Codec = c }
}

// WithCallPolicy forces a specific ExecutionPolicy for this call,
// overriding whatever the resolved MethodConfig implied.
func WithCallPolicy(p ExecutionPolicy) CallOption {
	return func(o *CallOptions) { o.Policy = p }
}

// resolveCallOptions merges dial-time defaults, the method's resolved
// service-config policy, and per-call overrides, in that precedence
// order.
func (cc *ClientConn) resolveCallOptions(desc transport.MethodDescriptor, callOpts ...CallOption) CallOptions {
	opts := CallOptions{
		Codec:          cc.dopts.codec,
		ReplayCapacity: replaybuffer.DefaultCapacity,
	}
	if mc, ok := cc.sc.Lookup(desc.Service, desc.Method); ok {
		if mc.Timeout != nil {
			opts.Timeout = Timeout(*mc.Timeout)
		}
		if mc.WaitForReady != nil {
			opts.WaitForReady = *mc.WaitForReady
		}
		if mc.MaxReqSize != nil {
			opts.MaxReqBytes = *mc.MaxReqSize
		}
		if mc.MaxRespSize != nil {
			opts.MaxRespBytes = *mc.MaxRespSize
		}
		if mc.RetryPolicy != nil {
			opts.Retry = mc.RetryPolicy
			opts.Policy = RetryPolicyExecution
		}
		if mc.HedgingPolicy != nil {
			opts.Hedging = mc.HedgingPolicy
			opts.Policy = HedgingPolicyExecution
		}
	}
	for _, co := range callOpts {
		co(&opts)
	}
	return opts
}

// selectExecutor picks the AttemptExecutor opts.Policy names, sharing this
// ClientConn's throttle between the retry and hedging executors the way
// requires.
func (cc *ClientConn) selectExecutor(opts CallOptions) AttemptExecutor {
	switch opts.Policy {
	case RetryPolicyExecution:
		if opts.Retry != nil {
			return RetryExecutor{Throttle: cc.throttle}
		}
	case HedgingPolicyExecution:
		if opts.Hedging != nil {
			return HedgingExecutor{Throttle: cc.throttle}
		}
	}
	return OneShotExecutor{}
}

// pickTransport asks the balancer for an address and resolves it to the
// transport.ClientTransport registered under it at Dial time.
func (cc *ClientConn) pickTransport(ctx context.Context) (transport.ClientTransport, func(balancer.DoneInfo), error) {
	res, err := cc.picker.Pick(ctx, balancer.PickInfo{})
	if err != nil {
		return nil, nil, err
	}
	ct, ok := cc.dopts.transports[res.Address.Addr]
	if !ok {
		return nil, nil, fmt.Errorf("corerpc: balancer picked unregistered address %q", res.Address.Addr)
	}
	done := res.Done
	if done == nil {
		done = func(balancer.DoneInfo) {}
	}
	return ct, done, nil
}

// Execute runs one call of desc through this ClientConn's balancer,
// chosen AttemptExecutor, and dial-level interceptor chain, invoking
// handler with the outcome. It is the primitive Invoke and any
// server-streaming/bidi caller build on.
func (cc *ClientConn) Execute(ctx context.Context, desc transport.MethodDescriptor, req ClientRequest, handler ResponseHandler, callOpts ...CallOption) error {
	cc.incrCallsStarted()
	opts := cc.resolveCallOptions(desc, callOpts...)
	if opts.Codec == nil {
		cc.incrCallsFailed()
		return status.New(codes.Internal, "corerpc: no codec configured (WithCodec or WithCallCodec)").Err()
	}

	ct, done, err := cc.pickTransport(ctx)
	if err != nil {
		cc.incrCallsFailed()
		return transportErr(err)
	}

	executor := cc.selectExecutor(opts)
	callErr := status.ToRPCError(executor.Execute(ctx, ct, desc, req, opts, cc.dopts.chainInterceptors, handler))
	done(balancer.DoneInfo{Err: callErr})
	if callErr != nil {
		cc.incrCallsFailed()
	} else {
		cc.incrCallsSucceeded()
	}
	return callErr
}

// Invoke is the unary convenience wrapper generated code (or a hand-written
// caller) uses: send req, decode exactly one response message into reply.
func (cc *ClientConn) Invoke(ctx context.Context, desc transport.MethodDescriptor, req, reply interface{}, callOpts ...CallOption) error {
	newMessage := func() interface{} {
		return reflect.New(reflect.TypeOf(reply).Elem()).Interface()
	}
	callOpts = append([]CallOption{func(o *CallOptions) { o.NewMessage = newMessage }}, callOpts...)

	clientReq := ClientRequest{Producer: SingleMessageProducer(req)}
	return cc.Execute(ctx, desc, clientReq, func(ctx context.Context, resp *StreamingResponse) error {
		if !resp.Accepted {
			return resp.RejectErr
		}
		msg, err, ok := resp.Body.Recv(ctx)
		if !ok {
			if err != nil {
				return err
			}
			return status.New(codes.Internal, "corerpc: unary call received no response message").Err()
		}
		reflect.ValueOf(reply).Elem().Set(reflect.ValueOf(msg).Elem())
		return nil
	}, callOpts...)
}
