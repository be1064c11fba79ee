package corerpc

import (
	"context"
	"testing"

	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/resolver"
	"github.com/corerpc/corerpc/status"
	"github.com/corerpc/corerpc/transport/inprocess"
)

func dialOverInprocess(t *testing.T) (*ClientConn, func()) {
	t.Helper()
	ct, st := inprocess.NewChannel(0)
	router := NewRouter()
	router.Register(testMethod, testCodec, newEchoFactory(), func(ctx context.Context, req *ServerRequest) (*ServerResponse, error) {
		msg, _, ok := req.Body.Recv(ctx)
		if !ok {
			return nil, status.New(codes.Internal, "no request message").Err()
		}
		in := msg.(*echoMessage)
		return &ServerResponse{
			Metadata: req.Metadata,
			Producer: SingleMessageProducer(&echoMessage{Text: "echo:" + in.Text}),
		}, nil
	})
	go router.Serve(context.Background(), st)

	cc, err := Dial("inprocess:///test.Echo",
		WithInsecure(),
		WithCodec(testCodec),
		WithResolvedTransport(resolver.Address{Addr: "local"}, ct),
	)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	return cc, func() { cc.Close() }
}

func TestDialRequiresTransportSecurity(t *testing.T) {
	ct, _ := inprocess.NewChannel(0)
	_, err := Dial("inprocess:///test.Echo", WithResolvedTransport(resolver.Address{Addr: "local"}, ct))
	if err == nil {
		t.Fatal("Dial() error = nil, want a transport-security error")
	}
}

func TestDialRequiresAResolvedTransport(t *testing.T) {
	_, err := Dial("inprocess:///test.Echo", WithInsecure())
	if err == nil {
		t.Fatal("Dial() error = nil, want a no-resolved-transport error")
	}
}

func TestClientConnInvokeUnary(t *testing.T) {
	cc, closeFn := dialOverInprocess(t)
	defer closeFn()

	var reply echoMessage
	err := cc.Invoke(context.Background(), testMethod, &echoMessage{Text: "hi"}, &reply)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if reply.Text != "echo:hi" {
		t.Errorf("got %q, want %q", reply.Text, "echo:hi")
	}
	started, failed, succeeded := cc.CallStats()
	if started != 1 || failed != 0 || succeeded != 1 {
		t.Errorf("CallStats() = (%d, %d, %d), want (1, 0, 1)", started, failed, succeeded)
	}
}
